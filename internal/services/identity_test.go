package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/campusforum/memberd/internal/mq"
	"github.com/campusforum/memberd/internal/password"
	"github.com/campusforum/memberd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type capturingPublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (p *capturingPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, data)
	return "msg-1", nil
}

func newTestIdentityService(events EventPublisher) (*IdentityService, *store.PendingRepository, *store.UserRepository) {
	pending := store.NewPendingRepository()
	users := store.NewUserRepository()
	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	return NewIdentityService(pending, users, hasher, events), pending, users
}

func TestSignupCreatesPendingOnly(t *testing.T) {
	ctx := context.Background()
	svc, pending, users := newTestIdentityService(nil)

	got, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "pw1", got.Password)

	exists, err := pending.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = users.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.Login(ctx, "alice", "pw1")
	assert.ErrorIs(t, err, ErrNoSuchUser, "pending accounts must not be able to log in")
}

func TestSignupDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = svc.Signup(ctx, "alice", "pw2")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSignupAfterPromotion(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)
	_, err = svc.Validate(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = svc.Signup(ctx, "alice", "pw2")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestValidatePromotesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	svc, pending, users := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)

	user, err := svc.Validate(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "", user.ID.String())
	assert.NotEqual(t, "pw1", user.Passphrase, "passphrase must be a hash, not the plaintext")

	exists, err := pending.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists, "promotion must remove the pending record")
	exists, err = users.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = svc.Validate(ctx, "alice", "pw1")
	assert.ErrorIs(t, err, ErrAlreadyExists, "a second promotion must be rejected")
}

func TestValidateWithoutSignup(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	_, err := svc.Validate(ctx, "ghost", "pw1")
	assert.ErrorIs(t, err, ErrNoSuchPendingUser)
}

func TestValidateAssignsDistinctIDs(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		username := fmt.Sprintf("user-%d", i)
		_, err := svc.Signup(ctx, username, "pw")
		require.NoError(t, err)
		user, err := svc.Validate(ctx, username, "pw")
		require.NoError(t, err)

		_, dup := seen[user.ID.String()]
		assert.False(t, dup, "account ids must be pairwise distinct")
		seen[user.ID.String()] = struct{}{}
	}
}

func TestLoginScenario(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)
	promoted, err := svc.Validate(ctx, "alice", "pw1")
	require.NoError(t, err)

	user, err := svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, promoted.ID, user.ID)

	// Correct credentials keep working on repeat.
	_, err = svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.ChangePassword(ctx, "alice", "pw1", "pw2")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "pw1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "alice", "pw2")
	require.NoError(t, err)
}

func TestLoginNoSuchUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	_, err := svc.Login(ctx, "ghost", "pw1")
	assert.ErrorIs(t, err, ErrNoSuchUser)
}

func TestLoginWithToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)
	promoted, err := svc.Validate(ctx, "alice", "pw1")
	require.NoError(t, err)

	user, err := svc.LoginWithToken(ctx, "alice", "pw1", promoted.ID)
	require.NoError(t, err)
	assert.Equal(t, promoted.ID, user.ID)

	_, err = svc.Signup(ctx, "bob", "pw1")
	require.NoError(t, err)
	other, err := svc.Validate(ctx, "bob", "pw1")
	require.NoError(t, err)

	_, err = svc.LoginWithToken(ctx, "alice", "pw1", other.ID)
	assert.ErrorIs(t, err, ErrInvalidCredentials, "a wrong id must fail even with the right password")

	_, err = svc.LoginWithToken(ctx, "alice", "wrong", promoted.ID)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.LoginWithToken(ctx, "ghost", "pw1", promoted.ID)
	assert.ErrorIs(t, err, ErrNoSuchUser)
}

func TestChangePasswordWrongOld(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)
	_, err = svc.Validate(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = svc.ChangePassword(ctx, "alice", "wrong", "pw2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// The credential is untouched after a rejected change.
	_, err = svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
}

func TestChangePasswordNoSuchUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	_, err := svc.ChangePassword(ctx, "ghost", "pw1", "pw2")
	assert.ErrorIs(t, err, ErrNoSuchUser)
}

func TestChangePasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)
	_, err = svc.Validate(ctx, "alice", "pw1")
	require.NoError(t, err)

	user, err := svc.ChangePassword(ctx, "alice", "", "")
	require.NoError(t, err)
	require.Len(t, user.Password, password.TempPasswordLength)
	for _, c := range user.Password {
		assert.True(t, c >= 'a' && c <= 'z', "temporary password must be lowercase alphabetic, got %q", user.Password)
	}

	_, err = svc.Login(ctx, "alice", "pw1")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "the old password must stop working after a reset")
	_, err = svc.Login(ctx, "alice", user.Password)
	require.NoError(t, err, "the returned temporary password must log in")
}

func TestDeleteUsersAbortsOnFirstMissing(t *testing.T) {
	ctx := context.Background()
	svc, _, users := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)
	_, err = svc.Validate(ctx, "alice", "pw1")
	require.NoError(t, err)

	err = svc.DeleteUsers(ctx, []string{"alice", "bob"})
	assert.ErrorIs(t, err, ErrNoSuchUser)

	exists, err := users.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists, "an aborted batch must leave every record in place")
}

func TestDeleteUsers(t *testing.T) {
	ctx := context.Background()
	svc, _, users := newTestIdentityService(nil)

	for _, username := range []string{"alice", "bob"} {
		_, err := svc.Signup(ctx, username, "pw1")
		require.NoError(t, err)
		_, err = svc.Validate(ctx, username, "pw1")
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteUsers(ctx, []string{"alice", "bob"}))

	for _, username := range []string{"alice", "bob"} {
		exists, err := users.Contains(ctx, username)
		require.NoError(t, err)
		assert.False(t, exists)
	}
}

func TestDeleteUsersRepeatedName(t *testing.T) {
	ctx := context.Background()
	publisher := &capturingPublisher{}
	svc, _, users := newTestIdentityService(publisher)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)
	_, err = svc.Validate(ctx, "alice", "pw1")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUsers(ctx, []string{"alice", "alice"}),
		"a name repeated in the batch must count once")

	exists, err := users.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, []string{mq.ChannelUserValidated, mq.ChannelUserDeleted}, publisher.channels,
		"a repeated name must publish a single deletion event")
}

func TestDeletePendingUsersRepeatedName(t *testing.T) {
	ctx := context.Background()
	svc, pending, _ := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)

	require.NoError(t, svc.DeletePendingUsers(ctx, []string{"alice", "alice"}))

	exists, err := pending.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeletePendingUsersAbortsOnFirstMissing(t *testing.T) {
	ctx := context.Background()
	svc, pending, _ := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)

	err = svc.DeletePendingUsers(ctx, []string{"alice", "bob"})
	assert.ErrorIs(t, err, ErrNoSuchUser)

	exists, err := pending.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, svc.DeletePendingUsers(ctx, []string{"alice"}))
	exists, err = pending.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLifecycleEventsPublished(t *testing.T) {
	ctx := context.Background()
	publisher := &capturingPublisher{}
	svc, _, _ := newTestIdentityService(publisher)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)
	_, err = svc.Validate(ctx, "alice", "pw1")
	require.NoError(t, err)
	_, err = svc.ChangePassword(ctx, "alice", "pw1", "pw2")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteUser(ctx, "alice"))

	assert.Equal(t, []string{
		mq.ChannelUserValidated,
		mq.ChannelPasswordChanged,
		mq.ChannelUserDeleted,
	}, publisher.channels)

	var event mq.UserEvent
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &event))
	assert.Equal(t, "alice", event.Username)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestConcurrentSignupsAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc, _, users := newTestIdentityService(nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			username := fmt.Sprintf("user-%d", i)
			if _, err := svc.Signup(ctx, username, "pw"); err != nil {
				t.Errorf("signup %s: %v", username, err)
				return
			}
			if _, err := svc.Validate(ctx, username, "pw"); err != nil {
				t.Errorf("validate %s: %v", username, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 32; i++ {
		exists, err := users.Contains(ctx, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		assert.True(t, exists)
	}
}

func TestConcurrentValidatePromotesOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestIdentityService(nil)

	_, err := svc.Signup(ctx, "alice", "pw1")
	require.NoError(t, err)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Validate(ctx, "alice", "pw1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyExists)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent promotion must win")
}
