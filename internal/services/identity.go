package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campusforum/memberd/internal/mq"
	"github.com/campusforum/memberd/internal/password"
	"github.com/campusforum/memberd/internal/store"
	"github.com/campusforum/memberd/types"
	"github.com/google/uuid"
)

// PendingRepository defines persistence operations for unconfirmed
// signups.
type PendingRepository interface {
	Put(ctx context.Context, user types.PendingUser) error
	Get(ctx context.Context, username string) (types.PendingUser, error)
	Remove(ctx context.Context, username string) error
	Contains(ctx context.Context, username string) (bool, error)
}

// UserRepository defines persistence operations for promoted accounts.
type UserRepository interface {
	Create(ctx context.Context, user types.User) error
	Get(ctx context.Context, username string) (types.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (types.User, error)
	Update(ctx context.Context, user types.User) error
	Delete(ctx context.Context, username string) error
	Contains(ctx context.Context, username string) (bool, error)
}

// EventPublisher delivers lifecycle events to external collaborators.
// *mq.MQ satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// IdentityService owns the account lifecycle: signup, promotion,
// login, password change and deletion. A username moves through
// NONE -> PENDING -> VALID; there is no way back from VALID to
// PENDING. All mutations on a given username are serialized by a
// striped per-username lock, so a reader can never observe a
// half-completed promotion.
type IdentityService struct {
	pending PendingRepository
	users   UserRepository
	hasher  password.Hasher
	events  EventPublisher
	locks   keyLock
}

// NewIdentityService constructs an IdentityService. events may be nil,
// in which case lifecycle events are not published.
func NewIdentityService(pending PendingRepository, users UserRepository, hasher password.Hasher, events EventPublisher) *IdentityService {
	return &IdentityService{
		pending: pending,
		users:   users,
		hasher:  hasher,
		events:  events,
	}
}

// Signup records a new pending account. The plaintext is stored as
// submitted; hashing is deferred until promotion. It fails with
// ErrAlreadyExists when the username already has a pending or valid
// record.
func (s *IdentityService) Signup(ctx context.Context, username, plaintext string) (types.PendingUser, error) {
	unlock := s.locks.lock(username)
	defer unlock()

	if exists, err := s.users.Contains(ctx, username); err != nil {
		return types.PendingUser{}, fmt.Errorf("check valid users: %w", err)
	} else if exists {
		return types.PendingUser{}, ErrAlreadyExists
	}

	user := types.PendingUser{
		Username:  username,
		Password:  plaintext,
		CreatedAt: time.Now(),
	}
	if err := s.pending.Put(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return types.PendingUser{}, ErrAlreadyExists
		}
		return types.PendingUser{}, fmt.Errorf("store pending user: %w", err)
	}
	return user, nil
}

// Validate promotes a pending account into a valid one: it assigns a
// fresh account id, hashes the password and moves the record from the
// pending store to the valid store as one transition. This is the only
// admission point into the authenticated population.
func (s *IdentityService) Validate(ctx context.Context, username, plaintext string) (types.User, error) {
	unlock := s.locks.lock(username)
	defer unlock()

	// The double-promotion guard runs first: once a username is VALID,
	// a repeat Validate reports AlreadyExists even though the pending
	// record is long gone.
	if exists, err := s.users.Contains(ctx, username); err != nil {
		return types.User{}, fmt.Errorf("check valid users: %w", err)
	} else if exists {
		return types.User{}, ErrAlreadyExists
	}
	if _, err := s.pending.Get(ctx, username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNoSuchPendingUser
		}
		return types.User{}, fmt.Errorf("read pending user: %w", err)
	}

	passphrase, err := s.hasher.Hash(plaintext)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	user := types.User{
		ID:         uuid.New(),
		Username:   username,
		Password:   plaintext,
		Passphrase: passphrase,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return types.User{}, ErrAlreadyExists
		}
		return types.User{}, fmt.Errorf("store valid user: %w", err)
	}
	if err := s.pending.Remove(ctx, username); err != nil {
		return types.User{}, fmt.Errorf("remove pending user: %w", err)
	}

	s.publish(ctx, mq.ChannelUserValidated, mq.UserEvent{Username: username, ID: user.ID.String()})
	return user, nil
}

// Login verifies the password against the stored hash and returns the
// account on success.
func (s *IdentityService) Login(ctx context.Context, username, plaintext string) (types.User, error) {
	user, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNoSuchUser
		}
		return types.User{}, fmt.Errorf("read user: %w", err)
	}
	if !s.hasher.Verify(plaintext, user.Passphrase) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetByID returns the valid account bearing id.
func (s *IdentityService) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNoSuchUser
		}
		return types.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return user, nil
}

// LoginWithToken is Login with an additional account-id check. The id
// is compared before the password; either mismatch yields
// ErrInvalidCredentials.
func (s *IdentityService) LoginWithToken(ctx context.Context, username, plaintext string, id uuid.UUID) (types.User, error) {
	user, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNoSuchUser
		}
		return types.User{}, fmt.Errorf("read user: %w", err)
	}
	if user.ID != id {
		return types.User{}, ErrInvalidCredentials
	}
	if !s.hasher.Verify(plaintext, user.Passphrase) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword rotates the account credential. When either the old
// or the new password is empty the call is treated as a reset: a
// random temporary password is generated, stored and returned to the
// caller inside the updated record. Otherwise the old password must
// equal the stored one. Both the plaintext and the passphrase are
// rewritten in the same operation, so they never diverge.
func (s *IdentityService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (types.User, error) {
	unlock := s.locks.lock(username)
	defer unlock()

	user, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNoSuchUser
		}
		return types.User{}, fmt.Errorf("read user: %w", err)
	}

	next := newPassword
	if oldPassword == "" || newPassword == "" {
		temp, err := password.GenerateTemp()
		if err != nil {
			return types.User{}, fmt.Errorf("generate temporary password: %w", err)
		}
		next = temp
	} else if user.Password != oldPassword {
		return types.User{}, ErrInvalidCredentials
	}

	passphrase, err := s.hasher.Hash(next)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}
	user.Password = next
	user.Passphrase = passphrase
	user.UpdatedAt = time.Now()

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNoSuchUser
		}
		return types.User{}, fmt.Errorf("update user: %w", err)
	}

	s.publish(ctx, mq.ChannelPasswordChanged, mq.UserEvent{Username: username, ID: user.ID.String()})
	return user, nil
}

// DeleteUser removes a single valid account.
func (s *IdentityService) DeleteUser(ctx context.Context, username string) error {
	return s.DeleteUsers(ctx, []string{username})
}

// DeleteUsers removes valid accounts in one batch. The batch aborts on
// the first missing username: if any name has no valid record, no
// record is removed and ErrNoSuchUser is returned. Repeated names in
// the batch count once.
func (s *IdentityService) DeleteUsers(ctx context.Context, usernames []string) error {
	usernames = distinct(usernames)
	unlock := s.locks.lockAll(usernames)
	defer unlock()

	for _, username := range usernames {
		exists, err := s.users.Contains(ctx, username)
		if err != nil {
			return fmt.Errorf("check user %q: %w", username, err)
		}
		if !exists {
			return fmt.Errorf("%q: %w", username, ErrNoSuchUser)
		}
	}
	for _, username := range usernames {
		if err := s.users.Delete(ctx, username); err != nil {
			return fmt.Errorf("delete user %q: %w", username, err)
		}
		s.publish(ctx, mq.ChannelUserDeleted, mq.UserEvent{Username: username})
	}
	return nil
}

// DeletePendingUsers removes pending signups in one batch, with the
// same abort-on-first-missing contract as DeleteUsers.
func (s *IdentityService) DeletePendingUsers(ctx context.Context, usernames []string) error {
	usernames = distinct(usernames)
	unlock := s.locks.lockAll(usernames)
	defer unlock()

	for _, username := range usernames {
		exists, err := s.pending.Contains(ctx, username)
		if err != nil {
			return fmt.Errorf("check pending user %q: %w", username, err)
		}
		if !exists {
			return fmt.Errorf("%q: %w", username, ErrNoSuchUser)
		}
	}
	for _, username := range usernames {
		if err := s.pending.Remove(ctx, username); err != nil {
			return fmt.Errorf("delete pending user %q: %w", username, err)
		}
	}
	return nil
}

// distinct returns usernames with repeats removed, preserving first
// occurrences. A name repeated in a delete batch must not make the
// second pass fail after the first pass verified it.
func distinct(usernames []string) []string {
	seen := make(map[string]struct{}, len(usernames))
	out := usernames[:0:0]
	for _, username := range usernames {
		if _, ok := seen[username]; ok {
			continue
		}
		seen[username] = struct{}{}
		out = append(out, username)
	}
	return out
}

// publish delivers a lifecycle event on a best-effort basis. Delivery
// failures are logged, never surfaced to the caller.
func (s *IdentityService) publish(ctx context.Context, channel string, event mq.UserEvent) {
	if s.events == nil {
		return
	}
	data, err := event.Marshal()
	if err != nil {
		slog.Warn("encode lifecycle event", "channel", channel, "error", err)
		return
	}
	if _, err := s.events.Publish(ctx, channel, data, nil); err != nil {
		slog.Warn("publish lifecycle event", "channel", channel, "error", err)
	}
}
