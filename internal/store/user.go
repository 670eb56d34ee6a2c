package store

import (
	"context"
	"sync"

	"github.com/campusforum/memberd/types"
	"github.com/google/uuid"
)

// UserRepository holds promoted accounts keyed by username, with a
// secondary index by account id for the recovery flows. Each operation
// is atomic with respect to the others; cross-operation ordering is
// owned by the service layer's per-username locks.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]types.User
	byID  map[uuid.UUID]string
}

// NewUserRepository constructs an empty in-memory account store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[string]types.User),
		byID:  make(map[uuid.UUID]string),
	}
}

// Create inserts a promoted account. It fails with ErrAlreadyExists
// when the username is already taken.
func (r *UserRepository) Create(ctx context.Context, user types.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Username]; ok {
		return ErrAlreadyExists
	}
	r.users[user.Username] = user
	r.byID[user.ID] = user.Username
	return nil
}

// Get returns the account for username.
func (r *UserRepository) Get(ctx context.Context, username string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[username]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// FindByID returns the account bearing the given id.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	username, ok := r.byID[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return r.users[username], nil
}

// Update overwrites the stored account record in place. The username
// and id are immutable; only the credential fields and UpdatedAt are
// expected to change.
func (r *UserRepository) Update(ctx context.Context, user types.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Username]; !ok {
		return ErrNotFound
	}
	r.users[user.Username] = user
	return nil
}

// Delete removes the account for username.
func (r *UserRepository) Delete(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[username]
	if !ok {
		return ErrNotFound
	}
	delete(r.users, username)
	delete(r.byID, user.ID)
	return nil
}

// Contains reports whether an account exists for username.
func (r *UserRepository) Contains(ctx context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[username]
	return ok, nil
}
