package store

import (
	"context"
	"sync"

	"github.com/campusforum/memberd/types"
)

// PendingRepository holds unconfirmed signups keyed by username.
// The in-memory map is the source of truth for pending accounts;
// they never survive the process.
type PendingRepository struct {
	mu    sync.RWMutex
	users map[string]types.PendingUser
}

// NewPendingRepository constructs an empty pending-user store.
func NewPendingRepository() *PendingRepository {
	return &PendingRepository{users: make(map[string]types.PendingUser)}
}

// Put inserts a pending signup. It fails with ErrAlreadyExists when a
// pending record for the username is already present.
func (r *PendingRepository) Put(ctx context.Context, user types.PendingUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Username]; ok {
		return ErrAlreadyExists
	}
	r.users[user.Username] = user
	return nil
}

// Get returns the pending signup for username.
func (r *PendingRepository) Get(ctx context.Context, username string) (types.PendingUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[username]
	if !ok {
		return types.PendingUser{}, ErrNotFound
	}
	return user, nil
}

// Remove deletes the pending signup for username.
func (r *PendingRepository) Remove(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; !ok {
		return ErrNotFound
	}
	delete(r.users, username)
	return nil
}

// Contains reports whether a pending signup exists for username.
func (r *PendingRepository) Contains(ctx context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[username]
	return ok, nil
}
