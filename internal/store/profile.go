package store

import (
	"context"
	"sync"

	"github.com/campusforum/memberd/types"
)

// ProfileRepository holds profile attribute bags keyed by username.
// Profiles are plain data; all checking happens in the service layer.
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]types.UserProfile
}

// NewProfileRepository constructs an empty in-memory profile store.
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[string]types.UserProfile)}
}

// Put inserts or overwrites the profile for profile.Username.
func (r *ProfileRepository) Put(ctx context.Context, profile types.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.Username] = profile
	return nil
}

// Get returns the profile for username.
func (r *ProfileRepository) Get(ctx context.Context, username string) (types.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[username]
	if !ok {
		return types.UserProfile{}, ErrNotFound
	}
	return profile, nil
}

// Remove deletes the profile for username, if any.
func (r *ProfileRepository) Remove(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, username)
	return nil
}
