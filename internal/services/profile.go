package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/campusforum/memberd/internal/storage"
	"github.com/campusforum/memberd/internal/store"
	"github.com/campusforum/memberd/types"
	"github.com/google/uuid"
)

// ProfileRepository defines persistence operations for profile bags.
type ProfileRepository interface {
	Put(ctx context.Context, profile types.UserProfile) error
	Get(ctx context.Context, username string) (types.UserProfile, error)
	Remove(ctx context.Context, username string) error
}

// ProfileService stores profile attribute bags for promoted accounts.
// It only checks that the owning account exists; the attributes are
// stored as submitted.
type ProfileService struct {
	profiles ProfileRepository
	users    UserRepository
	avatars  *storage.AvatarStore
}

// NewProfileService constructs a ProfileService. avatars may be nil
// when no object-storage backend is configured.
func NewProfileService(profiles ProfileRepository, users UserRepository, avatars *storage.AvatarStore) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		users:    users,
		avatars:  avatars,
	}
}

// Add stores the profile for an existing valid account.
func (s *ProfileService) Add(ctx context.Context, profile types.UserProfile) (types.UserProfile, error) {
	if err := s.requireUser(ctx, profile.Username); err != nil {
		return types.UserProfile{}, err
	}
	profile.UpdatedAt = time.Now()
	if err := s.profiles.Put(ctx, profile); err != nil {
		return types.UserProfile{}, fmt.Errorf("store profile: %w", err)
	}
	return profile, nil
}

// Update overwrites the profile of the account whose id matches. A
// wrong id fails with ErrInvalidToken.
func (s *ProfileService) Update(ctx context.Context, username string, id uuid.UUID, profile types.UserProfile) (types.UserProfile, error) {
	user, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.UserProfile{}, ErrNoSuchUser
		}
		return types.UserProfile{}, fmt.Errorf("read user: %w", err)
	}
	if user.ID != id {
		return types.UserProfile{}, ErrInvalidToken
	}

	profile.Username = username
	profile.UpdatedAt = time.Now()
	if err := s.profiles.Put(ctx, profile); err != nil {
		return types.UserProfile{}, fmt.Errorf("store profile: %w", err)
	}
	return profile, nil
}

// UpdateNames patches only the name fields of an existing profile,
// subject to the same id check as Update.
func (s *ProfileService) UpdateNames(ctx context.Context, username string, id uuid.UUID, firstname, lastname, middleInitial string) (types.UserProfile, error) {
	user, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.UserProfile{}, ErrNoSuchUser
		}
		return types.UserProfile{}, fmt.Errorf("read user: %w", err)
	}
	if user.ID != id {
		return types.UserProfile{}, ErrInvalidToken
	}

	profile, err := s.profiles.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.UserProfile{}, ErrNotFound
		}
		return types.UserProfile{}, fmt.Errorf("read profile: %w", err)
	}

	profile.Firstname = firstname
	profile.Lastname = lastname
	profile.MiddleInitial = middleInitial
	profile.UpdatedAt = time.Now()
	if err := s.profiles.Put(ctx, profile); err != nil {
		return types.UserProfile{}, fmt.Errorf("store profile: %w", err)
	}
	return profile, nil
}

// Get returns the profile for username.
func (s *ProfileService) Get(ctx context.Context, username string) (types.UserProfile, error) {
	profile, err := s.profiles.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.UserProfile{}, ErrNotFound
		}
		return types.UserProfile{}, fmt.Errorf("read profile: %w", err)
	}
	return profile, nil
}

// UploadAvatar stores the avatar object for an existing account and
// records its key on the profile.
func (s *ProfileService) UploadAvatar(ctx context.Context, username string, r io.Reader, size int64, contentType string) (types.UserProfile, error) {
	if s.avatars == nil {
		return types.UserProfile{}, errors.New("avatar storage is not configured")
	}
	if err := s.requireUser(ctx, username); err != nil {
		return types.UserProfile{}, err
	}

	key, err := s.avatars.Put(ctx, username, r, size, contentType)
	if err != nil {
		return types.UserProfile{}, fmt.Errorf("store avatar: %w", err)
	}

	profile, err := s.profiles.Get(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return types.UserProfile{}, fmt.Errorf("read profile: %w", err)
	}
	profile.Username = username
	profile.AvatarKey = key
	profile.UpdatedAt = time.Now()
	if err := s.profiles.Put(ctx, profile); err != nil {
		return types.UserProfile{}, fmt.Errorf("store profile: %w", err)
	}
	return profile, nil
}

// OpenAvatar opens a reader for the stored avatar of username.
func (s *ProfileService) OpenAvatar(ctx context.Context, username string) (io.ReadCloser, error) {
	if s.avatars == nil {
		return nil, errors.New("avatar storage is not configured")
	}
	profile, err := s.profiles.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if profile.AvatarKey == "" {
		return nil, ErrNotFound
	}
	reader, err := s.avatars.Open(ctx, profile.AvatarKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open avatar: %w", err)
	}
	return reader, nil
}

func (s *ProfileService) requireUser(ctx context.Context, username string) error {
	exists, err := s.users.Contains(ctx, username)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return ErrNoSuchUser
	}
	return nil
}
