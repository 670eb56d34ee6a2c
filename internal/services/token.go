package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/campusforum/memberd/internal/store"
	"github.com/google/uuid"
)

// TokenService resolves an account id (the recovery token) back to an
// account fact. It backs the "forgot username" and "forgot password"
// flows.
type TokenService struct {
	users UserRepository
}

// NewTokenService constructs a TokenService over the valid-user store.
func NewTokenService(users UserRepository) *TokenService {
	return &TokenService{users: users}
}

// ResolveUsernameByID returns the username of the account bearing id,
// or ErrNotFound when no account does.
func (s *TokenService) ResolveUsernameByID(ctx context.Context, id uuid.UUID) (string, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("find user by id: %w", err)
	}
	return user.Username, nil
}

// ResolvePasswordByID returns the account's current plaintext password
// when both the username and the id match.
//
// This discloses a stored secret to whoever holds the account id. It
// is kept for compatibility with the legacy recovery flow and must not
// be exposed by a production deployment; a one-time reset token is the
// replacement.
func (s *TokenService) ResolvePasswordByID(ctx context.Context, username string, id uuid.UUID) (string, error) {
	user, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoSuchUser
		}
		return "", fmt.Errorf("read user: %w", err)
	}
	if user.ID != id {
		return "", ErrInvalidToken
	}
	return user.Password, nil
}
