package services

import "errors"

// Identity failure taxonomy. Every failure is an expected,
// caller-recoverable condition; callers match with errors.Is and must
// be able to tell "does not exist" from "wrong credentials" from
// "already exists".
var (
	// ErrAlreadyExists is returned when a signup or promotion targets
	// a username that already has a pending or valid record.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrNoSuchUser is returned when no valid account exists for the
	// username.
	ErrNoSuchUser = errors.New("no such user")

	// ErrNoSuchPendingUser is returned when a promotion targets a
	// username with no pending signup.
	ErrNoSuchPendingUser = errors.New("no such pending user")

	// ErrInvalidCredentials is returned when a password or token check
	// fails for an existing account.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a recovery token does not match
	// the account it was presented for.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotFound is returned when a token resolves to no account.
	ErrNotFound = errors.New("not found")
)
