package types

import (
	"time"

	"github.com/google/uuid"
)

// UserType tags an account with its membership category.
// The tag is stored and reported but never enforced by the core.
type UserType string

const (
	UserTypeAdmin   UserType = "admin"
	UserTypeTeacher UserType = "teacher"
	UserTypeAlumni  UserType = "alumni"
	UserTypeStudent UserType = "student"
)

// PendingUser is a signed-up account that has not been promoted yet.
// Pending accounts are never eligible for login.
type PendingUser struct {
	// Username is the unique login name chosen at signup.
	Username string `json:"username"`

	// Password is the plaintext credential submitted at signup.
	// Hashing is deferred until promotion; this field is never
	// exposed in API responses.
	Password string `json:"-"`

	// CreatedAt is the timestamp when the signup was received.
	CreatedAt time.Time `json:"created_at"`
}

// User is a promoted, login-eligible account.
type User struct {
	// ID is the opaque account identifier, assigned once at
	// promotion and immutable for the account's lifetime. It doubles
	// as the bearer token in the recovery flows.
	ID uuid.UUID `json:"id" db:"id"`

	// Username is the unique login name; immutable after promotion.
	Username string `json:"username" db:"username"`

	// Password is the current plaintext credential. It is retained
	// only for legacy equality comparisons during password change and
	// token-based disclosure, and is never exposed in API responses.
	Password string `json:"-" db:"password"`

	// Passphrase is the salted one-way hash of Password and is the
	// authoritative credential for login. Every write to Password
	// recomputes Passphrase in the same operation.
	Passphrase string `json:"-" db:"passphrase"`

	// CreatedAt is the timestamp of promotion.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent credential change.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
