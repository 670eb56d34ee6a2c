package types

import "time"

// UserProfile is the attribute bag attached to a promoted account.
// The core only checks that the owning account exists; the fields
// themselves are stored as submitted.
type UserProfile struct {
	// Username is the owning account's login name.
	Username string `json:"username"`

	// Firstname is the member's given name.
	Firstname string `json:"firstname"`

	// Lastname is the member's family name.
	Lastname string `json:"lastname"`

	// MiddleInitial is the member's middle initial, if any.
	MiddleInitial string `json:"middle_initial"`

	// Age is the member's age in years.
	Age int `json:"age"`

	// Salary is the member's reported salary.
	Salary float64 `json:"salary"`

	// Birthday is the member's date of birth.
	Birthday time.Time `json:"birthday"`

	// UserType is the membership category tag.
	UserType UserType `json:"user_type"`

	// AvatarKey is the object-storage key of the member's avatar,
	// empty when no avatar has been uploaded.
	AvatarKey string `json:"avatar_key,omitempty"`

	// UpdatedAt is the timestamp of the most recent profile write.
	UpdatedAt time.Time `json:"updated_at"`
}
