package types

import "time"

// User represents a registered account.
// It contains identity, contact details, and login audit metadata.
type User struct {
	// Username is the unique, immutable login name chosen by the user.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name" db:"last_name"`

	// Phone is the user's contact phone number.
	Phone string `json:"phone" db:"phone"`

	// JoinedAt is the timestamp when the account was registered.
	JoinedAt time.Time `json:"join_at" db:"join_at"`

	// LastLoginAt is the timestamp of the most recent successful login.
	LastLoginAt time.Time `json:"last_login_at" db:"last_login_at"`
}

// Profile returns the projection embedded in resolved messages.
func (u User) Profile() UserProfile {
	return UserProfile{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	}
}

// Summary returns the projection used by user listings.
func (u User) Summary() UserSummary {
	return UserSummary{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// UserProfile is the public contact card of a message participant.
type UserProfile struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// UserSummary is the narrow projection returned when listing all users.
type UserSummary struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Identity is the verified username a caller acts as.
type Identity struct {
	Username string
}
