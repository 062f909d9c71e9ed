// Package domain holds the entities of the course-review system. Types here
// carry behavior and validation only; key layout and persistence live in the
// keymap and store packages.
package domain

import "time"

// Role is a user's authorization level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid reports whether the role is one of the known values.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an authenticated account. ExternalID ties it to the third-party
// identity provider the caller authenticated against.
type User struct {
	UserID     string
	ExternalID string
	Name       string
	Email      string
	Role       Role
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Refresh credential issued elsewhere; stored, never minted here.
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// IsAdmin reports whether the user may act on entities they do not own.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
