package domain

import (
	"time"
)

// Role is an administrative role carried in session tokens.
type Role string

// RoleAdmin grants access to the vehicle management endpoints.
const RoleAdmin Role = "Admin"

// Admin represents the operator account used by the admin frontend.
// There is a single administrator, bootstrapped from configuration.
type Admin struct {
	// ID is the unique identifier for the admin (24 hex characters).
	ID string `json:"id"`

	// Username is the login name.
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash of the admin's password.
	// This should never be exposed in API responses.
	PasswordHash string `json:"-"`

	// Role is the role granted to sessions issued for this admin.
	Role Role `json:"role"`

	// CreatedAt is the timestamp when the admin was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewAdmin creates a new Admin with a fresh identifier.
func NewAdmin(username, passwordHash string) *Admin {
	return &Admin{
		ID:           NewID(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}
}
