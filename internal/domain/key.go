// Package domain contains the core business entities for the Vehix API.
package domain

import (
	"time"
)

// KeyState represents the lifecycle state of an API key record.
type KeyState string

const (
	// KeyStateDeleted marks a key that was revoked and kept for audit.
	KeyStateDeleted KeyState = "Deleted"

	// KeyStateActive indicates the key can be used for authentication.
	KeyStateActive KeyState = "Active"

	// KeyStateExpired indicates the expiration date has passed.
	// Set lazily by the validator the first time an expired key is presented.
	KeyStateExpired KeyState = "Expired"

	// KeyStateSuspended indicates the key was disabled by an operator.
	KeyStateSuspended KeyState = "Suspended"

	// KeyStateUnverified indicates the owner has not confirmed their email yet.
	KeyStateUnverified KeyState = "Unverified"
)

// IsValid reports whether s is a known key state.
func (s KeyState) IsValid() bool {
	switch s {
	case KeyStateDeleted, KeyStateActive, KeyStateExpired, KeyStateSuspended, KeyStateUnverified:
		return true
	}
	return false
}

// NeverExpires is the expiration date given to keys that must not lapse,
// such as the frontend key.
var NeverExpires = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// Key represents an API key record in the key store.
// The external key handed to the client is never stored; only a bcrypt hash
// of its secret part is kept.
type Key struct {
	// UserID is the unique identifier of the record (24 hex characters).
	// It is also the identity half of the external key.
	UserID string `json:"user_id"`

	// Username identifies the key owner. For public keys this is the local
	// part of the email address.
	Username string `json:"username"`

	// Email is the owner's email address.
	Email string `json:"email"`

	// SecretHash is the bcrypt hash of the 43-character secret.
	SecretHash string `json:"-"`

	// CreatedAt is the timestamp when the key was created.
	CreatedAt time.Time `json:"created_at"`

	// ExpirationDate is when the key stops validating.
	ExpirationDate time.Time `json:"expiration_date"`

	// UsageCount is the number of authenticated requests folded back from the cache.
	UsageCount int64 `json:"usage_count"`

	// LastResponseCode is the HTTP status of the last reconciled request.
	LastResponseCode string `json:"last_response_code,omitempty"`

	// State is the lifecycle state.
	State KeyState `json:"state"`
}

// NewKey creates a new active Key with a fresh identifier.
// The secretHash should be produced by the crypto package.
func NewKey(username, email, secretHash string, lifetime time.Duration) *Key {
	now := time.Now().UTC()
	return &Key{
		UserID:         NewID(),
		Username:       username,
		Email:          email,
		SecretHash:     secretHash,
		CreatedAt:      now,
		ExpirationDate: now.Add(lifetime),
		State:          KeyStateActive,
	}
}

// IsActive returns true if the key is in the Active state.
func (k *Key) IsActive() bool {
	return k.State == KeyStateActive
}

// IsExpiredAt returns true if the expiration date is at or before now.
func (k *Key) IsExpiredAt(now time.Time) bool {
	return !k.ExpirationDate.After(now)
}

// NeedsExpiry returns true if the key has lapsed but is not yet marked Expired.
func (k *Key) NeedsExpiry(now time.Time) bool {
	return k.IsExpiredAt(now) && k.State != KeyStateExpired
}

// IssuedKey holds the plaintext external key returned to the client exactly once.
type IssuedKey struct {
	UserID         string    `json:"user_id"`
	APIKey         string    `json:"api_key"`
	ExpirationDate time.Time `json:"expiration_date"`
}
