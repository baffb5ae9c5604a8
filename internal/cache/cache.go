// Package cache defines the short-lived usage cache that sits in front of the
// key store, and the token store used by verification and admin sessions.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Keyspace shared with other deployments reading the same Redis database.
const (
	UsageKeyPrefix  = "ApiKey:"
	MarkerKeyPrefix = "ApiKeyTTL:"

	FieldUserID       = "UserId"
	FieldUsageCount   = "UsageCount"
	FieldLastResponse = "LastResponse"

	// MarkerValue is stored in every marker key. Only the key's expiry matters.
	MarkerValue = "TTL"
)

var (
	// ErrCacheMiss is returned when a key is not present.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidTTL is returned when a marker cannot expire strictly before its hash.
	ErrInvalidTTL = errors.New("invalid cache ttl")
)

// UsageKey returns the hash key for an external API key.
func UsageKey(external string) string {
	return UsageKeyPrefix + external
}

// MarkerKey returns the marker key for an external API key.
func MarkerKey(external string) string {
	return MarkerKeyPrefix + external
}

// ExternalFromMarker extracts the external key from a marker key.
func ExternalFromMarker(marker string) (string, bool) {
	if !strings.HasPrefix(marker, MarkerKeyPrefix) {
		return "", false
	}
	external := strings.TrimPrefix(marker, MarkerKeyPrefix)
	return external, external != ""
}

// MarkerTTL returns the marker lifetime for a hash living ttl.
// The marker must expire strictly before the hash so that its contents are
// still readable when the expiration is handled.
func MarkerTTL(ttl, margin time.Duration) (time.Duration, error) {
	if margin <= 0 {
		return 0, fmt.Errorf("%w: margin %s must be positive", ErrInvalidTTL, margin)
	}
	marker := ttl - margin
	if marker <= 0 {
		return 0, fmt.Errorf("%w: ttl %s must exceed margin %s", ErrInvalidTTL, ttl, margin)
	}
	return marker, nil
}

// UsageSnapshot is the content of a usage hash.
type UsageSnapshot struct {
	UserID       string
	UsageCount   int64
	LastResponse string
}

// UsageCache buffers per-key usage between reconciliations.
type UsageCache interface {
	// CheckAndIncrement atomically increments UsageCount if the hash exists.
	// When expectedUserID is non-empty the hash must also belong to that user.
	CheckAndIncrement(ctx context.Context, external, expectedUserID string) (bool, error)

	// Prime creates the hash with a zero usage count and its marker.
	Prime(ctx context.Context, external, userID string, ttl time.Duration) error

	// RecordResponse stores the status code of the latest completed request.
	// It is a no-op once the hash is gone.
	RecordResponse(ctx context.Context, external string, status int) error

	// Snapshot reads the hash. Returns ErrCacheMiss when it does not exist.
	Snapshot(ctx context.Context, external string) (*UsageSnapshot, error)

	// Delete removes the hash and its marker.
	Delete(ctx context.Context, external string) error
}

// ExpirationSource streams the names of expired marker keys.
type ExpirationSource interface {
	// Expirations returns a channel closed when ctx is done.
	Expirations(ctx context.Context) (<-chan string, error)
}

// TokenStore holds opaque short-lived tokens.
type TokenStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Token keyspace.
const (
	VerificationKeyPrefix = "ApiKeyVerificationKey:"
	RefreshTokenPrefix    = "RTfU:"
	BlacklistPrefix       = "ATBL:"
)
