package auth

import "errors"

// Validation errors. The gateway answers every one of them with the same
// generic 401; they only differ in logs and metrics.
var (
	// ErrMissingKey indicates the key header was absent or empty.
	ErrMissingKey = errors.New("api key was not provided")

	// ErrDecode indicates the external key does not have the expected shape.
	ErrDecode = errors.New("malformed api key")

	// ErrNotFound indicates no key record exists for the decoded identity.
	ErrNotFound = errors.New("api key not found")

	// ErrExpired indicates the key record passed its expiration date.
	ErrExpired = errors.New("api key expired")

	// ErrState indicates the key record is not Active.
	ErrState = errors.New("api key is not active")

	// ErrSecretMismatch indicates the secret does not match the stored hash.
	ErrSecretMismatch = errors.New("api key secret mismatch")

	// ErrOriginMismatch indicates a frontend route was called from another origin.
	ErrOriginMismatch = errors.New("origin mismatch")

	// ErrIdentityMismatch indicates a frontend route was called with a
	// key that does not belong to the frontend client.
	ErrIdentityMismatch = errors.New("frontend identity mismatch")

	// ErrStoreUnavailable indicates the key store could not be queried.
	ErrStoreUnavailable = errors.New("key store unavailable")
)

// Outcome maps a validation result to a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "allowed"
	case errors.Is(err, ErrMissingKey):
		return "missing_key"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrSecretMismatch):
		return "secret_mismatch"
	case errors.Is(err, ErrOriginMismatch):
		return "origin_mismatch"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
