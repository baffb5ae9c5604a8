// Package auth implements the API key gateway: key decoding, validation
// against the key store, and the per-route HTTP middleware.
package auth

import "time"

const (
	// DefaultHeaderName is the header carrying the external key.
	DefaultHeaderName = "X-API-KEY"

	// OriginHeader is checked on frontend-only routes.
	OriginHeader = "Origin"

	// DefaultCacheTTL is the lifetime of a primed usage hash.
	DefaultCacheTTL = 15 * time.Minute

	// DefaultStoreTimeout bounds key store calls on the request path.
	DefaultStoreTimeout = 5 * time.Second

	// DefaultRecordTimeout bounds the completion write of a response code.
	DefaultRecordTimeout = 2 * time.Second
)

// Response bodies. They never say why a key was refused.
const (
	msgMissingKey   = "API Key was not provided."
	msgUnauthorized = "Unauthorized client."
)
