package auth

import "context"

// Requirement is the authorization a route declares in the route table.
type Requirement int

const (
	// RequireNone lets every request through.
	RequireNone Requirement = iota

	// RequireAPIKey accepts any Active public or frontend key.
	RequireAPIKey

	// RequireFrontend accepts only the first-party frontend key from the
	// configured origin.
	RequireFrontend
)

// String returns the metrics label of the requirement.
func (r Requirement) String() string {
	switch r {
	case RequireNone:
		return "none"
	case RequireAPIKey:
		return "api_key"
	case RequireFrontend:
		return "frontend"
	default:
		return "unknown"
	}
}

// KeyContext describes the key that authorized a request.
type KeyContext struct {
	// UserID is the key record id. Empty on a cache hit for a public route,
	// where the store is not consulted.
	UserID string

	// Requirement is the requirement of the matched route.
	Requirement Requirement

	// CacheHit reports whether the fast path authorized the request.
	CacheHit bool
}

type keyContextKey struct{}

// WithKeyContext returns a copy of ctx carrying kc.
func WithKeyContext(ctx context.Context, kc *KeyContext) context.Context {
	return context.WithValue(ctx, keyContextKey{}, kc)
}

// GetKeyContext retrieves the KeyContext from a request context.
func GetKeyContext(ctx context.Context) *KeyContext {
	if kc, ok := ctx.Value(keyContextKey{}).(*KeyContext); ok {
		return kc
	}
	return nil
}
