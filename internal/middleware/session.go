package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/service"
)

// SessionAuthorizer validates admin access tokens.
type SessionAuthorizer interface {
	Authorize(ctx context.Context, accessToken string) (*service.Principal, error)
}

type principalKey struct{}

// RequireAdmin rejects requests without a valid admin access token in the
// cookieName cookie. The principal is attached to the request context.
func RequireAdmin(sessions SessionAuthorizer, cookieName string, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "admin_session").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				writeAuthError(w, "No authentication token provided")
				return
			}

			principal, err := sessions.Authorize(r.Context(), cookie.Value)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("request_id", GetRequestID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("admin session rejected")
				if errors.Is(err, service.ErrTokenBlacklisted) {
					writeAuthError(w, "Token is no longer valid")
					return
				}
				writeAuthError(w, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the admin principal attached by RequireAdmin.
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(principalKey{}).(*service.Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
