package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per client IP to requests per window.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requests, window)
}

// RateLimitByHeader limits requests per value of headerName, e.g. the API
// key header. Requests without the header are limited by IP.
func RateLimitByHeader(headerName string, requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if v := r.Header.Get(headerName); v != "" {
				return "h:" + v, nil
			}
			ip, err := httprate.KeyByIP(r)
			return "ip:" + ip, err
		}),
	)
}

// Passthrough is used when rate limiting is disabled.
func Passthrough(next http.Handler) http.Handler {
	return next
}
