// Package service provides business logic services for the Vehix API.
package service

import "errors"

// Common service errors.
var (
	// Session errors
	ErrNoSession        = errors.New("no authentication token provided")
	ErrSessionInvalid   = errors.New("invalid session token")
	ErrTokenBlacklisted = errors.New("token is blacklisted")
	ErrNotAdmin         = errors.New("session does not carry the admin role")

	// Bootstrap errors
	ErrBootstrapConfig = errors.New("bootstrap configuration is incomplete")

	// Reconciler errors
	ErrSubscriptionClosed = errors.New("expiration subscription closed")

	// General errors
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternalError = errors.New("internal server error")
)
