package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// Key Errors
	// ===========================================

	// ErrKeyNotFound indicates the requested API key record does not exist.
	ErrKeyNotFound = errors.New("api key not found")

	// ErrKeyAlreadyActive indicates the email already owns an active key.
	ErrKeyAlreadyActive = errors.New("an active api key already exists for this email")

	// ErrInvalidKeyState indicates an unknown key state was supplied.
	ErrInvalidKeyState = errors.New("invalid key state")

	// ErrInvalidEmail indicates the email address is malformed.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrVerificationTokenInvalid indicates the verification token is unknown or expired.
	ErrVerificationTokenInvalid = errors.New("verification token is invalid or expired")

	// ===========================================
	// Admin Errors
	// ===========================================

	// ErrAdminNotFound indicates the requested admin does not exist.
	ErrAdminNotFound = errors.New("admin not found")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ===========================================
	// Vehicle Errors
	// ===========================================

	// ErrVehicleNotFound indicates the requested vehicle does not exist.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrNoVehicles indicates a query matched no vehicles.
	ErrNoVehicles = errors.New("no vehicles found")

	// ErrInvalidVehicleID indicates the vehicle id is not a valid identifier.
	ErrInvalidVehicleID = errors.New("invalid vehicle id")

	// ErrEmptyFilter indicates a filter value was missing.
	ErrEmptyFilter = errors.New("filter value is required")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., key id, vehicle id).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}
