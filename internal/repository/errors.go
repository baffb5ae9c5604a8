package repository

import "errors"

// Repository errors
var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("duplicate entity")

	// ErrUnsupportedDriver indicates the configured database driver is unknown.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)
