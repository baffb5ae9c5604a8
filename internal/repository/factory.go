package repository

import (
	"context"
)

// Repositories holds all repository instances.
type Repositories struct {
	Key     KeyRepository
	Admin   AdminRepository
	Vehicle VehicleRepository
}

// DatabaseHealth is an interface for database health checks.
// This interface satisfies handler.DatabaseChecker for the readiness endpoint.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// CreateRepositoriesResult contains the created repositories and database connection.
type CreateRepositoriesResult struct {
	Repos    *Repositories
	Database DatabaseHealth
}
