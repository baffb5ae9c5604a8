// Package repository defines data access interfaces for the Vehix API.
// These interfaces abstract database operations, allowing for different implementations
// (MongoDB, PostgreSQL, SQLite, in-memory for testing) while keeping the service layer clean.
package repository

import (
	"context"

	"github.com/vehix/vehix-api/internal/domain"
)

// =============================================================================
// Key Repository
// =============================================================================

// KeyRepository defines the interface for API key record access.
// All mutating methods that the gateway and reconciler depend on are single
// atomic statements on the backing store.
type KeyRepository interface {
	// Create inserts a new key record.
	Create(ctx context.Context, key *domain.Key) error

	// GetByID retrieves a key record by its identifier.
	// Returns domain.ErrKeyNotFound if no record exists.
	GetByID(ctx context.Context, id string) (*domain.Key, error)

	// ListByUsername returns every key record owned by username.
	ListByUsername(ctx context.Context, username string) ([]*domain.Key, error)

	// ExistsActiveByEmail checks if an Active key exists for email.
	ExistsActiveByEmail(ctx context.Context, email string) (bool, error)

	// UpdateState sets the state of a key record.
	UpdateState(ctx context.Context, id string, state domain.KeyState) error

	// MarkExpired transitions a record to Expired unless it already is.
	// Returns true only for the call that performed the transition.
	MarkExpired(ctx context.Context, id string) (bool, error)

	// ApplyUsage adds delta to the usage counter and sets the last response code.
	ApplyUsage(ctx context.Context, id string, delta int64, lastResponseCode string) error

	// Delete deletes a key record by ID.
	Delete(ctx context.Context, id string) error

	// DeleteByUsername deletes every key record owned by username.
	// Returns the number of records removed.
	DeleteByUsername(ctx context.Context, username string) (int64, error)
}

// =============================================================================
// Admin Repository
// =============================================================================

// AdminRepository defines the interface for administrator account access.
type AdminRepository interface {
	// Create inserts a new admin.
	Create(ctx context.Context, admin *domain.Admin) error

	// GetByUsername retrieves an admin by username.
	// Returns domain.ErrAdminNotFound if no admin exists.
	GetByUsername(ctx context.Context, username string) (*domain.Admin, error)

	// ListByUsername returns every admin with the given username.
	ListByUsername(ctx context.Context, username string) ([]*domain.Admin, error)

	// DeleteByUsername deletes every admin with the given username.
	DeleteByUsername(ctx context.Context, username string) (int64, error)
}

// =============================================================================
// Vehicle Repository
// =============================================================================

// VehicleRepository defines the interface for vehicle catalog access.
type VehicleRepository interface {
	// Create inserts a new vehicle.
	Create(ctx context.Context, vehicle *domain.Vehicle) error

	// CreateMany inserts several vehicles.
	CreateMany(ctx context.Context, vehicles []*domain.Vehicle) error

	// GetByID retrieves a vehicle by ID.
	// Returns domain.ErrVehicleNotFound if no vehicle exists.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)

	// Update replaces an existing vehicle.
	Update(ctx context.Context, vehicle *domain.Vehicle) error

	// Delete deletes a vehicle by ID.
	Delete(ctx context.Context, id string) error

	// List returns every vehicle.
	List(ctx context.Context) ([]*domain.Vehicle, error)

	// ListByFilter returns vehicles matching a single-attribute filter.
	ListByFilter(ctx context.Context, filter domain.VehicleFilter) ([]*domain.Vehicle, error)

	// ListTopBrands returns up to perBrand vehicles for each of the brandLimit
	// brands with the most vehicles, ordered by brand name.
	ListTopBrands(ctx context.Context, brandLimit, perBrand int) ([]*domain.Vehicle, error)
}
