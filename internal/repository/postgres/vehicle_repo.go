package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// vehicleRepository implements repository.VehicleRepository.
type vehicleRepository struct {
	db *DB
}

// NewVehicleRepository creates a new PostgreSQL vehicle repository.
func NewVehicleRepository(db *DB) repository.VehicleRepository {
	return &vehicleRepository{db: db}
}

const vehicleColumns = `vehicle_id, vehicle_type, brand, model, body_type, package, transmission,
	fuel_type, drive_type, engine_power, engine_capacity, year, is_classic, image_url`

var filterColumns = map[domain.VehicleField]string{
	domain.VehicleFieldType:     "vehicle_type",
	domain.VehicleFieldBrand:    "brand",
	domain.VehicleFieldFuelType: "fuel_type",
	domain.VehicleFieldBodyType: "body_type",
}

const insertVehicleSQL = `INSERT INTO vehicles (` + vehicleColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func vehicleArgs(v *domain.Vehicle) []any {
	return []any{
		v.VehicleID, v.VehicleType, v.Brand, v.Model, v.BodyType, v.Package, v.Transmission,
		v.FuelType, v.DriveType, v.EnginePower, v.EngineCapacity, v.Year, v.IsClassic, v.ImageURL,
	}
}

// Create inserts a new vehicle.
func (r *vehicleRepository) Create(ctx context.Context, v *domain.Vehicle) error {
	if _, err := r.db.Pool.Exec(ctx, insertVehicleSQL, vehicleArgs(v)...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: vehicle id already exists", repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

// CreateMany inserts several vehicles using a batch inside one transaction.
func (r *vehicleRepository) CreateMany(ctx context.Context, vehicles []*domain.Vehicle) error {
	return r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, v := range vehicles {
			batch.Queue(insertVehicleSQL, vehicleArgs(v)...)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for range vehicles {
			if _, err := results.Exec(); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: vehicle id already exists", repository.ErrDuplicate)
				}
				return fmt.Errorf("failed to create vehicle: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a vehicle by ID.
func (r *vehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE vehicle_id = $1`

	v, err := scanVehicle(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

// Update replaces an existing vehicle.
func (r *vehicleRepository) Update(ctx context.Context, v *domain.Vehicle) error {
	query := `
		UPDATE vehicles SET
			vehicle_type = $2, brand = $3, model = $4, body_type = $5, package = $6, transmission = $7,
			fuel_type = $8, drive_type = $9, engine_power = $10, engine_capacity = $11, year = $12,
			is_classic = $13, image_url = $14
		WHERE vehicle_id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, vehicleArgs(v)...)
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	return requireAffected(tag, domain.ErrVehicleNotFound)
}

// Delete deletes a vehicle by ID.
func (r *vehicleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM vehicles WHERE vehicle_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	return requireAffected(tag, domain.ErrVehicleNotFound)
}

// List returns every vehicle.
func (r *vehicleRepository) List(ctx context.Context) ([]*domain.Vehicle, error) {
	return r.query(ctx, `SELECT `+vehicleColumns+` FROM vehicles ORDER BY brand, model`)
}

// ListByFilter returns vehicles matching a single-attribute filter.
func (r *vehicleRepository) ListByFilter(ctx context.Context, filter domain.VehicleFilter) ([]*domain.Vehicle, error) {
	if filter.Classic != nil {
		return r.query(ctx,
			`SELECT `+vehicleColumns+` FROM vehicles WHERE is_classic = $1 ORDER BY brand, model`,
			*filter.Classic,
		)
	}

	column, ok := filterColumns[filter.Field]
	if !ok {
		return nil, fmt.Errorf("unsupported vehicle filter field %q", filter.Field)
	}

	return r.query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE `+column+` = $1 ORDER BY brand, model`,
		filter.Value,
	)
}

// ListTopBrands returns up to perBrand vehicles for each of the most common brands.
func (r *vehicleRepository) ListTopBrands(ctx context.Context, brandLimit, perBrand int) ([]*domain.Vehicle, error) {
	query := `
		WITH top_brands AS (
			SELECT brand FROM vehicles
			GROUP BY brand
			ORDER BY COUNT(*) DESC, brand
			LIMIT $1
		), ranked AS (
			SELECT v.*, ROW_NUMBER() OVER (PARTITION BY v.brand ORDER BY v.model) AS rn
			FROM vehicles v
			JOIN top_brands t ON t.brand = v.brand
		)
		SELECT ` + vehicleColumns + ` FROM ranked
		WHERE rn <= $2
		ORDER BY brand, model
	`
	return r.query(ctx, query, brandLimit, perBrand)
}

func (r *vehicleRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Vehicle, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vehicles: %w", err)
	}

	return vehicles, nil
}

func scanVehicle(row pgx.Row) (*domain.Vehicle, error) {
	v := &domain.Vehicle{}
	err := row.Scan(
		&v.VehicleID,
		&v.VehicleType,
		&v.Brand,
		&v.Model,
		&v.BodyType,
		&v.Package,
		&v.Transmission,
		&v.FuelType,
		&v.DriveType,
		&v.EnginePower,
		&v.EngineCapacity,
		&v.Year,
		&v.IsClassic,
		&v.ImageURL,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}
