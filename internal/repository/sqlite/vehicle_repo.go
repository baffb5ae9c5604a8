package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// vehicleRepository implements repository.VehicleRepository for SQLite.
type vehicleRepository struct {
	db *DB
}

// NewVehicleRepository creates a new SQLite vehicle repository.
func NewVehicleRepository(db *DB) repository.VehicleRepository {
	return &vehicleRepository{db: db}
}

const vehicleColumns = `vehicle_id, vehicle_type, brand, model, body_type, package, transmission,
	fuel_type, drive_type, engine_power, engine_capacity, year, is_classic, image_url`

// filterColumns maps filterable fields to their columns.
var filterColumns = map[domain.VehicleField]string{
	domain.VehicleFieldType:     "vehicle_type",
	domain.VehicleFieldBrand:    "brand",
	domain.VehicleFieldFuelType: "fuel_type",
	domain.VehicleFieldBodyType: "body_type",
}

// Create inserts a new vehicle.
func (r *vehicleRepository) Create(ctx context.Context, v *domain.Vehicle) error {
	return insertVehicle(ctx, r.db.ExecContext, v)
}

// CreateMany inserts several vehicles in one transaction.
func (r *vehicleRepository) CreateMany(ctx context.Context, vehicles []*domain.Vehicle) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, v := range vehicles {
			if err := insertVehicle(ctx, tx.ExecContext, v); err != nil {
				return err
			}
		}
		return nil
	})
}

type execFunc func(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

func insertVehicle(ctx context.Context, exec execFunc, v *domain.Vehicle) error {
	query := `INSERT INTO vehicles (` + vehicleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := exec(ctx, query,
		v.VehicleID,
		v.VehicleType,
		v.Brand,
		v.Model,
		v.BodyType,
		v.Package,
		v.Transmission,
		v.FuelType,
		v.DriveType,
		nullString(v.EnginePower),
		nullString(v.EngineCapacity),
		v.Year,
		boolToInt(v.IsClassic),
		nullString(v.ImageURL),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: vehicle id already exists", repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

// GetByID retrieves a vehicle by ID.
func (r *vehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE vehicle_id = ?`

	v, err := scanVehicle(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVehicleNotFound
		}
		return nil, err
	}
	return v, nil
}

// Update replaces an existing vehicle.
func (r *vehicleRepository) Update(ctx context.Context, v *domain.Vehicle) error {
	query := `
		UPDATE vehicles SET
			vehicle_type = ?, brand = ?, model = ?, body_type = ?, package = ?, transmission = ?,
			fuel_type = ?, drive_type = ?, engine_power = ?, engine_capacity = ?, year = ?,
			is_classic = ?, image_url = ?
		WHERE vehicle_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		v.VehicleType,
		v.Brand,
		v.Model,
		v.BodyType,
		v.Package,
		v.Transmission,
		v.FuelType,
		v.DriveType,
		nullString(v.EnginePower),
		nullString(v.EngineCapacity),
		v.Year,
		boolToInt(v.IsClassic),
		nullString(v.ImageURL),
		v.VehicleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	return requireAffected(result, domain.ErrVehicleNotFound)
}

// Delete deletes a vehicle by ID.
func (r *vehicleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM vehicles WHERE vehicle_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	return requireAffected(result, domain.ErrVehicleNotFound)
}

// List returns every vehicle.
func (r *vehicleRepository) List(ctx context.Context) ([]*domain.Vehicle, error) {
	return r.query(ctx, `SELECT `+vehicleColumns+` FROM vehicles ORDER BY brand, model`)
}

// ListByFilter returns vehicles matching a single-attribute filter.
func (r *vehicleRepository) ListByFilter(ctx context.Context, filter domain.VehicleFilter) ([]*domain.Vehicle, error) {
	if filter.Classic != nil {
		return r.query(ctx,
			`SELECT `+vehicleColumns+` FROM vehicles WHERE is_classic = ? ORDER BY brand, model`,
			boolToInt(*filter.Classic),
		)
	}

	column, ok := filterColumns[filter.Field]
	if !ok {
		return nil, fmt.Errorf("unsupported vehicle filter field %q", filter.Field)
	}

	return r.query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE `+column+` = ? ORDER BY brand, model`,
		filter.Value,
	)
}

// ListTopBrands returns up to perBrand vehicles for each of the most common brands.
func (r *vehicleRepository) ListTopBrands(ctx context.Context, brandLimit, perBrand int) ([]*domain.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT brand FROM vehicles GROUP BY brand ORDER BY COUNT(*) DESC, brand LIMIT ?`,
		brandLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rank brands: %w", err)
	}

	var brands []string
	for rows.Next() {
		var brand string
		if err := rows.Scan(&brand); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan brand: %w", err)
		}
		brands = append(brands, brand)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating brands: %w", err)
	}

	sort.Strings(brands)

	var out []*domain.Vehicle
	for _, brand := range brands {
		vehicles, err := r.query(ctx,
			`SELECT `+vehicleColumns+` FROM vehicles WHERE brand = ? ORDER BY model LIMIT ?`,
			brand, perBrand,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, vehicles...)
	}

	return out, nil
}

func (r *vehicleRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vehicles: %w", err)
	}

	return vehicles, nil
}

func scanVehicle(row rowScanner) (*domain.Vehicle, error) {
	v := &domain.Vehicle{}
	var enginePower, engineCapacity, imageURL sql.NullString
	var isClassic int

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
		&enginePower,
		&engineCapacity,
		&v.Year,
		&isClassic,
		&imageURL,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan vehicle: %w", err)
	}

	v.EnginePower = scanNullString(enginePower)
	v.EngineCapacity = scanNullString(engineCapacity)
	v.ImageURL = scanNullString(imageURL)
	v.IsClassic = isClassic != 0

	return v, nil
}
