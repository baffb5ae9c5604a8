package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vehix/vehix-api/internal/domain"
)

// setupTestDB connects to the database named by VEHIX_TEST_POSTGRES_DSN.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL test in short mode")
	}
	dsn := os.Getenv("VEHIX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VEHIX_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)

	db := &DB{Pool: pool, logger: zerolog.Nop()}
	require.NoError(t, db.Migrate(ctx))

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `TRUNCATE api_keys, admins, vehicles`)
		_ = db.Close()
	})
	return db
}

func TestKeyRepository_MarkExpiredAndUsage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKeyRepository(db)
	ctx := context.Background()

	key := domain.NewKey("pg-user", "pg@example.com", "hash", -time.Minute)
	require.NoError(t, repo.Create(ctx, key))

	changed, err := repo.MarkExpired(ctx, key.UserID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkExpired(ctx, key.UserID)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, repo.ApplyUsage(ctx, key.UserID, 5, "200"))

	got, err := repo.GetByID(ctx, key.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStateExpired, got.State)
	assert.Equal(t, int64(5), got.UsageCount)
	assert.Equal(t, "200", got.LastResponseCode)
}

func TestVehicleRepository_ListTopBrands(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVehicleRepository(db)
	ctx := context.Background()

	var vehicles []*domain.Vehicle
	for _, brand := range []string{"Volvo", "Volvo", "Volvo", "Audi", "Audi", "Fiat"} {
		vehicles = append(vehicles, &domain.Vehicle{
			VehicleID: domain.NewID(), VehicleType: "Car", Brand: brand, Model: domain.NewID()[:6],
			BodyType: "Sedan", Package: "Base", Transmission: "Manual", FuelType: "Diesel",
			DriveType: "FWD", Year: "2020",
		})
	}
	require.NoError(t, repo.CreateMany(ctx, vehicles))

	got, err := repo.ListTopBrands(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "Audi", got[0].Brand)
	assert.Equal(t, "Volvo", got[3].Brand)
}
