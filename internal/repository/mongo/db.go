// Package mongo provides the MongoDB key store and vehicle catalog.
// Documents keep the field layout of the existing Vehix collections so that
// the service can run against data written by earlier deployments.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vehix/vehix-api/internal/config"
	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// Collection names
const (
	KeysCollection     = "Keys"
	AdminsCollection   = "ApplicationUser"
	VehiclesCollection = "Vehicles"
)

// DB wraps a MongoDB client bound to one database.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

// NewDB connects to MongoDB and verifies the connection.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout)
	if cfg.MaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxOpenConns))
	}
	if cfg.ConnMaxIdleTime > 0 {
		opts.SetMaxConnIdleTime(cfg.ConnMaxIdleTime)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info().
		Str("database", cfg.Database).
		Msg("connected to MongoDB")

	return &DB{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

// Close disconnects the client.
func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db.logger.Info().Msg("closing MongoDB connection")
	return db.client.Disconnect(ctx)
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, readpref.Primary())
}

// Health checks the database connection health.
func (db *DB) Health(ctx context.Context) error {
	return db.Ping(ctx)
}

// Collection returns a handle to the named collection.
func (db *DB) Collection(name string) *mongo.Collection {
	return db.db.Collection(name)
}

// EnsureIndexes creates the secondary indexes used by the repositories.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	active, err := stateOrdinal(domain.KeyStateActive)
	if err != nil {
		return err
	}

	activeEmail := mongo.IndexModel{
		Keys:    bson.D{{Key: "Email", Value: 1}},
		Options: options.Index().SetName(activeEmailIndex).SetUnique(true).SetPartialFilterExpression(bson.M{"State": active}),
	}

	indexes := map[string][]mongo.IndexModel{
		KeysCollection: {
			{Keys: bson.D{{Key: "Username", Value: 1}}},
			{Keys: bson.D{{Key: "Email", Value: 1}, {Key: "State", Value: 1}}},
			activeEmail,
		},
		AdminsCollection: {
			{Keys: bson.D{{Key: "Username", Value: 1}}},
		},
		VehiclesCollection: {
			{Keys: bson.D{{Key: "Brand", Value: 1}}},
			{Keys: bson.D{{Key: "VehicleType", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		names, err := db.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
		db.logger.Debug().Str("collection", coll).Strs("indexes", names).Msg("ensured indexes")
	}

	return nil
}

// NewRepositories creates every MongoDB repository over db.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Key:     NewKeyRepository(db),
		Admin:   NewAdminRepository(db),
		Vehicle: NewVehicleRepository(db),
	}
}
