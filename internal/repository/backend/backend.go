// Package backend opens the configured key store backend.
package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/config"
	"github.com/vehix/vehix-api/internal/repository"
	"github.com/vehix/vehix-api/internal/repository/mongo"
	"github.com/vehix/vehix-api/internal/repository/postgres"
	"github.com/vehix/vehix-api/internal/repository/sqlite"
)

// Options controls what Open does besides connecting.
type Options struct {
	// Migrate applies pending schema migrations (SQL backends) or creates
	// indexes (MongoDB) after connecting.
	Migrate bool
}

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts Options, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	logger = logger.With().Str("driver", cfg.Driver).Logger()

	switch cfg.Driver {
	case "mongo":
		db, err := mongo.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := db.EnsureIndexes(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &repository.CreateRepositoriesResult{Repos: mongo.NewRepositories(db), Database: db}, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &repository.CreateRepositoriesResult{Repos: postgres.NewRepositories(db), Database: db}, nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, SQLiteConfig(cfg), logger)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &repository.CreateRepositoriesResult{Repos: sqlite.NewRepositories(db), Database: db}, nil

	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrUnsupportedDriver, cfg.Driver)
	}
}

// SQLiteConfig converts the shared database settings to SQLite settings.
func SQLiteConfig(cfg config.DatabaseConfig) sqlite.Config {
	sc := sqlite.DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		sc.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		sc.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		sc.CacheSize = cfg.CacheSize
	}
	if cfg.SynchronousMode != "" {
		sc.SynchronousMode = cfg.SynchronousMode
	}
	return sc
}

// Migrator is implemented by backends with versioned schema migrations.
type Migrator interface {
	Migrate(ctx context.Context) error
	CurrentVersion(ctx context.Context) (int, error)
}

// OpenMigrator connects to a SQL backend without creating repositories.
// MongoDB has no schema versions and returns an error.
func OpenMigrator(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (Migrator, func() error, int, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, nil, 0, err
		}
		latest, err := postgres.LatestVersion()
		if err != nil {
			_ = db.Close()
			return nil, nil, 0, err
		}
		return db, db.Close, latest, nil
	case "sqlite":
		db, err := sqlite.NewDB(ctx, SQLiteConfig(cfg), logger)
		if err != nil {
			return nil, nil, 0, err
		}
		latest, err := sqlite.LatestVersion()
		if err != nil {
			_ = db.Close()
			return nil, nil, 0, err
		}
		return db, db.Close, latest, nil
	default:
		return nil, nil, 0, fmt.Errorf("%w: %q has no schema migrations", repository.ErrUnsupportedDriver, cfg.Driver)
	}
}
