// Package app wires the configured stores, caches and services together.
// It is shared by the server and the admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/auth"
	"github.com/vehix/vehix-api/internal/cache"
	"github.com/vehix/vehix-api/internal/cache/memory"
	rediscache "github.com/vehix/vehix-api/internal/cache/redis"
	"github.com/vehix/vehix-api/internal/config"
	"github.com/vehix/vehix-api/internal/lock"
	"github.com/vehix/vehix-api/internal/metrics"
	"github.com/vehix/vehix-api/internal/repository"
	"github.com/vehix/vehix-api/internal/repository/backend"
	"github.com/vehix/vehix-api/internal/service"
)

// tokenCleanupInterval is how often the in-memory token store drops expired entries.
const tokenCleanupInterval = time.Minute

// App holds every long-lived component.
type App struct {
	Config   *config.Config
	Repos    *repository.Repositories
	Database repository.DatabaseHealth
	Metrics  *metrics.Metrics

	Usage       cache.UsageCache
	Expirations cache.ExpirationSource
	Tokens      cache.TokenStore
	Locker      lock.Locker

	Validator *auth.Validator
	Gateway   *auth.Gateway

	Keys       *service.KeyService
	Admins     *service.AdminService
	Sessions   *service.SessionService
	Vehicles   *service.VehicleService
	Reconciler *service.Reconciler

	logger  zerolog.Logger
	closers []func() error
}

// New connects to the key store and the cache and builds the services.
// Sessions stays nil when no JWT secret is configured.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		logger: logger,
	}
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	db, err := backend.Open(ctx, cfg.Database, backend.Options{Migrate: true}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}
	a.Repos = db.Repos
	a.Database = db.Database
	a.closers = append(a.closers, db.Database.Close)

	if err := a.openCache(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Validator = auth.NewValidator(a.Repos.Key, a.Usage, auth.Config{
		CacheTTL:     cfg.APIKey.CacheTTL,
		StoreTimeout: cfg.APIKey.StoreTimeout,
		Frontend: auth.FrontendIdentity{
			Origin:   cfg.APIKey.Frontend.Origin,
			Username: cfg.APIKey.Frontend.Username,
			UserID:   cfg.APIKey.Frontend.UserID,
			Email:    cfg.APIKey.Frontend.Email,
		},
	}, a.Metrics, logger)
	a.Gateway = auth.NewGateway(a.Validator, a.Usage, auth.GatewayConfig{
		HeaderName: cfg.APIKey.HeaderName,
	}, a.Metrics, logger)

	a.Keys = service.NewKeyService(a.Repos.Key, a.Tokens, service.NewLogNotifier(logger), a.Locker, logger, service.KeyConfig{
		Lifetime:        cfg.APIKey.KeyLifetime,
		VerificationTTL: cfg.APIKey.VerificationTTL,
	})
	a.Admins = service.NewAdminService(a.Repos.Admin, a.Locker, logger)
	a.Vehicles = service.NewVehicleService(a.Repos.Vehicle, logger)
	a.Reconciler = service.NewReconciler(a.Repos.Key, a.Usage, a.Expirations, a.Metrics, logger, service.ReconcilerConfig{
		Concurrency: cfg.Reconciler.Concurrency,
		Timeout:     cfg.Reconciler.Timeout,
	})

	if cfg.JWT.Secret != "" {
		a.Sessions, err = service.NewSessionService(a.Admins, a.Tokens, logger, service.SessionConfig{
			Secret:     cfg.JWT.Secret,
			Issuer:     cfg.JWT.Issuer,
			Audience:   cfg.JWT.Audience,
			AccessTTL:  cfg.JWT.AccessTTL,
			RefreshTTL: cfg.JWT.RefreshTTL,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("invalid jwt configuration: %w", err)
		}
	}

	return a, nil
}

// openCache selects Redis or the in-process cache.
func (a *App) openCache(ctx context.Context) error {
	cfg := a.Config

	if !cfg.Redis.Enabled {
		mem := memory.NewCache(cfg.APIKey.MarkerMargin, memory.DefaultSweepInterval, a.logger)
		a.Usage, a.Expirations = mem, mem
		a.Tokens = memory.NewTokenStore(tokenCleanupInterval)
		a.Locker = lock.NewMemoryLocker()
		a.closers = append(a.closers, func() error {
			mem.Stop()
			return nil
		})
		a.logger.Warn().Msg("redis disabled, using in-process cache (single instance only)")
		return nil
	}

	client, err := rediscache.NewClient(ctx, cfg.Redis, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)

	if cfg.Redis.ConfigureNotifications {
		if err := rediscache.EnableExpiredEvents(ctx, client); err != nil {
			// CONFIG SET is disabled on most managed Redis offerings.
			a.logger.Warn().Err(err).Msg("could not enable expired-key notifications")
		}
	}

	usage := rediscache.NewUsageCache(client, cfg.APIKey.MarkerMargin, a.logger)
	a.Usage, a.Expirations = usage, usage
	a.Tokens = rediscache.NewTokenStore(client)
	a.Locker = lock.NewRedisLocker(client)
	return nil
}

// Bootstrap provisions the frontend key and the administrator when they are
// configured.
func (a *App) Bootstrap(ctx context.Context) error {
	fe := a.Config.APIKey.Frontend
	if fe.Key != "" {
		result, err := a.Keys.BootstrapFrontend(ctx, service.FrontendKeyConfig{
			Username: fe.Username,
			UserID:   fe.UserID,
			Email:    fe.Email,
			Key:      fe.Key,
		})
		if err != nil {
			return fmt.Errorf("frontend key bootstrap failed: %w", err)
		}
		a.logger.Info().Str("result", result).Str("username", fe.Username).Msg("frontend key bootstrapped")
	}

	admin := a.Config.Admin
	if admin.Username != "" {
		result, err := a.Admins.Bootstrap(ctx, admin.Username, admin.Password)
		if err != nil {
			return fmt.Errorf("admin bootstrap failed: %w", err)
		}
		a.logger.Info().Str("result", result).Str("username", admin.Username).Msg("administrator bootstrapped")
	}

	return nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, goredis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
