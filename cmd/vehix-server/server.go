package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/app"
	"github.com/vehix/vehix-api/internal/config"
	"github.com/vehix/vehix-api/internal/handler"
	"github.com/vehix/vehix-api/internal/supervisor"
)

// readHeaderTimeout bounds slow clients before the handler runs.
const readHeaderTimeout = 10 * time.Second

type server struct {
	app    *app.App
	tree   *supervisor.Tree
	logger zerolog.Logger
}

func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*server, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if a.Sessions == nil {
		_ = a.Close()
		return nil, errors.New("jwt.secret is required to serve the admin endpoints")
	}

	if err := a.Bootstrap(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	routerCfg := handler.RouterConfig{
		Vehicles: a.Vehicles,
		Keys:     a.Keys,
		Sessions: a.Sessions,
		Gateway:  a.Gateway,
		Metrics:  a.Metrics,
		Database: a.Database,
		Cookies: handler.CookieConfig{
			AccessName:  cfg.JWT.AccessCookieName,
			RefreshName: cfg.JWT.RefreshCookieName,
			Secure:      cfg.JWT.SecureCookies,
		},
		APIKeyHeader: cfg.APIKey.HeaderName,
		RateLimit:    cfg.RateLimit,
		MaxBodySize:  cfg.Server.MaxBodySize,
		Logger:       logger,
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddBackground(a.Reconciler)

	api := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler.NewRouter(routerCfg).Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	tree.AddAPI(supervisor.NewHTTPService("api", api, cfg.Server.ShutdownTimeout))
	logger.Info().Str("addr", api.Addr).Msg("HTTP server service added")

	if cfg.Metrics.Enabled && cfg.Metrics.Port > 0 {
		r := chi.NewRouter()
		r.Method(http.MethodGet, cfg.Metrics.Path, a.Metrics.Handler())
		metricsSrv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler:           r,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		tree.AddAPI(supervisor.NewHTTPService("metrics", metricsSrv, cfg.Server.ShutdownTimeout))
		logger.Info().Str("addr", metricsSrv.Addr).Msg("metrics server service added")
	}

	return &server{app: a, tree: tree, logger: logger}, nil
}

// serve runs the supervisor tree until ctx is cancelled.
func (s *server) serve(ctx context.Context) error {
	s.logger.Info().Msg("Starting supervisor tree...")
	errCh := s.tree.ServeBackground(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down server...")
		serveErr = <-errCh
	case serveErr = <-errCh:
	}
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}

	// Response codes still being written must land before the cache closes.
	s.app.Gateway.Wait()

	unstopped, _ := s.tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		s.logger.Warn().Str("service", svc.Name).Msg("service failed to stop")
	}

	if serveErr != nil {
		s.logger.Error().Err(serveErr).Msg("supervisor tree stopped")
		return serveErr
	}
	s.logger.Info().Msg("server stopped gracefully")
	return nil
}

func (s *server) close() {
	if err := s.app.Close(); err != nil {
		s.logger.Error().Err(err).Msg("failed to release resources")
	}
}
