package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/auth"
	"github.com/vehix/vehix-api/internal/config"
	"github.com/vehix/vehix-api/internal/metrics"
	"github.com/vehix/vehix-api/internal/middleware"
)

// APIPrefix is the versioned prefix of every API route.
const APIPrefix = "/api/v1"

// Router builds the HTTP route table.
type Router struct {
	vehicles *VehicleHandler
	keys     *KeyHandler
	auth     *AuthHandler
	sessions SessionService
	gateway  *auth.Gateway
	metrics  *metrics.Metrics
	config   RouterConfig
	logger   zerolog.Logger
}

// readyTimeout bounds the database check behind /ready.
const readyTimeout = 2 * time.Second

// DatabaseChecker reports whether the key store is reachable.
type DatabaseChecker interface {
	Health(ctx context.Context) error
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Vehicles VehicleService
	Keys     KeyService
	Sessions SessionService
	Gateway  *auth.Gateway
	Metrics  *metrics.Metrics
	Cookies  CookieConfig

	// Database backs the readiness check. Nil reports ready.
	Database DatabaseChecker

	// APIKeyHeader is the header the per-key rate limiter keys on.
	APIKeyHeader string

	RateLimit config.RateLimitConfig

	// MaxBodySize caps request bodies. Zero disables the cap.
	MaxBodySize int64

	// MetricsPath serves the metrics on this router when non-empty.
	MetricsPath string

	Logger zerolog.Logger
}

// route is one entry of the route table. Each route declares the key it
// requires, or that it needs an admin session.
type route struct {
	method  string
	pattern string
	require auth.Requirement
	admin   bool
	handler http.HandlerFunc
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = auth.DefaultHeaderName
	}
	return &Router{
		vehicles: NewVehicleHandler(config.Vehicles, config.Logger),
		keys:     NewKeyHandler(config.Keys, config.Logger),
		auth:     NewAuthHandler(config.Sessions, config.Cookies, config.Logger),
		sessions: config.Sessions,
		gateway:  config.Gateway,
		metrics:  config.Metrics,
		config:   config,
		logger:   config.Logger.With().Str("component", "router").Logger(),
	}
}

func (rt *Router) routes() []route {
	v, k, a := rt.vehicles, rt.keys, rt.auth
	return []route{
		// Public catalog
		{http.MethodGet, "/vehicles/all", auth.RequireAPIKey, false, v.ListAll},
		{http.MethodGet, "/vehicles/query/vehicle-type/{vehicleType}", auth.RequireAPIKey, false, v.ListByType},
		{http.MethodGet, "/vehicles/query/brand/{brand}", auth.RequireAPIKey, false, v.ListByBrand},
		{http.MethodGet, "/vehicles/query/fuel-type/{fuelType}", auth.RequireAPIKey, false, v.ListByFuelType},
		{http.MethodGet, "/vehicles/query/body-type/{bodyType}", auth.RequireAPIKey, false, v.ListByBodyType},
		{http.MethodGet, "/vehicles/query/is-classic", auth.RequireAPIKey, false, v.ListClassic},

		// Frontend only
		{http.MethodGet, "/vehicles/limited", auth.RequireFrontend, false, v.ListLimited},
		{http.MethodPost, "/keys/request", auth.RequireFrontend, false, k.Request},
		{http.MethodPost, "/keys/verify", auth.RequireFrontend, false, k.Verify},
		{http.MethodGet, "/keys/test", auth.RequireFrontend, false, k.Test},

		// Admin sessions
		{http.MethodPost, "/auth/login", auth.RequireNone, false, a.Login},
		{http.MethodGet, "/auth/check", auth.RequireNone, false, a.Check},
		{http.MethodPost, "/auth/logout", auth.RequireNone, false, a.Logout},

		// Catalog administration
		{http.MethodPost, "/vehicles", auth.RequireNone, true, v.Create},
		{http.MethodPost, "/vehicles/bulk", auth.RequireNone, true, v.CreateMany},
		{http.MethodGet, "/vehicles/admin", auth.RequireNone, true, v.ListAll},
		{http.MethodGet, "/vehicles/admin/{vehicleType}", auth.RequireNone, true, v.ListByType},
		{http.MethodGet, "/vehicles/{vehicleId}", auth.RequireNone, true, v.Get},
		{http.MethodPut, "/vehicles/{vehicleId}", auth.RequireNone, true, v.Update},
		{http.MethodDelete, "/vehicles/{vehicleId}", auth.RequireNone, true, v.Delete},
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(rt.logger, rt.metrics))
	r.Use(chimw.Recoverer)
	if rt.config.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(rt.config.MaxBodySize))
	}

	// Health check (no auth)
	r.Get("/health", rt.handleHealth)
	r.Get("/ready", rt.handleReady)
	if rt.config.MetricsPath != "" {
		r.Method(http.MethodGet, rt.config.MetricsPath, rt.metrics.Handler())
	}

	keyLimit, ipLimit := rt.limiters()
	adminOnly := middleware.RequireAdmin(rt.sessions, rt.config.Cookies.AccessName, rt.logger)

	r.Route(APIPrefix, func(r chi.Router) {
		for _, rte := range rt.routes() {
			var chain []func(http.Handler) http.Handler
			switch {
			case rte.admin:
				chain = append(chain, ipLimit, adminOnly)
			case rte.require == auth.RequireNone:
				chain = append(chain, ipLimit)
			default:
				chain = append(chain, keyLimit, rt.gateway.Require(rte.require))
			}
			r.With(chain...).Method(rte.method, rte.pattern, rte.handler)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// limiters returns the per-key and per-IP limiters. Each is created once so
// that every route shares its counters.
func (rt *Router) limiters() (byKey, byIP func(http.Handler) http.Handler) {
	cfg := rt.config.RateLimit
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return middleware.Passthrough, middleware.Passthrough
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return middleware.RateLimitByHeader(rt.config.APIKeyHeader, cfg.RequestsPerMinute, window),
		middleware.RateLimit(cfg.RequestsPerMinute, window)
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// handleReady reports 503 while the key store cannot be reached.
func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if db := rt.config.Database; db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := db.Health(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("key store health check failed")
			checks["database"] = "unavailable"
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
