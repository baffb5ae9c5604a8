package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/cache"
	"github.com/vehix/vehix-api/internal/metrics"
	"github.com/vehix/vehix-api/internal/pkg/crypto"
)

// GatewayConfig contains configuration for the gateway middleware.
type GatewayConfig struct {
	// HeaderName is the request header carrying the external key.
	HeaderName string

	// RecordTimeout bounds the write of the final response code.
	RecordTimeout time.Duration
}

// Gateway authorizes requests by API key according to the requirement
// declared on each route.
type Gateway struct {
	validator *Validator
	cache     cache.UsageCache
	cfg       GatewayConfig
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// pending tracks response code writes still in flight.
	pending sync.WaitGroup
}

// NewGateway creates a new gateway.
func NewGateway(v *Validator, usage cache.UsageCache, cfg GatewayConfig, m *metrics.Metrics, logger zerolog.Logger) *Gateway {
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = DefaultRecordTimeout
	}
	return &Gateway{
		validator: v,
		cache:     usage,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With().Str("component", "gateway").Logger(),
	}
}

// Require returns the middleware enforcing req. It is attached once per
// route when the route table is built.
func (g *Gateway) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if req == RequireNone {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			external := r.Header.Get(g.cfg.HeaderName)
			if external == "" {
				g.metrics.ObserveAuth(req.String(), Outcome(ErrMissingKey))
				g.logger.Warn().
					Str("remote_addr", r.RemoteAddr).
					Str("path", r.URL.Path).
					Msg("api key was not provided")
				writeUnauthorized(w, msgMissingKey)
				return
			}

			kc, err := g.authorize(r, req, external)
			g.metrics.ObserveAuth(req.String(), Outcome(err))
			if err != nil {
				g.logger.Warn().
					Err(err).
					Str("key", crypto.Fingerprint(external)).
					Str("remote_addr", r.RemoteAddr).
					Str("path", r.URL.Path).
					Str("outcome", Outcome(err)).
					Msg("unauthorized client")
				writeUnauthorized(w, msgUnauthorized)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(WithKeyContext(r.Context(), kc)))

			g.recordResponse(r.Context(), external, ww.Status())
		})
	}
}

// authorize runs the fast path and falls back to full validation.
func (g *Gateway) authorize(r *http.Request, req Requirement, external string) (*KeyContext, error) {
	ctx := r.Context()
	kc := &KeyContext{Requirement: req}

	var expectedUserID string
	if req == RequireFrontend {
		// Origin gate runs before any cache or store work.
		if err := g.validator.CheckOrigin(r.Header.Get(OriginHeader)); err != nil {
			return nil, err
		}
		expectedUserID = g.validator.FrontendUserID()
	}

	hit, err := g.cache.CheckAndIncrement(ctx, external, expectedUserID)
	switch {
	case err != nil:
		g.metrics.ObserveCache("error")
		g.logger.Warn().Err(err).Msg("usage cache unavailable, validating against key store")
	case hit:
		g.metrics.ObserveCache("hit")
		kc.CacheHit = true
		kc.UserID = expectedUserID
		return kc, nil
	default:
		g.metrics.ObserveCache("miss")
	}

	var validateErr error
	switch req {
	case RequireFrontend:
		key, err := g.validator.ValidateFrontend(ctx, external, r.Header.Get(OriginHeader))
		if err == nil {
			kc.UserID = key.UserID
		}
		validateErr = err
	default:
		key, err := g.validator.ValidatePublic(ctx, external)
		if err == nil {
			kc.UserID = key.UserID
		}
		validateErr = err
	}
	if validateErr != nil {
		return nil, validateErr
	}
	return kc, nil
}

// recordResponse stores the final status code in the usage hash. It runs
// after the handler returned and does not delay the response.
func (g *Gateway) recordResponse(parent context.Context, external string, status int) {
	if status == 0 {
		status = http.StatusOK
	}

	g.pending.Add(1)
	go func() {
		defer g.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), g.cfg.RecordTimeout)
		defer cancel()

		if err := g.cache.RecordResponse(ctx, external, status); err != nil && !errors.Is(err, context.Canceled) {
			g.logger.Warn().
				Err(err).
				Str("key", crypto.Fingerprint(external)).
				Int("status", status).
				Msg("failed to record response code")
		}
	}()
}

// Wait blocks until every pending response code write finished.
func (g *Gateway) Wait() {
	g.pending.Wait()
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(msg))
}
