package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/cache"
	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/metrics"
	"github.com/vehix/vehix-api/internal/pkg/crypto"
)

// Reconciliation outcomes, also used as metric labels.
const (
	OutcomeApplied       = "applied"
	OutcomeMissingHash   = "missing_hash"
	OutcomeInvalidMarker = "invalid_marker"
	OutcomeInvalidUser   = "invalid_user"
	OutcomeCacheError    = "cache_error"
	OutcomeStoreError    = "store_error"
)

// UsageStore is the part of the key repository the reconciler writes to.
type UsageStore interface {
	ApplyUsage(ctx context.Context, id string, delta int64, lastResponseCode string) error
}

// ReconcilerConfig contains reconciler configuration.
type ReconcilerConfig struct {
	// Concurrency is the maximum number of reconciliations in flight.
	Concurrency int

	// Timeout bounds a single reconciliation.
	Timeout time.Duration
}

// DefaultReconcilerConfig returns sensible defaults.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Concurrency: 8,
		Timeout:     10 * time.Second,
	}
}

// Reconciler folds cached usage into the key store when a marker expires.
type Reconciler struct {
	store   UsageStore
	cache   cache.UsageCache
	source  cache.ExpirationSource
	config  ReconcilerConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(
	store UsageStore,
	usage cache.UsageCache,
	source cache.ExpirationSource,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config ReconcilerConfig,
) *Reconciler {
	defaults := DefaultReconcilerConfig()
	if config.Concurrency < 1 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &Reconciler{
		store:   store,
		cache:   usage,
		source:  source,
		config:  config,
		metrics: m,
		logger:  logger.With().Str("service", "reconciler").Logger(),
	}
}

// String names the service in supervisor logs.
func (r *Reconciler) String() string {
	return "reconciler"
}

// Serve consumes marker expirations until ctx is cancelled. In-flight
// reconciliations are allowed to finish within their own timeout.
// A closed subscription is returned as an error so the supervisor restarts it.
func (r *Reconciler) Serve(ctx context.Context) error {
	events, err := r.source.Expirations(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to expirations: %w", err)
	}

	r.logger.Info().
		Int("concurrency", r.config.Concurrency).
		Dur("timeout", r.config.Timeout).
		Msg("Starting expiration reconciler")

	sem := make(chan struct{}, r.config.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Expiration reconciler stopped")
			return ctx.Err()

		case marker, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSubscriptionClosed
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}

			wg.Add(1)
			go func(marker string) {
				defer wg.Done()
				defer func() { <-sem }()

				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.Timeout)
				defer cancel()
				r.Reconcile(rctx, marker)
			}(marker)
		}
	}
}

// Reconcile handles one expired marker. Every failure is logged and dropped;
// the usage hash is deleted whatever the outcome.
func (r *Reconciler) Reconcile(ctx context.Context, markerKey string) string {
	external, ok := cache.ExternalFromMarker(markerKey)
	if !ok {
		r.logger.Warn().Str("marker", markerKey).Msg("ignoring expiration outside the marker namespace")
		return r.finish(OutcomeInvalidMarker, 0)
	}

	logger := r.logger.With().Str("key", crypto.Fingerprint(external)).Logger()

	outcome, usage := r.apply(ctx, external, logger)

	if err := r.cache.Delete(ctx, external); err != nil {
		logger.Error().Err(err).Msg("failed to delete usage hash")
	}

	return r.finish(outcome, usage)
}

func (r *Reconciler) apply(ctx context.Context, external string, logger zerolog.Logger) (string, int64) {
	snap, err := r.cache.Snapshot(ctx, external)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			logger.Debug().Msg("usage hash already gone, nothing to reconcile")
			return OutcomeMissingHash, 0
		}
		logger.Error().Err(err).Msg("failed to read usage hash")
		return OutcomeCacheError, 0
	}

	if !domain.IsValidID(snap.UserID) {
		logger.Warn().
			Str("user_id", snap.UserID).
			Int64("usage", snap.UsageCount).
			Msg("usage hash carries a malformed user id, skipping")
		return OutcomeInvalidUser, 0
	}

	started := time.Now()
	err = r.store.ApplyUsage(ctx, snap.UserID, snap.UsageCount, snap.LastResponse)
	r.metrics.ObserveStore("apply_usage", started)
	if err != nil {
		logger.Error().
			Err(err).
			Str("user_id", snap.UserID).
			Int64("usage", snap.UsageCount).
			Msg("failed to apply usage to key store")
		return OutcomeStoreError, 0
	}

	logger.Info().
		Str("user_id", snap.UserID).
		Int64("usage", snap.UsageCount).
		Str("last_response", snap.LastResponse).
		Msg("usage reconciled")
	return OutcomeApplied, snap.UsageCount
}

func (r *Reconciler) finish(outcome string, usage int64) string {
	r.metrics.ObserveReconcile(outcome, usage)
	return outcome
}
