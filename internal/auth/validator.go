package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/cache"
	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/metrics"
	"github.com/vehix/vehix-api/internal/pkg/crypto"
)

// KeyStore is the part of the key repository the validator needs.
type KeyStore interface {
	// GetByID retrieves a key record. Returns domain.ErrKeyNotFound when absent.
	GetByID(ctx context.Context, id string) (*domain.Key, error)

	// MarkExpired moves a record to Expired unless it already is.
	MarkExpired(ctx context.Context, id string) (bool, error)
}

// FrontendIdentity is the configured identity of the first-party client.
type FrontendIdentity struct {
	Origin   string
	Username string
	UserID   string
	Email    string
}

// Config contains configuration for the validator.
type Config struct {
	// CacheTTL is the lifetime of the usage hash primed after a successful
	// validation.
	CacheTTL time.Duration

	// StoreTimeout bounds each key store call.
	StoreTimeout time.Duration

	// Frontend identifies the frontend key.
	Frontend FrontendIdentity
}

// Validator decides whether an external key is valid.
type Validator struct {
	store   KeyStore
	cache   cache.UsageCache
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger

	now    func() time.Time
	verify func(hash, secret string) error
}

// NewValidator creates a new validator.
func NewValidator(store KeyStore, usage cache.UsageCache, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Validator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	return &Validator{
		store:   store,
		cache:   usage,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "validator").Logger(),
		now:     time.Now,
		verify:  crypto.VerifySecret,
	}
}

// FrontendUserID returns the configured frontend key record id.
func (v *Validator) FrontendUserID() string {
	return v.cfg.Frontend.UserID
}

// CheckOrigin reports whether origin is the configured frontend origin.
// An unconfigured origin matches nothing.
func (v *Validator) CheckOrigin(origin string) error {
	if origin == "" || v.cfg.Frontend.Origin == "" || origin != v.cfg.Frontend.Origin {
		return ErrOriginMismatch
	}
	return nil
}

// ValidatePublic validates a key for a public API route and primes the
// usage cache on success.
func (v *Validator) ValidatePublic(ctx context.Context, external string) (*domain.Key, error) {
	dk, err := SplitKey(external)
	if err != nil {
		return nil, err
	}

	key, err := v.lookup(ctx, dk.IdentityRef)
	if err != nil {
		return nil, err
	}

	now := v.now().UTC()
	if key.NeedsExpiry(now) {
		v.expire(ctx, key.UserID)
		return nil, ErrExpired
	}

	if !key.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrState, key.State)
	}

	if err := v.checkSecret(key, dk.Secret); err != nil {
		return nil, err
	}

	v.prime(ctx, external, key.UserID)
	return key, nil
}

// ValidateFrontend validates a key for a frontend-only route. The origin is
// checked before any store call.
func (v *Validator) ValidateFrontend(ctx context.Context, external, origin string) (*domain.Key, error) {
	if err := v.CheckOrigin(origin); err != nil {
		return nil, err
	}

	dk, err := SplitKey(external)
	if err != nil {
		return nil, err
	}

	key, err := v.lookup(ctx, dk.IdentityRef)
	if err != nil {
		return nil, err
	}

	id := v.cfg.Frontend
	if key.Username != id.Username || key.UserID != id.UserID || key.Email != id.Email {
		return nil, ErrIdentityMismatch
	}

	if !key.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrState, key.State)
	}

	if err := v.checkSecret(key, dk.Secret); err != nil {
		return nil, err
	}

	v.prime(ctx, external, key.UserID)
	return key, nil
}

// lookup fetches the record named by a decoded identity. Store failures
// fail closed.
func (v *Validator) lookup(ctx context.Context, id string) (*domain.Key, error) {
	if !domain.IsValidID(id) {
		return nil, ErrDecode
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.StoreTimeout)
	defer cancel()

	started := time.Now()
	key, err := v.store.GetByID(ctx, id)
	v.metrics.ObserveStore("get_key", started)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return key, nil
}

// expire persists the Expired state. The caller refuses the key whatever
// the outcome.
func (v *Validator) expire(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.StoreTimeout)
	defer cancel()

	started := time.Now()
	changed, err := v.store.MarkExpired(ctx, id)
	v.metrics.ObserveStore("mark_expired", started)
	if err != nil {
		v.logger.Error().Err(err).Str("user_id", id).Msg("failed to mark api key expired")
		return
	}
	if changed {
		v.logger.Info().Str("user_id", id).Msg("api key expired")
	}
}

func (v *Validator) checkSecret(key *domain.Key, secret string) error {
	if err := v.verify(key.SecretHash, secret); err != nil {
		if errors.Is(err, crypto.ErrHashMismatch) {
			return ErrSecretMismatch
		}
		return fmt.Errorf("%w: %v", ErrSecretMismatch, err)
	}
	return nil
}

// prime writes the usage hash. Failure only costs a store lookup on the
// next request, so it is logged and ignored.
func (v *Validator) prime(ctx context.Context, external, userID string) {
	if err := v.cache.Prime(ctx, external, userID, v.cfg.CacheTTL); err != nil {
		v.logger.Warn().
			Err(err).
			Str("key", crypto.Fingerprint(external)).
			Msg("failed to prime usage cache")
	}
}
