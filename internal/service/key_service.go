package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/auth"
	"github.com/vehix/vehix-api/internal/cache"
	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/lock"
	"github.com/vehix/vehix-api/internal/pkg/crypto"
	"github.com/vehix/vehix-api/internal/repository"
)

// KeyConfig contains key issuance configuration.
type KeyConfig struct {
	// Lifetime is how long a newly issued public key stays valid.
	Lifetime time.Duration

	// VerificationTTL is how long a verification token is accepted.
	VerificationTTL time.Duration
}

// DefaultKeyConfig returns sensible defaults.
func DefaultKeyConfig() KeyConfig {
	return KeyConfig{
		Lifetime:        30 * 24 * time.Hour,
		VerificationTTL: 15 * time.Minute,
	}
}

// FrontendKeyConfig describes the frontend key to bootstrap.
type FrontendKeyConfig struct {
	Username string
	UserID   string
	Email    string

	// Key is the full external key the frontend sends.
	Key string
}

// Bootstrap results.
const (
	BootstrapUnchanged = "unchanged"
	BootstrapCreated   = "created"
	BootstrapReplaced  = "replaced"
)

// KeyService handles API key issuance and lifecycle.
type KeyService struct {
	keyRepo  repository.KeyRepository
	tokens   cache.TokenStore
	notifier Notifier
	locker   lock.Locker
	validate *validator.Validate
	config   KeyConfig
	logger   zerolog.Logger
}

// NewKeyService creates a new KeyService.
func NewKeyService(
	keyRepo repository.KeyRepository,
	tokens cache.TokenStore,
	notifier Notifier,
	locker lock.Locker,
	logger zerolog.Logger,
	config KeyConfig,
) *KeyService {
	defaults := DefaultKeyConfig()
	if config.Lifetime <= 0 {
		config.Lifetime = defaults.Lifetime
	}
	if config.VerificationTTL <= 0 {
		config.VerificationTTL = defaults.VerificationTTL
	}
	return &KeyService{
		keyRepo:  keyRepo,
		tokens:   tokens,
		notifier: notifier,
		locker:   locker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		config:   config,
		logger:   logger.With().Str("service", "key").Logger(),
	}
}

// RequestKey starts the email verification workflow for a new public key.
// It is refused while the address already owns an Active key.
func (s *KeyService) RequestKey(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return domain.ErrInvalidEmail
	}

	exists, err := s.keyRepo.ExistsActiveByEmail(ctx, email)
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("failed to check active key")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return domain.ErrKeyAlreadyActive
	}

	token, err := crypto.GenerateToken(crypto.VerificationTokenBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.tokens.Set(ctx, cache.VerificationKeyPrefix+token, email, s.config.VerificationTTL); err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("failed to store verification token")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.notifier.SendVerification(ctx, email, token); err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("failed to send verification")
		_ = s.tokens.Delete(ctx, cache.VerificationKeyPrefix+token)
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Str("email", email).Msg("api key requested")
	return nil
}

// VerifyRequest consumes a verification token and issues the key.
func (s *KeyService) VerifyRequest(ctx context.Context, token string) (*domain.IssuedKey, error) {
	if token == "" {
		return nil, domain.ErrVerificationTokenInvalid
	}

	tokenKey := cache.VerificationKeyPrefix + token
	email, err := s.tokens.Get(ctx, tokenKey)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domain.ErrVerificationTokenInvalid
		}
		s.logger.Error().Err(err).Msg("failed to read verification token")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	// A token is single use even if issuance below fails.
	if err := s.tokens.Delete(ctx, tokenKey); err != nil {
		s.logger.Warn().Err(err).Msg("failed to delete verification token")
	}

	return s.Issue(ctx, email)
}

// Issue creates a new Active public key for email. The returned external key
// is the only copy of the secret.
func (s *KeyService) Issue(ctx context.Context, email string) (*domain.IssuedKey, error) {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, domain.ErrInvalidEmail
	}

	exists, err := s.keyRepo.ExistsActiveByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, domain.ErrKeyAlreadyActive
	}

	secret, err := crypto.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	hash, err := crypto.HashSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	username, _, _ := strings.Cut(email, "@")
	key := domain.NewKey(username, email, hash, s.config.Lifetime)

	if err := s.keyRepo.Create(ctx, key); err != nil {
		// A concurrent issuance for the same email won the unique index.
		if errors.Is(err, domain.ErrKeyAlreadyActive) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("email", email).Msg("failed to create api key")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("user_id", key.UserID).
		Str("username", key.Username).
		Time("expires", key.ExpirationDate).
		Msg("api key issued")

	return &domain.IssuedKey{
		UserID:         key.UserID,
		APIKey:         auth.JoinKey(secret, key.UserID),
		ExpirationDate: key.ExpirationDate,
	}, nil
}

// Get retrieves a key record by ID.
func (s *KeyService) Get(ctx context.Context, id string) (*domain.Key, error) {
	if !domain.IsValidID(id) {
		return nil, domain.ErrKeyNotFound
	}
	key, err := s.keyRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("user_id", id).Msg("failed to get api key")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return key, nil
}

// Suspend moves a key to Suspended. Cached validations stay usable until the
// usage hash expires.
func (s *KeyService) Suspend(ctx context.Context, id string) error {
	return s.setState(ctx, id, domain.KeyStateSuspended)
}

// Activate moves a key back to Active.
func (s *KeyService) Activate(ctx context.Context, id string) error {
	return s.setState(ctx, id, domain.KeyStateActive)
}

// Expire moves a key to Expired.
func (s *KeyService) Expire(ctx context.Context, id string) error {
	if !domain.IsValidID(id) {
		return domain.ErrKeyNotFound
	}
	changed, err := s.keyRepo.MarkExpired(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !changed {
		// Either already expired or absent.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	s.logger.Info().Str("user_id", id).Bool("changed", changed).Msg("api key expired")
	return nil
}

func (s *KeyService) setState(ctx context.Context, id string, state domain.KeyState) error {
	if !domain.IsValidID(id) {
		return domain.ErrKeyNotFound
	}
	if err := s.keyRepo.UpdateState(ctx, id, state); err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) || errors.Is(err, domain.ErrKeyAlreadyActive) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	s.logger.Info().Str("user_id", id).Str("state", string(state)).Msg("api key state changed")
	return nil
}

// BootstrapFrontend makes the key store hold exactly one record for the
// frontend username, matching cfg. When more than one record exists every
// record for the username is deleted first.
func (s *KeyService) BootstrapFrontend(ctx context.Context, cfg FrontendKeyConfig) (string, error) {
	if cfg.Username == "" || cfg.Key == "" || !domain.IsValidID(cfg.UserID) {
		return "", fmt.Errorf("%w: frontend username, user id and key are required", ErrBootstrapConfig)
	}
	dk, err := auth.SplitKey(cfg.Key)
	if err != nil {
		return "", fmt.Errorf("%w: frontend key is malformed", ErrBootstrapConfig)
	}
	if dk.IdentityRef != cfg.UserID {
		return "", fmt.Errorf("%w: frontend key does not encode user id %s", ErrBootstrapConfig, cfg.UserID)
	}

	var result string
	err = lock.WithLock(ctx, s.locker, lock.Keys.FrontendBootstrap(cfg.Username), time.Minute, lock.DefaultRetry, func(ctx context.Context) error {
		var err error
		result, err = s.bootstrapFrontend(ctx, cfg, dk.Secret)
		return err
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func (s *KeyService) bootstrapFrontend(ctx context.Context, cfg FrontendKeyConfig, secret string) (string, error) {
	existing, err := s.keyRepo.ListByUsername(ctx, cfg.Username)
	if err != nil {
		return "", fmt.Errorf("failed to list frontend keys: %w", err)
	}

	result := BootstrapCreated
	switch {
	case len(existing) > 1:
		n, err := s.keyRepo.DeleteByUsername(ctx, cfg.Username)
		if err != nil {
			return "", fmt.Errorf("failed to clear frontend keys: %w", err)
		}
		s.logger.Error().
			Str("username", cfg.Username).
			Int64("deleted", n).
			Msg("found more than one frontend key, cleared all keys to create a new one")
		result = BootstrapReplaced

	case len(existing) == 1:
		k := existing[0]
		if k.UserID == cfg.UserID && k.Email == cfg.Email && crypto.VerifySecret(k.SecretHash, secret) == nil {
			s.logger.Info().Str("username", cfg.Username).Msg("frontend key is valid")
			return BootstrapUnchanged, nil
		}
		if _, err := s.keyRepo.DeleteByUsername(ctx, cfg.Username); err != nil {
			return "", fmt.Errorf("failed to clear frontend key: %w", err)
		}
		s.logger.Error().Str("username", cfg.Username).Msg("frontend key does not match configuration, recreating")
		result = BootstrapReplaced
	}

	hash, err := crypto.HashSecret(secret)
	if err != nil {
		return "", err
	}

	key := &domain.Key{
		UserID:         cfg.UserID,
		Username:       cfg.Username,
		Email:          cfg.Email,
		SecretHash:     hash,
		CreatedAt:      time.Now().UTC(),
		ExpirationDate: domain.NeverExpires,
		State:          domain.KeyStateActive,
	}
	if err := s.keyRepo.Create(ctx, key); err != nil {
		return "", fmt.Errorf("failed to create frontend key: %w", err)
	}

	s.logger.Info().Str("username", cfg.Username).Str("result", result).Msg("frontend key bootstrapped")
	return result, nil
}
