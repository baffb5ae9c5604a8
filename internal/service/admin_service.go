package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/lock"
	"github.com/vehix/vehix-api/internal/pkg/crypto"
	"github.com/vehix/vehix-api/internal/repository"
)

// AdminService manages the single administrator account.
type AdminService struct {
	adminRepo repository.AdminRepository
	locker    lock.Locker
	logger    zerolog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(adminRepo repository.AdminRepository, locker lock.Locker, logger zerolog.Logger) *AdminService {
	return &AdminService{
		adminRepo: adminRepo,
		locker:    locker,
		logger:    logger.With().Str("service", "admin").Logger(),
	}
}

// Bootstrap makes the store hold exactly one administrator named username
// with the given password.
func (s *AdminService) Bootstrap(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", fmt.Errorf("%w: admin username and password are required", ErrBootstrapConfig)
	}

	var result string
	err := lock.WithLock(ctx, s.locker, lock.Keys.AdminBootstrap(username), time.Minute, lock.DefaultRetry, func(ctx context.Context) error {
		var err error
		result, err = s.bootstrap(ctx, username, password)
		return err
	})
	return result, err
}

func (s *AdminService) bootstrap(ctx context.Context, username, password string) (string, error) {
	existing, err := s.adminRepo.ListByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("failed to list admins: %w", err)
	}

	result := BootstrapCreated
	switch {
	case len(existing) > 1:
		if _, err := s.adminRepo.DeleteByUsername(ctx, username); err != nil {
			return "", fmt.Errorf("failed to clear admins: %w", err)
		}
		s.logger.Error().Str("username", username).Msg("found more than one administrator, cleared all to create a new one")
		result = BootstrapReplaced

	case len(existing) == 1:
		if crypto.VerifySecret(existing[0].PasswordHash, password) == nil {
			s.logger.Info().Str("username", username).Msg("administrator is valid")
			return BootstrapUnchanged, nil
		}
		if _, err := s.adminRepo.DeleteByUsername(ctx, username); err != nil {
			return "", fmt.Errorf("failed to clear admin: %w", err)
		}
		s.logger.Error().Str("username", username).Msg("administrator credentials changed, recreating")
		result = BootstrapReplaced
	}

	hash, err := crypto.HashSecret(password)
	if err != nil {
		return "", err
	}
	if err := s.adminRepo.Create(ctx, domain.NewAdmin(username, hash)); err != nil {
		return "", fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Info().Str("username", username).Str("result", result).Msg("administrator bootstrapped")
	return result, nil
}

// Authenticate verifies admin credentials.
func (s *AdminService) Authenticate(ctx context.Context, username, password string) (*domain.Admin, error) {
	admin, err := s.adminRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			// Don't expose whether the username exists.
			s.logger.Debug().Str("username", username).Msg("admin not found during authentication")
			return nil, domain.ErrInvalidCredentials
		}
		s.logger.Error().Err(err).Msg("failed to load admin")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := crypto.VerifySecret(admin.PasswordHash, password); err != nil {
		s.logger.Debug().Str("username", username).Msg("invalid password during authentication")
		return nil, domain.ErrInvalidCredentials
	}

	return admin, nil
}

// GetByUsername retrieves an admin by username.
func (s *AdminService) GetByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	return s.adminRepo.GetByUsername(ctx, username)
}
