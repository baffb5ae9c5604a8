package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/cache"
	"github.com/vehix/vehix-api/internal/domain"
)

const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

// SessionConfig contains admin session configuration.
type SessionConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Session is a freshly issued token pair.
type Session struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// Principal is the admin identity carried by a valid access token.
type Principal struct {
	AdminID   string
	Username  string
	Role      domain.Role
	ExpiresAt time.Time
}

// CheckResult is the outcome of a session check. Refreshed is set when the
// access token was missing and a new pair was issued from the refresh token.
type CheckResult struct {
	Principal *Principal
	Refreshed *Session
}

type sessionClaims struct {
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// SessionService issues and validates admin session tokens.
type SessionService struct {
	admins *AdminService
	tokens cache.TokenStore
	config SessionConfig
	secret []byte
	logger zerolog.Logger
	now    func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(admins *AdminService, tokens cache.TokenStore, logger zerolog.Logger, config SessionConfig) (*SessionService, error) {
	if len(config.Secret) < 32 {
		return nil, fmt.Errorf("%w: jwt secret must be at least 32 bytes", ErrInvalidInput)
	}
	if config.AccessTTL <= 0 {
		config.AccessTTL = 15 * time.Minute
	}
	if config.RefreshTTL <= 0 {
		config.RefreshTTL = 24 * time.Hour
	}
	return &SessionService{
		admins: admins,
		tokens: tokens,
		config: config,
		secret: []byte(config.Secret),
		logger: logger.With().Str("service", "session").Logger(),
		now:    time.Now,
	}, nil
}

// Login authenticates the admin and issues a token pair.
func (s *SessionService) Login(ctx context.Context, username, password string) (*Session, error) {
	admin, err := s.admins.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	session, err := s.issue(ctx, admin)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("username", admin.Username).Msg("administrator logged in")
	return session, nil
}

// Check validates the access token, or issues a new pair from the refresh
// token when no access token is present.
func (s *SessionService) Check(ctx context.Context, accessToken, refreshToken string) (*CheckResult, error) {
	if accessToken == "" {
		if refreshToken == "" {
			return nil, ErrNoSession
		}
		session, principal, err := s.Refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		return &CheckResult{Principal: principal, Refreshed: session}, nil
	}

	principal, err := s.Authorize(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &CheckResult{Principal: principal}, nil
}

// Authorize validates an access token for an admin-only route.
func (s *SessionService) Authorize(ctx context.Context, accessToken string) (*Principal, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}

	blacklisted, err := s.tokens.Exists(ctx, cache.BlacklistPrefix+accessToken)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check token blacklist")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if blacklisted {
		return nil, ErrTokenBlacklisted
	}

	claims, err := s.parse(accessToken, tokenKindAccess)
	if err != nil {
		return nil, err
	}
	if domain.Role(claims.Role) != domain.RoleAdmin {
		return nil, ErrNotAdmin
	}

	return &Principal{
		AdminID:   claims.Subject,
		Username:  claims.Username,
		Role:      domain.Role(claims.Role),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh rotates a refresh token. The old refresh token stops working.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Session, *Principal, error) {
	claims, err := s.parse(refreshToken, tokenKindRefresh)
	if err != nil {
		return nil, nil, err
	}

	username, err := s.tokens.Get(ctx, cache.RefreshTokenPrefix+refreshToken)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if username != claims.Username {
		return nil, nil, ErrSessionInvalid
	}

	admin, err := s.admins.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.tokens.Delete(ctx, cache.RefreshTokenPrefix+refreshToken); err != nil {
		s.logger.Warn().Err(err).Msg("failed to delete rotated refresh token")
	}

	session, err := s.issue(ctx, admin)
	if err != nil {
		return nil, nil, err
	}

	return session, &Principal{
		AdminID:   admin.ID,
		Username:  admin.Username,
		Role:      admin.Role,
		ExpiresAt: session.AccessExpires,
	}, nil
}

// Logout blacklists the access token for the rest of its lifetime and drops
// the refresh token.
func (s *SessionService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if refreshToken == "" {
		return ErrNoSession
	}

	if accessToken != "" {
		if exp, ok := s.expiry(accessToken); ok {
			if ttl := exp.Sub(s.now()); ttl > 0 {
				if err := s.tokens.Set(ctx, cache.BlacklistPrefix+accessToken, "1", ttl); err != nil {
					s.logger.Error().Err(err).Msg("failed to blacklist access token")
					return fmt.Errorf("%w: %v", ErrInternalError, err)
				}
			}
		}
	}

	if err := s.tokens.Delete(ctx, cache.RefreshTokenPrefix+refreshToken); err != nil {
		s.logger.Error().Err(err).Msg("failed to delete refresh token")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Msg("administrator logged out")
	return nil
}

func (s *SessionService) issue(ctx context.Context, admin *domain.Admin) (*Session, error) {
	now := s.now()
	accessExp := now.Add(s.config.AccessTTL)
	refreshExp := now.Add(s.config.RefreshTTL)

	access, err := s.sign(admin, tokenKindAccess, string(admin.Role), now, accessExp)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(admin, tokenKindRefresh, "", now, refreshExp)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Set(ctx, cache.RefreshTokenPrefix+refresh, admin.Username, s.config.RefreshTTL); err != nil {
		s.logger.Error().Err(err).Msg("failed to store refresh token")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &Session{
		AccessToken:    access,
		AccessExpires:  accessExp,
		RefreshToken:   refresh,
		RefreshExpires: refreshExp,
	}, nil
}

func (s *SessionService) sign(admin *domain.Admin, kind, role string, now, exp time.Time) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	claims := sessionClaims{
		Username: admin.Username,
		Role:     role,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			Subject:   admin.ID,
			Issuer:    s.config.Issuer,
			Audience:  jwt.ClaimStrings{s.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sign token: %v", ErrInternalError, err)
	}
	return signed, nil
}

func (s *SessionService) parse(tokenStr, kind string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithAudience(s.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrSessionInvalid
	}
	if claims.Kind != kind {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// expiry reads exp from a token signed by us without validating time claims.
func (s *SessionService) expiry(tokenStr string) (time.Time, bool) {
	claims := &sessionClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if _, err := parser.ParseWithClaims(tokenStr, claims, s.keyFunc); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (s *SessionService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return s.secret, nil
}
