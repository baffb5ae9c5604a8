package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vehix/vehix-api/internal/cache"
	"github.com/vehix/vehix-api/internal/cache/memory"
	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/lock"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func newSessionService(t *testing.T) (*SessionService, *memory.TokenStore) {
	t.Helper()
	admins := NewAdminService(NewMockAdminRepository(), lock.NewMemoryLocker(), zerolog.Nop())
	_, err := admins.Bootstrap(context.Background(), "root", "s3cret-pass")
	require.NoError(t, err)

	tokens := memory.NewTokenStore(time.Minute)
	svc, err := NewSessionService(admins, tokens, zerolog.Nop(), SessionConfig{
		Secret:     testJWTSecret,
		Issuer:     "vehix",
		Audience:   "vehix-admin",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	return svc, tokens
}

func TestNewSessionService_ShortSecret(t *testing.T) {
	_, err := NewSessionService(nil, nil, zerolog.Nop(), SessionConfig{Secret: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSessionService_LoginAndAuthorize(t *testing.T) {
	ctx := context.Background()
	svc, tokens := newSessionService(t)

	session, err := svc.Login(ctx, "root", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, session.AccessToken, session.RefreshToken)

	ok, err := tokens.Exists(ctx, cache.RefreshTokenPrefix+session.RefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := svc.Authorize(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "root", p.Username)
	assert.Equal(t, domain.RoleAdmin, p.Role)

	_, err = svc.Authorize(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionInvalid, "refresh token is not an access token")

	_, err = svc.Login(ctx, "root", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestSessionService_RejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t)

	claims := sessionClaims{
		Username: "root",
		Role:     string(domain.RoleAdmin),
		Kind:     tokenKindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "vehix",
			Audience:  jwt.ClaimStrings{"vehix-admin"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.Repeat("x", 32)))
	require.NoError(t, err)

	_, err = svc.Authorize(ctx, forged)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = svc.Authorize(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = svc.Authorize(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionService_ExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t)

	session, err := svc.Login(ctx, "root", "s3cret-pass")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = svc.Authorize(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestSessionService_CheckRefreshesWithoutAccessToken(t *testing.T) {
	ctx := context.Background()
	svc, tokens := newSessionService(t)

	session, err := svc.Login(ctx, "root", "s3cret-pass")
	require.NoError(t, err)

	res, err := svc.Check(ctx, "", session.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, res.Refreshed)
	assert.Equal(t, "root", res.Principal.Username)

	ok, _ := tokens.Exists(ctx, cache.RefreshTokenPrefix+session.RefreshToken)
	assert.False(t, ok, "old refresh token is rotated out")

	_, err = svc.Check(ctx, "", session.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	res, err = svc.Check(ctx, res.Refreshed.AccessToken, "")
	require.NoError(t, err)
	assert.Nil(t, res.Refreshed)

	_, err = svc.Check(ctx, "", "")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionService_Logout(t *testing.T) {
	ctx := context.Background()
	svc, tokens := newSessionService(t)

	session, err := svc.Login(ctx, "root", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, session.AccessToken, session.RefreshToken))

	_, err = svc.Authorize(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrTokenBlacklisted)

	ok, _ := tokens.Exists(ctx, cache.RefreshTokenPrefix+session.RefreshToken)
	assert.False(t, ok)

	_, _, err = svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	assert.ErrorIs(t, svc.Logout(ctx, session.AccessToken, ""), ErrNoSession)
}
