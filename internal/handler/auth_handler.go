package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/service"
)

// SessionService manages admin sessions.
type SessionService interface {
	Login(ctx context.Context, username, password string) (*service.Session, error)
	Check(ctx context.Context, accessToken, refreshToken string) (*service.CheckResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Authorize(ctx context.Context, accessToken string) (*service.Principal, error)
}

// CookieConfig names the session cookies.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Secure      bool
}

// AuthHandler serves admin login, session check and logout.
type AuthHandler struct {
	sessions SessionService
	cookies  CookieConfig
	logger   zerolog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(sessions SessionService, cookies CookieConfig, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		cookies:  cookies,
		logger:   logger.With().Str("handler", "auth").Logger(),
	}
}

// LoginRequest is the admin login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse describes the current admin session.
type SessionResponse struct {
	Success   bool      `json:"success"`
	Username  string    `json:"username,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	session, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			h.logger.Debug().Str("username", req.Username).Msg("login failed")
			writeError(w, http.StatusBadRequest, "Invalid username or password")
			return
		}
		h.logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, SessionResponse{
		Success:   true,
		Username:  req.Username,
		ExpiresAt: session.AccessExpires,
	})
}

// Check handles GET /api/v1/auth/check. A missing access token is renewed
// from the refresh token.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Check(r.Context(), cookieValue(r, h.cookies.AccessName), cookieValue(r, h.cookies.RefreshName))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoSession):
			writeError(w, http.StatusUnauthorized, "No authentication token provided")
		case errors.Is(err, service.ErrInternalError):
			h.logger.Error().Err(err).Msg("session check failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
		default:
			writeError(w, http.StatusUnauthorized, "Invalid token")
		}
		return
	}

	if result.Refreshed != nil {
		h.setSessionCookies(w, result.Refreshed)
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Success:   true,
		Username:  result.Principal.Username,
		ExpiresAt: result.Principal.ExpiresAt,
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.Logout(r.Context(), cookieValue(r, h.cookies.AccessName), cookieValue(r, h.cookies.RefreshName))
	if err != nil {
		if errors.Is(err, service.ErrNoSession) {
			writeError(w, http.StatusBadRequest, "No authentication token provided")
			return
		}
		h.logger.Error().Err(err).Msg("logout failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Logged out"})
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, s *service.Session) {
	http.SetCookie(w, h.cookie(h.cookies.AccessName, s.AccessToken, s.AccessExpires))
	http.SetCookie(w, h.cookie(h.cookies.RefreshName, s.RefreshToken, s.RefreshExpires))
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{h.cookies.AccessName, h.cookies.RefreshName} {
		c := h.cookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *AuthHandler) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
