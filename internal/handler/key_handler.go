package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/domain"
)

// KeyService runs the public key request workflow.
type KeyService interface {
	RequestKey(ctx context.Context, email string) error
	VerifyRequest(ctx context.Context, token string) (*domain.IssuedKey, error)
}

// KeyHandler serves the frontend-only key endpoints.
type KeyHandler struct {
	keys   KeyService
	logger zerolog.Logger
}

// NewKeyHandler creates a new key handler.
func NewKeyHandler(keys KeyService, logger zerolog.Logger) *KeyHandler {
	return &KeyHandler{
		keys:   keys,
		logger: logger.With().Str("handler", "key").Logger(),
	}
}

// VerifyResponse carries a newly issued key. The key is shown only here.
type VerifyResponse struct {
	Success bool              `json:"success"`
	Data    *domain.IssuedKey `json:"data"`
}

// Test handles GET /api/v1/keys/test. Reaching it proves the frontend key works.
func (h *KeyHandler) Test(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Request handles POST /api/v1/keys/request?user=.
func (h *KeyHandler) Request(w http.ResponseWriter, r *http.Request) {
	if err := h.keys.RequestKey(r.Context(), r.URL.Query().Get("user")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Verify handles POST /api/v1/keys/verify?token=.
func (h *KeyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	issued, err := h.keys.VerifyRequest(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Success: true, Data: issued})
}

func (h *KeyHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrKeyAlreadyActive),
		errors.Is(err, domain.ErrVerificationTokenInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("key request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
