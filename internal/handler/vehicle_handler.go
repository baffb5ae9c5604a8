package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/service"
)

// VehicleService is the catalog logic behind the vehicle endpoints.
type VehicleService interface {
	Create(ctx context.Context, req *domain.VehicleRequest) (*domain.Vehicle, error)
	CreateMany(ctx context.Context, reqs []*domain.VehicleRequest) (int, error)
	Get(ctx context.Context, id string) (*domain.Vehicle, error)
	Update(ctx context.Context, id string, req *domain.VehicleRequest) (*domain.Vehicle, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Vehicle, error)
	ListByField(ctx context.Context, field domain.VehicleField, value string) ([]*domain.Vehicle, error)
	ListClassic(ctx context.Context, classic bool) ([]*domain.Vehicle, error)
	ListLimited(ctx context.Context) ([]*domain.Vehicle, error)
}

// VehicleHandler serves the vehicle catalog.
type VehicleHandler struct {
	vehicles VehicleService
	logger   zerolog.Logger
}

// NewVehicleHandler creates a new vehicle handler.
func NewVehicleHandler(vehicles VehicleService, logger zerolog.Logger) *VehicleHandler {
	return &VehicleHandler{
		vehicles: vehicles,
		logger:   logger.With().Str("handler", "vehicle").Logger(),
	}
}

// BulkCreateResponse reports how many vehicles a bulk insert stored.
type BulkCreateResponse struct {
	Inserted int `json:"inserted"`
}

// =============================================================================
// Public catalog
// =============================================================================

// ListAll handles GET /api/v1/vehicles/all.
func (h *VehicleHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.vehicles.List(r.Context())
	h.respondList(w, vehicles, err)
}

// ListByType handles GET /api/v1/vehicles/query/vehicle-type/{vehicleType}
// and the admin variant.
func (h *VehicleHandler) ListByType(w http.ResponseWriter, r *http.Request) {
	h.listByField(w, r, domain.VehicleFieldType, "vehicleType")
}

// ListByBrand handles GET /api/v1/vehicles/query/brand/{brand}.
func (h *VehicleHandler) ListByBrand(w http.ResponseWriter, r *http.Request) {
	h.listByField(w, r, domain.VehicleFieldBrand, "brand")
}

// ListByFuelType handles GET /api/v1/vehicles/query/fuel-type/{fuelType}.
func (h *VehicleHandler) ListByFuelType(w http.ResponseWriter, r *http.Request) {
	h.listByField(w, r, domain.VehicleFieldFuelType, "fuelType")
}

// ListByBodyType handles GET /api/v1/vehicles/query/body-type/{bodyType}.
func (h *VehicleHandler) ListByBodyType(w http.ResponseWriter, r *http.Request) {
	h.listByField(w, r, domain.VehicleFieldBodyType, "bodyType")
}

// ListClassic handles GET /api/v1/vehicles/query/is-classic?isClassic=.
func (h *VehicleHandler) ListClassic(w http.ResponseWriter, r *http.Request) {
	classic, err := strconv.ParseBool(r.URL.Query().Get("isClassic"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "isClassic must be true or false")
		return
	}
	vehicles, err := h.vehicles.ListClassic(r.Context(), classic)
	h.respondList(w, vehicles, err)
}

// ListLimited handles GET /api/v1/vehicles/limited.
func (h *VehicleHandler) ListLimited(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.vehicles.ListLimited(r.Context())
	h.respondList(w, vehicles, err)
}

func (h *VehicleHandler) listByField(w http.ResponseWriter, r *http.Request, field domain.VehicleField, param string) {
	vehicles, err := h.vehicles.ListByField(r.Context(), field, chi.URLParam(r, param))
	h.respondList(w, vehicles, err)
}

// =============================================================================
// Administration
// =============================================================================

// Create handles POST /api/v1/vehicles.
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.VehicleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := h.vehicles.Create(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// CreateMany handles POST /api/v1/vehicles/bulk.
func (h *VehicleHandler) CreateMany(w http.ResponseWriter, r *http.Request) {
	var reqs []*domain.VehicleRequest
	if err := readJSON(r, &reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.vehicles.CreateMany(r.Context(), reqs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BulkCreateResponse{Inserted: n})
}

// Get handles GET /api/v1/vehicles/{vehicleId}.
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.vehicles.Get(r.Context(), chi.URLParam(r, "vehicleId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Update handles PUT /api/v1/vehicles/{vehicleId}.
func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.VehicleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := h.vehicles.Update(r.Context(), chi.URLParam(r, "vehicleId"), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Delete handles DELETE /api/v1/vehicles/{vehicleId}.
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.vehicles.Delete(r.Context(), chi.URLParam(r, "vehicleId")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Vehicle deleted"})
}

func (h *VehicleHandler) respondList(w http.ResponseWriter, vehicles []*domain.Vehicle, err error) {
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

// writeServiceError maps service errors to HTTP responses. Internal errors
// are logged and reported without detail.
func (h *VehicleHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoVehicles):
		writeError(w, http.StatusNotFound, "No vehicles found")
	case errors.Is(err, domain.ErrVehicleNotFound):
		writeError(w, http.StatusNotFound, "Vehicle not found")
	case errors.Is(err, domain.ErrInvalidVehicleID),
		errors.Is(err, domain.ErrEmptyFilter),
		errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("vehicle request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
