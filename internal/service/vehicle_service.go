package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// Frontend showcase limits.
const (
	LimitedBrandCount       = 20
	LimitedVehiclesPerBrand = 5
)

// VehicleService handles vehicle catalog operations.
type VehicleService struct {
	vehicleRepo repository.VehicleRepository
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewVehicleService creates a new VehicleService.
func NewVehicleService(vehicleRepo repository.VehicleRepository, logger zerolog.Logger) *VehicleService {
	return &VehicleService{
		vehicleRepo: vehicleRepo,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With().Str("service", "vehicle").Logger(),
	}
}

// Create validates and inserts a vehicle.
func (s *VehicleService) Create(ctx context.Context, req *domain.VehicleRequest) (*domain.Vehicle, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	v := req.ToVehicle(domain.NewID())
	if err := s.vehicleRepo.Create(ctx, v); err != nil {
		s.logger.Error().Err(err).Msg("failed to create vehicle")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Str("vehicle_id", v.VehicleID).Str("brand", v.Brand).Msg("vehicle created")
	return v, nil
}

// CreateMany validates every request before inserting any of them.
func (s *VehicleService) CreateMany(ctx context.Context, reqs []*domain.VehicleRequest) (int, error) {
	if len(reqs) == 0 {
		return 0, fmt.Errorf("%w: no vehicles in request", ErrInvalidInput)
	}

	vehicles := make([]*domain.Vehicle, 0, len(reqs))
	for i, req := range reqs {
		if err := s.validateRequest(req); err != nil {
			return 0, domain.NewDomainError(err, "bulk request rejected", fmt.Sprintf("item %d", i))
		}
		vehicles = append(vehicles, req.ToVehicle(domain.NewID()))
	}

	if err := s.vehicleRepo.CreateMany(ctx, vehicles); err != nil {
		s.logger.Error().Err(err).Int("count", len(vehicles)).Msg("failed to create vehicles")
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Int("count", len(vehicles)).Msg("vehicles created")
	return len(vehicles), nil
}

// Get retrieves a vehicle by ID.
func (s *VehicleService) Get(ctx context.Context, id string) (*domain.Vehicle, error) {
	if !domain.IsValidID(id) {
		return nil, domain.ErrInvalidVehicleID
	}
	v, err := s.vehicleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, "get")
	}
	return v, nil
}

// Update replaces a vehicle's attributes. The image URL is kept.
func (s *VehicleService) Update(ctx context.Context, id string, req *domain.VehicleRequest) (*domain.Vehicle, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := req.ToVehicle(id)
	updated.ImageURL = existing.ImageURL

	if err := s.vehicleRepo.Update(ctx, updated); err != nil {
		return nil, s.mapError(err, "update")
	}

	s.logger.Info().Str("vehicle_id", id).Msg("vehicle updated")
	return updated, nil
}

// Delete deletes a vehicle by ID.
func (s *VehicleService) Delete(ctx context.Context, id string) error {
	if !domain.IsValidID(id) {
		return domain.ErrInvalidVehicleID
	}
	if err := s.vehicleRepo.Delete(ctx, id); err != nil {
		return s.mapError(err, "delete")
	}
	s.logger.Info().Str("vehicle_id", id).Msg("vehicle deleted")
	return nil
}

// List returns every vehicle. An empty catalog is ErrNoVehicles.
func (s *VehicleService) List(ctx context.Context) ([]*domain.Vehicle, error) {
	vehicles, err := s.vehicleRepo.List(ctx)
	if err != nil {
		return nil, s.mapError(err, "list")
	}
	return nonEmpty(vehicles)
}

// ListByField returns vehicles whose field equals value. The value is
// normalized to the catalog's capitalization first.
func (s *VehicleService) ListByField(ctx context.Context, field domain.VehicleField, value string) ([]*domain.Vehicle, error) {
	value = domain.NormalizeFilterValue(value)
	if value == "" {
		return nil, domain.ErrEmptyFilter
	}

	vehicles, err := s.vehicleRepo.ListByFilter(ctx, domain.VehicleFilter{Field: field, Value: value})
	if err != nil {
		return nil, s.mapError(err, "filter")
	}
	if len(vehicles) == 0 {
		s.logger.Debug().Str("field", string(field)).Str("value", value).Msg("no vehicles for filter")
	}
	return nonEmpty(vehicles)
}

// ListClassic returns vehicles by their classic flag.
func (s *VehicleService) ListClassic(ctx context.Context, classic bool) ([]*domain.Vehicle, error) {
	vehicles, err := s.vehicleRepo.ListByFilter(ctx, domain.VehicleFilter{Classic: &classic})
	if err != nil {
		return nil, s.mapError(err, "filter")
	}
	return nonEmpty(vehicles)
}

// ListLimited returns the frontend showcase: a few vehicles from each of the
// most common brands.
func (s *VehicleService) ListLimited(ctx context.Context) ([]*domain.Vehicle, error) {
	vehicles, err := s.vehicleRepo.ListTopBrands(ctx, LimitedBrandCount, LimitedVehiclesPerBrand)
	if err != nil {
		return nil, s.mapError(err, "top brands")
	}
	return nonEmpty(vehicles)
}

func (s *VehicleService) validateRequest(req *domain.VehicleRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty vehicle", ErrInvalidInput)
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *VehicleService) mapError(err error, op string) error {
	if errors.Is(err, domain.ErrVehicleNotFound) {
		return err
	}
	s.logger.Error().Err(err).Str("operation", op).Msg("vehicle repository failure")
	return fmt.Errorf("%w: %v", ErrInternalError, err)
}

func nonEmpty(vehicles []*domain.Vehicle) ([]*domain.Vehicle, error) {
	if len(vehicles) == 0 {
		return nil, domain.ErrNoVehicles
	}
	return vehicles, nil
}
