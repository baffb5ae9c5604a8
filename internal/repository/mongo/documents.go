package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vehix/vehix-api/internal/domain"
)

// keyStates maps the stored enum ordinal to the domain state.
var keyStates = []domain.KeyState{
	domain.KeyStateDeleted,
	domain.KeyStateActive,
	domain.KeyStateExpired,
	domain.KeyStateSuspended,
	domain.KeyStateUnverified,
}

func stateOrdinal(s domain.KeyState) (int32, error) {
	for i, st := range keyStates {
		if st == s {
			return int32(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrInvalidKeyState, s)
}

func stateFromOrdinal(n int32) (domain.KeyState, error) {
	if n < 0 || int(n) >= len(keyStates) {
		return "", fmt.Errorf("%w: %d", domain.ErrInvalidKeyState, n)
	}
	return keyStates[n], nil
}

type keyDocument struct {
	ID               primitive.ObjectID `bson:"_id"`
	Username         string             `bson:"Username"`
	Email            string             `bson:"Email"`
	APIKey           string             `bson:"ApiKey"`
	CreatedAt        time.Time          `bson:"CreatedAt"`
	ExpirationDate   time.Time          `bson:"ExpirationDate"`
	UsageCount       int64              `bson:"UsageCount"`
	LastResponseCode string             `bson:"LastResponseCode"`
	State            int32              `bson:"State"`
}

func toKeyDocument(k *domain.Key) (*keyDocument, error) {
	id, err := primitive.ObjectIDFromHex(k.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid key id %q: %w", k.UserID, err)
	}
	state, err := stateOrdinal(k.State)
	if err != nil {
		return nil, err
	}
	return &keyDocument{
		ID:               id,
		Username:         k.Username,
		Email:            k.Email,
		APIKey:           k.SecretHash,
		CreatedAt:        k.CreatedAt,
		ExpirationDate:   k.ExpirationDate,
		UsageCount:       k.UsageCount,
		LastResponseCode: k.LastResponseCode,
		State:            state,
	}, nil
}

func (d *keyDocument) toDomain() (*domain.Key, error) {
	state, err := stateFromOrdinal(d.State)
	if err != nil {
		return nil, err
	}
	return &domain.Key{
		UserID:           d.ID.Hex(),
		Username:         d.Username,
		Email:            d.Email,
		SecretHash:       d.APIKey,
		CreatedAt:        d.CreatedAt.UTC(),
		ExpirationDate:   d.ExpirationDate.UTC(),
		UsageCount:       d.UsageCount,
		LastResponseCode: d.LastResponseCode,
		State:            state,
	}, nil
}

type adminDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Username  string             `bson:"Username"`
	Password  string             `bson:"Password"`
	Role      string             `bson:"Role"`
	CreatedAt time.Time          `bson:"CreatedAt,omitempty"`
}

func toAdminDocument(a *domain.Admin) (*adminDocument, error) {
	id, err := primitive.ObjectIDFromHex(a.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid admin id %q: %w", a.ID, err)
	}
	return &adminDocument{
		ID:        id,
		Username:  a.Username,
		Password:  a.PasswordHash,
		Role:      string(a.Role),
		CreatedAt: a.CreatedAt,
	}, nil
}

func (d *adminDocument) toDomain() *domain.Admin {
	return &domain.Admin{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.Password,
		Role:         domain.Role(d.Role),
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

type vehicleDocument struct {
	ID             primitive.ObjectID `bson:"_id"`
	VehicleType    string             `bson:"VehicleType"`
	Brand          string             `bson:"Brand"`
	Model          string             `bson:"Model"`
	BodyType       string             `bson:"BodyType"`
	Package        string             `bson:"Package"`
	Transmission   string             `bson:"Transmission"`
	FuelType       string             `bson:"FuelType"`
	DriveType      string             `bson:"DriveType"`
	EnginePower    *string            `bson:"EnginePower"`
	EngineCapacity *string            `bson:"EngineCapacity"`
	Year           string             `bson:"Year"`
	IsClassic      bool               `bson:"IsClassic"`
	ImageURL       *string            `bson:"ImageUrl"`
}

func toVehicleDocument(v *domain.Vehicle) (*vehicleDocument, error) {
	id, err := primitive.ObjectIDFromHex(v.VehicleID)
	if err != nil {
		return nil, domain.ErrInvalidVehicleID
	}
	return &vehicleDocument{
		ID:             id,
		VehicleType:    v.VehicleType,
		Brand:          v.Brand,
		Model:          v.Model,
		BodyType:       v.BodyType,
		Package:        v.Package,
		Transmission:   v.Transmission,
		FuelType:       v.FuelType,
		DriveType:      v.DriveType,
		EnginePower:    v.EnginePower,
		EngineCapacity: v.EngineCapacity,
		Year:           v.Year,
		IsClassic:      v.IsClassic,
		ImageURL:       v.ImageURL,
	}, nil
}

func (d *vehicleDocument) toDomain() *domain.Vehicle {
	return &domain.Vehicle{
		VehicleID:      d.ID.Hex(),
		VehicleType:    d.VehicleType,
		Brand:          d.Brand,
		Model:          d.Model,
		BodyType:       d.BodyType,
		Package:        d.Package,
		Transmission:   d.Transmission,
		FuelType:       d.FuelType,
		DriveType:      d.DriveType,
		EnginePower:    d.EnginePower,
		EngineCapacity: d.EngineCapacity,
		Year:           d.Year,
		IsClassic:      d.IsClassic,
		ImageURL:       d.ImageURL,
	}
}
