package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Vehicle represents a catalog entry.
// JSON field names follow the public API contract consumed by the web client.
type Vehicle struct {
	VehicleID      string  `json:"VehicleId"`
	VehicleType    string  `json:"VehicleType"`
	Brand          string  `json:"Brand"`
	Model          string  `json:"Model"`
	BodyType       string  `json:"BodyType"`
	Package        string  `json:"Package"`
	Transmission   string  `json:"Transmission"`
	FuelType       string  `json:"FuelType"`
	DriveType      string  `json:"DriveType"`
	EnginePower    *string `json:"EnginePower"`
	EngineCapacity *string `json:"EngineCapacity"`
	Year           string  `json:"Year"`
	IsClassic      bool    `json:"IsClassic"`
	ImageURL       *string `json:"ImageUrl"`
}

// VehicleRequest is the input accepted by the create and update endpoints.
type VehicleRequest struct {
	VehicleType    string  `json:"VehicleType" validate:"required,max=100"`
	Brand          string  `json:"Brand" validate:"required,max=100"`
	Model          string  `json:"Model" validate:"required,max=100"`
	BodyType       string  `json:"BodyType" validate:"required,max=50"`
	Package        string  `json:"Package" validate:"required,max=50"`
	Transmission   string  `json:"Transmission" validate:"required,max=50"`
	FuelType       string  `json:"FuelType" validate:"required,max=50"`
	DriveType      string  `json:"DriveType" validate:"required,max=50"`
	EnginePower    *string `json:"EnginePower" validate:"omitempty,max=4"`
	EngineCapacity *string `json:"EngineCapacity" validate:"omitempty,max=5"`
	Year           string  `json:"Year" validate:"required,max=4"`
	IsClassic      bool    `json:"IsClassic"`
}

// ToVehicle builds a Vehicle from the request under the given id.
func (r *VehicleRequest) ToVehicle(id string) *Vehicle {
	return &Vehicle{
		VehicleID:      id,
		VehicleType:    r.VehicleType,
		Brand:          r.Brand,
		Model:          r.Model,
		BodyType:       r.BodyType,
		Package:        r.Package,
		Transmission:   r.Transmission,
		FuelType:       r.FuelType,
		DriveType:      r.DriveType,
		EnginePower:    r.EnginePower,
		EngineCapacity: r.EngineCapacity,
		Year:           r.Year,
		IsClassic:      r.IsClassic,
	}
}

// VehicleField names a filterable vehicle attribute.
type VehicleField string

const (
	VehicleFieldType     VehicleField = "VehicleType"
	VehicleFieldBrand    VehicleField = "Brand"
	VehicleFieldFuelType VehicleField = "FuelType"
	VehicleFieldBodyType VehicleField = "BodyType"
)

// VehicleFilter selects vehicles by a single attribute.
// Exactly one of Field/Value or Classic is set.
type VehicleFilter struct {
	Field   VehicleField
	Value   string
	Classic *bool
}

// NormalizeFilterValue capitalizes the first letter and lowercases the rest,
// matching how catalog values are stored ("diesel" -> "Diesel").
func NormalizeFilterValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	r, size := utf8.DecodeRuneInString(value)
	return string(unicode.ToUpper(r)) + strings.ToLower(value[size:])
}
