package mongo

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// vehicleRepository implements repository.VehicleRepository for MongoDB.
type vehicleRepository struct {
	coll *mongo.Collection
}

// NewVehicleRepository creates a new MongoDB vehicle repository.
func NewVehicleRepository(db *DB) repository.VehicleRepository {
	return &vehicleRepository{coll: db.Collection(VehiclesCollection)}
}

var byBrandModel = bson.D{{Key: "Brand", Value: 1}, {Key: "Model", Value: 1}}

// Create inserts a new vehicle.
func (r *vehicleRepository) Create(ctx context.Context, v *domain.Vehicle) error {
	doc, err := toVehicleDocument(v)
	if err != nil {
		return err
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: vehicle id already exists", repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

// CreateMany inserts several vehicles.
func (r *vehicleRepository) CreateMany(ctx context.Context, vehicles []*domain.Vehicle) error {
	if len(vehicles) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(vehicles))
	for _, v := range vehicles {
		doc, err := toVehicleDocument(v)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: vehicle id already exists", repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create vehicles: %w", err)
	}
	return nil
}

// GetByID retrieves a vehicle by ID.
func (r *vehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, domain.ErrVehicleNotFound
	}

	var doc vehicleDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, domain.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return doc.toDomain(), nil
}

// Update replaces an existing vehicle.
func (r *vehicleRepository) Update(ctx context.Context, v *domain.Vehicle) error {
	doc, err := toVehicleDocument(v)
	if err != nil {
		return err
	}

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrVehicleNotFound
	}
	return nil
}

// Delete deletes a vehicle by ID.
func (r *vehicleRepository) Delete(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return domain.ErrVehicleNotFound
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrVehicleNotFound
	}
	return nil
}

// List returns every vehicle.
func (r *vehicleRepository) List(ctx context.Context) ([]*domain.Vehicle, error) {
	return r.find(ctx, bson.M{}, options.Find().SetSort(byBrandModel))
}

// ListByFilter returns vehicles matching a single-attribute filter.
func (r *vehicleRepository) ListByFilter(ctx context.Context, filter domain.VehicleFilter) ([]*domain.Vehicle, error) {
	opts := options.Find().SetSort(byBrandModel)

	if filter.Classic != nil {
		return r.find(ctx, bson.M{"IsClassic": *filter.Classic}, opts)
	}

	switch filter.Field {
	case domain.VehicleFieldType, domain.VehicleFieldBrand, domain.VehicleFieldFuelType, domain.VehicleFieldBodyType:
		return r.find(ctx, bson.M{string(filter.Field): filter.Value}, opts)
	default:
		return nil, fmt.Errorf("unsupported vehicle filter field %q", filter.Field)
	}
}

// ListTopBrands returns up to perBrand vehicles for each of the most common brands.
func (r *vehicleRepository) ListTopBrands(ctx context.Context, brandLimit, perBrand int) ([]*domain.Vehicle, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$Brand"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: brandLimit}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to rank brands: %w", err)
	}

	var ranked []struct {
		Brand string `bson:"_id"`
	}
	if err := cur.All(ctx, &ranked); err != nil {
		return nil, fmt.Errorf("failed to decode brands: %w", err)
	}

	brands := make([]string, 0, len(ranked))
	for _, b := range ranked {
		brands = append(brands, b.Brand)
	}
	sort.Strings(brands)

	var out []*domain.Vehicle
	for _, brand := range brands {
		opts := options.Find().
			SetSort(bson.D{{Key: "Model", Value: 1}}).
			SetLimit(int64(perBrand))
		vehicles, err := r.find(ctx, bson.M{"Brand": brand}, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, vehicles...)
	}

	return out, nil
}

func (r *vehicleRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]*domain.Vehicle, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}

	var docs []vehicleDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode vehicles: %w", err)
	}

	vehicles := make([]*domain.Vehicle, 0, len(docs))
	for i := range docs {
		vehicles = append(vehicles, docs[i].toDomain())
	}
	return vehicles, nil
}
