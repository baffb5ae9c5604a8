package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// adminRepository implements repository.AdminRepository for MongoDB.
type adminRepository struct {
	coll *mongo.Collection
}

// NewAdminRepository creates a new MongoDB admin repository.
func NewAdminRepository(db *DB) repository.AdminRepository {
	return &adminRepository{coll: db.Collection(AdminsCollection)}
}

// Create inserts a new admin.
func (r *adminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	doc, err := toAdminDocument(admin)
	if err != nil {
		return err
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: admin id already exists", repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

// GetByUsername retrieves an admin by username.
func (r *adminRepository) GetByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	var doc adminDocument
	if err := r.coll.FindOne(ctx, bson.M{"Username": username}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, domain.ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return doc.toDomain(), nil
}

// ListByUsername returns every admin with the given username.
func (r *adminRepository) ListByUsername(ctx context.Context, username string) ([]*domain.Admin, error) {
	cur, err := r.coll.Find(ctx, bson.M{"Username": username})
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}

	var docs []adminDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode admins: %w", err)
	}

	admins := make([]*domain.Admin, 0, len(docs))
	for i := range docs {
		admins = append(admins, docs[i].toDomain())
	}
	return admins, nil
}

// DeleteByUsername deletes every admin with the given username.
func (r *adminRepository) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"Username": username})
	if err != nil {
		return 0, fmt.Errorf("failed to delete admins: %w", err)
	}
	return res.DeletedCount, nil
}
