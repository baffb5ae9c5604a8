package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// keyRepository implements repository.KeyRepository for MongoDB.
type keyRepository struct {
	coll *mongo.Collection
}

// NewKeyRepository creates a new MongoDB key repository.
func NewKeyRepository(db *DB) repository.KeyRepository {
	return &keyRepository{coll: db.Collection(KeysCollection)}
}

// Create inserts a new key record.
func (r *keyRepository) Create(ctx context.Context, key *domain.Key) error {
	doc, err := toKeyDocument(key)
	if err != nil {
		return err
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if isActiveEmailViolation(err) {
			return domain.ErrKeyAlreadyActive
		}
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: key id already exists", repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetByID retrieves a key record by its identifier.
func (r *keyRepository) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, domain.ErrKeyNotFound
	}

	var doc keyDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return doc.toDomain()
}

// ListByUsername returns every key record owned by username.
func (r *keyRepository) ListByUsername(ctx context.Context, username string) ([]*domain.Key, error) {
	opts := options.Find().SetSort(bson.D{{Key: "CreatedAt", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"Username": username}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}

	var docs []keyDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode api keys: %w", err)
	}

	keys := make([]*domain.Key, 0, len(docs))
	for i := range docs {
		key, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ExistsActiveByEmail checks if an Active key exists for email.
func (r *keyRepository) ExistsActiveByEmail(ctx context.Context, email string) (bool, error) {
	active, _ := stateOrdinal(domain.KeyStateActive)
	n, err := r.coll.CountDocuments(ctx, bson.M{"Email": email, "State": active}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check active api key: %w", err)
	}
	return n > 0, nil
}

// UpdateState sets the state of a key record.
func (r *keyRepository) UpdateState(ctx context.Context, id string, state domain.KeyState) error {
	oid, ok := objectID(id)
	if !ok {
		return domain.ErrKeyNotFound
	}
	ordinal, err := stateOrdinal(state)
	if err != nil {
		return err
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"State": ordinal}})
	if err != nil {
		if isActiveEmailViolation(err) {
			return domain.ErrKeyAlreadyActive
		}
		return fmt.Errorf("failed to update api key state: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrKeyNotFound
	}
	return nil
}

// MarkExpired transitions a record to Expired unless it already is.
func (r *keyRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	oid, ok := objectID(id)
	if !ok {
		return false, domain.ErrKeyNotFound
	}
	expired, _ := stateOrdinal(domain.KeyStateExpired)

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "State": bson.M{"$ne": expired}},
		bson.M{"$set": bson.M{"State": expired}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire api key: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// ApplyUsage adds delta to the usage counter and sets the last response code.
func (r *keyRepository) ApplyUsage(ctx context.Context, id string, delta int64, lastResponseCode string) error {
	oid, ok := objectID(id)
	if !ok {
		return domain.ErrKeyNotFound
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$inc": bson.M{"UsageCount": delta},
			"$set": bson.M{"LastResponseCode": lastResponseCode},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to apply api key usage: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrKeyNotFound
	}
	return nil
}

// Delete deletes a key record by ID.
func (r *keyRepository) Delete(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return domain.ErrKeyNotFound
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrKeyNotFound
	}
	return nil
}

// DeleteByUsername deletes every key record owned by username.
func (r *keyRepository) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"Username": username})
	if err != nil {
		return 0, fmt.Errorf("failed to delete api keys: %w", err)
	}
	return res.DeletedCount, nil
}
