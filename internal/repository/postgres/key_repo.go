package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// keyRepository implements repository.KeyRepository.
type keyRepository struct {
	db *DB
}

// NewKeyRepository creates a new PostgreSQL key repository.
func NewKeyRepository(db *DB) repository.KeyRepository {
	return &keyRepository{db: db}
}

const keyColumns = `user_id, username, email, secret_hash, created_at, expiration_date, usage_count, last_response_code, state`

// Create inserts a new key record.
func (r *keyRepository) Create(ctx context.Context, key *domain.Key) error {
	query := `INSERT INTO api_keys (` + keyColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Pool.Exec(ctx, query,
		key.UserID,
		key.Username,
		key.Email,
		key.SecretHash,
		key.CreatedAt,
		key.ExpirationDate,
		key.UsageCount,
		key.LastResponseCode,
		string(key.State),
	)
	if err != nil {
		if isActiveEmailViolation(err) {
			return domain.ErrKeyAlreadyActive
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: key id already exists", repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}

	return nil
}

// GetByID retrieves a key record by its identifier.
func (r *keyRepository) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE user_id = $1`

	key, err := scanKey(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return key, nil
}

// ListByUsername returns every key record owned by username.
func (r *keyRepository) ListByUsername(ctx context.Context, username string) ([]*domain.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE username = $1 ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*domain.Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}

	return keys, nil
}

// ExistsActiveByEmail checks if an Active key exists for email.
func (r *keyRepository) ExistsActiveByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM api_keys WHERE email = $1 AND state = $2)`

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, query, email, string(domain.KeyStateActive)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active api key: %w", err)
	}
	return exists, nil
}

// UpdateState sets the state of a key record.
func (r *keyRepository) UpdateState(ctx context.Context, id string, state domain.KeyState) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE api_keys SET state = $1 WHERE user_id = $2`, string(state), id)
	if err != nil {
		if isActiveEmailViolation(err) {
			return domain.ErrKeyAlreadyActive
		}
		return fmt.Errorf("failed to update api key state: %w", err)
	}
	return requireAffected(tag, domain.ErrKeyNotFound)
}

// MarkExpired transitions a record to Expired unless it already is.
func (r *keyRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE api_keys SET state = $1 WHERE user_id = $2 AND state <> $1`,
		string(domain.KeyStateExpired), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire api key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyUsage adds delta to the usage counter and sets the last response code.
func (r *keyRepository) ApplyUsage(ctx context.Context, id string, delta int64, lastResponseCode string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE api_keys SET usage_count = usage_count + $1, last_response_code = $2 WHERE user_id = $3`,
		delta, lastResponseCode, id,
	)
	if err != nil {
		return fmt.Errorf("failed to apply api key usage: %w", err)
	}
	return requireAffected(tag, domain.ErrKeyNotFound)
}

// Delete deletes a key record by ID.
func (r *keyRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM api_keys WHERE user_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	return requireAffected(tag, domain.ErrKeyNotFound)
}

// DeleteByUsername deletes every key record owned by username.
func (r *keyRepository) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM api_keys WHERE username = $1`, username)
	if err != nil {
		return 0, fmt.Errorf("failed to delete api keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanKey(row pgx.Row) (*domain.Key, error) {
	key := &domain.Key{}
	var state string

	err := row.Scan(
		&key.UserID,
		&key.Username,
		&key.Email,
		&key.SecretHash,
		&key.CreatedAt,
		&key.ExpirationDate,
		&key.UsageCount,
		&key.LastResponseCode,
		&state,
	)
	if err != nil {
		return nil, err
	}

	key.State = domain.KeyState(state)
	return key, nil
}
