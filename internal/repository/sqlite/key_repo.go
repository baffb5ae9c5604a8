package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// keyRepository implements repository.KeyRepository for SQLite.
type keyRepository struct {
	db *DB
}

// NewKeyRepository creates a new SQLite key repository.
func NewKeyRepository(db *DB) repository.KeyRepository {
	return &keyRepository{db: db}
}

const keyColumns = `user_id, username, email, secret_hash, created_at, expiration_date, usage_count, last_response_code, state`

// Create inserts a new key record.
func (r *keyRepository) Create(ctx context.Context, key *domain.Key) error {
	query := `INSERT INTO api_keys (` + keyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		key.UserID,
		key.Username,
		key.Email,
		key.SecretHash,
		formatTime(key.CreatedAt),
		formatTime(key.ExpirationDate),
		key.UsageCount,
		key.LastResponseCode,
		key.State,
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
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE user_id = ?`
	return r.scanKey(r.db.QueryRowContext(ctx, query, id))
}

// ListByUsername returns every key record owned by username.
func (r *keyRepository) ListByUsername(ctx context.Context, username string) ([]*domain.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE username = ? ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*domain.Key
	for rows.Next() {
		key, err := r.scanKey(rows)
		if err != nil {
			return nil, err
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
	query := `SELECT EXISTS(SELECT 1 FROM api_keys WHERE email = ? AND state = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email, domain.KeyStateActive).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active api key: %w", err)
	}
	return exists, nil
}

// UpdateState sets the state of a key record.
func (r *keyRepository) UpdateState(ctx context.Context, id string, state domain.KeyState) error {
	result, err := r.db.ExecContext(ctx, `UPDATE api_keys SET state = ? WHERE user_id = ?`, state, id)
	if err != nil {
		if isActiveEmailViolation(err) {
			return domain.ErrKeyAlreadyActive
		}
		return fmt.Errorf("failed to update api key state: %w", err)
	}
	return requireAffected(result, domain.ErrKeyNotFound)
}

// MarkExpired transitions a record to Expired unless it already is.
func (r *keyRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET state = ? WHERE user_id = ? AND state <> ?`,
		domain.KeyStateExpired, id, domain.KeyStateExpired,
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire api key: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// ApplyUsage adds delta to the usage counter and sets the last response code.
func (r *keyRepository) ApplyUsage(ctx context.Context, id string, delta int64, lastResponseCode string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET usage_count = usage_count + ?, last_response_code = ? WHERE user_id = ?`,
		delta, lastResponseCode, id,
	)
	if err != nil {
		return fmt.Errorf("failed to apply api key usage: %w", err)
	}
	return requireAffected(result, domain.ErrKeyNotFound)
}

// Delete deletes a key record by ID.
func (r *keyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	return requireAffected(result, domain.ErrKeyNotFound)
}

// DeleteByUsername deletes every key record owned by username.
func (r *keyRepository) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE username = ?`, username)
	if err != nil {
		return 0, fmt.Errorf("failed to delete api keys: %w", err)
	}
	return result.RowsAffected()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanKey scans a single key row.
func (r *keyRepository) scanKey(row rowScanner) (*domain.Key, error) {
	key := &domain.Key{}
	var createdAt, expirationDate string

	err := row.Scan(
		&key.UserID,
		&key.Username,
		&key.Email,
		&key.SecretHash,
		&createdAt,
		&expirationDate,
		&key.UsageCount,
		&key.LastResponseCode,
		&key.State,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}

	if key.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if key.ExpirationDate, err = parseTime(expirationDate); err != nil {
		return nil, fmt.Errorf("failed to parse expiration_date: %w", err)
	}

	return key, nil
}

// requireAffected returns notFound when the statement touched no rows.
func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
