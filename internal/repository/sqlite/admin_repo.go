package sqlite

import (
	"context"
	"fmt"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// adminRepository implements repository.AdminRepository for SQLite.
type adminRepository struct {
	db *DB
}

// NewAdminRepository creates a new SQLite admin repository.
func NewAdminRepository(db *DB) repository.AdminRepository {
	return &adminRepository{db: db}
}

// Create inserts a new admin.
func (r *adminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	query := `
		INSERT INTO admins (id, username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		admin.ID,
		admin.Username,
		admin.PasswordHash,
		admin.Role,
		formatTime(admin.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: admin id already exists", repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}

	return nil
}

// GetByUsername retrieves an admin by username.
func (r *adminRepository) GetByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	admins, err := r.ListByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return nil, domain.ErrAdminNotFound
	}
	return admins[0], nil
}

// ListByUsername returns every admin with the given username.
func (r *adminRepository) ListByUsername(ctx context.Context, username string) ([]*domain.Admin, error) {
	query := `
		SELECT id, username, password_hash, role, created_at
		FROM admins
		WHERE username = ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []*domain.Admin
	for rows.Next() {
		admin := &domain.Admin{}
		var createdAt string
		if err := rows.Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &admin.Role, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		if admin.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		admins = append(admins, admin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admins: %w", err)
	}

	return admins, nil
}

// DeleteByUsername deletes every admin with the given username.
func (r *adminRepository) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM admins WHERE username = ?`, username)
	if err != nil {
		return 0, fmt.Errorf("failed to delete admins: %w", err)
	}
	return result.RowsAffected()
}
