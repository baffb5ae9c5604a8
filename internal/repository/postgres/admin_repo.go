package postgres

import (
	"context"
	"fmt"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// adminRepository implements repository.AdminRepository.
type adminRepository struct {
	db *DB
}

// NewAdminRepository creates a new PostgreSQL admin repository.
func NewAdminRepository(db *DB) repository.AdminRepository {
	return &adminRepository{db: db}
}

// Create inserts a new admin.
func (r *adminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	query := `
		INSERT INTO admins (id, username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		admin.ID,
		admin.Username,
		admin.PasswordHash,
		string(admin.Role),
		admin.CreatedAt,
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
		WHERE username = $1
		ORDER BY created_at
	`

	rows, err := r.db.Pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []*domain.Admin
	for rows.Next() {
		admin := &domain.Admin{}
		var role string
		if err := rows.Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &role, &admin.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admin.Role = domain.Role(role)
		admins = append(admins, admin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admins: %w", err)
	}

	return admins, nil
}

// DeleteByUsername deletes every admin with the given username.
func (r *adminRepository) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM admins WHERE username = $1`, username)
	if err != nil {
		return 0, fmt.Errorf("failed to delete admins: %w", err)
	}
	return tag.RowsAffected(), nil
}
