package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rafflio/platform/internal/domain"
)

// PgAdminUserRepository implements AdminUserRepository using pgx.
type PgAdminUserRepository struct{}

// NewPgAdminUserRepository creates a new PgAdminUserRepository.
func NewPgAdminUserRepository() *PgAdminUserRepository {
	return &PgAdminUserRepository{}
}

// FindByEmail returns an admin user by email, or nil if not found.
func (r *PgAdminUserRepository) FindByEmail(ctx context.Context, db DBTX, email string) (*domain.AdminUser, error) {
	row := db.QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, role, active, created_at, updated_at
		 FROM admin_users WHERE email = $1`, strings.ToLower(email))

	u := &domain.AdminUser{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new admin user. A duplicate email is a conflict.
func (r *PgAdminUserRepository) Create(ctx context.Context, db DBTX, user *domain.AdminUser) error {
	user.Email = strings.ToLower(user.Email)
	err := db.QueryRow(ctx,
		`INSERT INTO admin_users (id, email, password_hash, display_name, role, active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		user.ID, user.Email, user.PasswordHash, user.DisplayName, user.Role, user.Active,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return mapPgError("insert admin user", err)
	}
	return nil
}
