package postgres

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/repositories"
)

// UserRepository persists local user records in the users table.
type UserRepository struct {
	registry *Registry
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// Insert stores a new user row.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	_, err := r.registry.q(ctx).ExecContext(ctx, `
		INSERT INTO users (id, external_id, display_name, role, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.ExternalID, user.DisplayName, user.Role, user.Email, user.CreatedAt.UTC())
	if err != nil {
		return WrapError("user repository: insert", err)
	}
	return nil
}

// FindByID loads a user by its local identifier.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	return r.scanOne(ctx, `
		SELECT id, external_id, display_name, role, email, created_at
		FROM users WHERE id = $1`, userID)
}

// FindByExternalID loads a user by the identity provider subject.
func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	return r.scanOne(ctx, `
		SELECT id, external_id, display_name, role, email, created_at
		FROM users WHERE external_id = $1`, externalID)
}

func (r *UserRepository) scanOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var user domain.User
	err := r.registry.q(ctx).QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.ExternalID, &user.DisplayName, &user.Role, &user.Email, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, notFoundError("user repository: find")
	}
	if err != nil {
		return domain.User{}, WrapError("user repository: find", err)
	}
	return user, nil
}
