// internal/repository/postgres/user_pg.go
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/util"
)

// UserRepository implements repository.UserRepository for PostgreSQL.
type UserRepository struct{}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(_ *sqlx.DB) repository.UserRepository {
	return &UserRepository{}
}

// GetUserByID retrieves a user by id.
func (r *UserRepository) GetUserByID(ctx context.Context, q repository.DBExecutor, id string) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, email, display_name, role, is_active, is_blocked, created_at, updated_at
              FROM users WHERE id = $1`
	if err := q.GetContext(ctx, &user, query, id); err != nil {
		return nil, mapError("get user", err, util.ErrUserNotFound)
	}
	return &user, nil
}
