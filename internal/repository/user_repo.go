// internal/repository/user_repo.go
package repository

import (
	"context"

	"tradebybarter-ledger/internal/domain"
)

// UserRepository reads marketplace accounts. Accounts are owned by the user service.
type UserRepository interface {
	GetUserByID(ctx context.Context, q DBExecutor, id string) (*domain.User, error)
}
