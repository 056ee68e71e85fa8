// internal/repository/escrow_repo.go
package repository

import (
	"context"
	"time"

	"tradebybarter-ledger/internal/domain"
)

// EscrowRepository defines the interface for escrow data operations.
type EscrowRepository interface {
	// CreateEscrow inserts a new escrow. A second escrow for the same offer yields util.ErrEscrowExists.
	CreateEscrow(ctx context.Context, q DBExecutor, escrow *domain.Escrow) error
	GetEscrowByID(ctx context.Context, q DBExecutor, id string) (*domain.Escrow, error)
	GetEscrowByIDForUpdate(ctx context.Context, q DBExecutor, id string) (*domain.Escrow, error)
	GetEscrowByOfferID(ctx context.Context, q DBExecutor, offerID string) (*domain.Escrow, error)
	ListEscrowsByUser(ctx context.Context, q DBExecutor, userID string) ([]domain.Escrow, error)
	CountActiveEscrows(ctx context.Context, q DBExecutor, userID string) (asBuyer, asSeller int64, err error)
	// UpdateEscrow persists a status change only if the row is still in expectedStatus
	// at the version escrow was read with. Otherwise it returns util.ErrInvalidState.
	UpdateEscrow(ctx context.Context, q DBExecutor, escrow *domain.Escrow, expectedStatus domain.EscrowStatus) error
	ListExpiredEscrowIDs(ctx context.Context, q DBExecutor, now time.Time, limit int) ([]string, error)
}
