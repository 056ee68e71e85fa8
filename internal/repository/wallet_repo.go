// internal/repository/wallet_repo.go
package repository

import (
	"context"
	"time"

	"tradebybarter-ledger/internal/domain"
)

// WalletRepository defines the interface for wallet data operations.
type WalletRepository interface {
	// CreateWalletIfNotExists inserts a zero-balance wallet unless the user already has one.
	CreateWalletIfNotExists(ctx context.Context, q DBExecutor, userID string) error
	GetWalletByUserID(ctx context.Context, q DBExecutor, userID string) (*domain.Wallet, error)
	// GetWalletByUserIDForUpdate row-locks the wallet until the surrounding transaction ends.
	GetWalletByUserIDForUpdate(ctx context.Context, q DBExecutor, userID string) (*domain.Wallet, error)
	// ApplyBalanceEffect adds the deltas atomically and returns the updated wallet.
	// It returns util.ErrInsufficientFunds when either balance would go negative.
	ApplyBalanceEffect(ctx context.Context, q DBExecutor, userID string, effect domain.BalanceEffect, at time.Time) (*domain.Wallet, error)
}
