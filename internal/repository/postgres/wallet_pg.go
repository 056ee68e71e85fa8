// internal/repository/postgres/wallet_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/util"
)

const walletColumns = `id, user_id, balance, escrow_balance, total_earned, total_spent, version,
       last_transaction_at, created_at, updated_at`

// WalletRepository implements repository.WalletRepository for PostgreSQL.
type WalletRepository struct{}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(_ *sqlx.DB) repository.WalletRepository {
	return &WalletRepository{}
}

// CreateWalletIfNotExists inserts a zero-balance wallet for userID, doing nothing if one exists.
func (r *WalletRepository) CreateWalletIfNotExists(ctx context.Context, q repository.DBExecutor, userID string) error {
	query := `INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	if _, err := q.ExecContext(ctx, query, userID); err != nil {
		return util.StorageError("create wallet", err)
	}
	return nil
}

// GetWalletByUserID retrieves a wallet without locking it.
func (r *WalletRepository) GetWalletByUserID(ctx context.Context, q repository.DBExecutor, userID string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	if err := q.GetContext(ctx, &wallet, query, userID); err != nil {
		return nil, mapError("get wallet", err, util.ErrWalletNotFound)
	}
	return &wallet, nil
}

// GetWalletByUserIDForUpdate retrieves a wallet and holds its row lock until the transaction ends.
func (r *WalletRepository) GetWalletByUserIDForUpdate(ctx context.Context, q repository.DBExecutor, userID string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`
	if err := q.GetContext(ctx, &wallet, query, userID); err != nil {
		return nil, mapError("lock wallet", err, util.ErrWalletNotFound)
	}
	return &wallet, nil
}

// ApplyBalanceEffect adds the effect's deltas in one guarded UPDATE. The WHERE
// clause refuses any change that would leave a balance negative.
func (r *WalletRepository) ApplyBalanceEffect(ctx context.Context, q repository.DBExecutor, userID string, effect domain.BalanceEffect, at time.Time) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `
		UPDATE wallets
		SET balance = balance + $1,
		    escrow_balance = escrow_balance + $2,
		    total_earned = total_earned + $3,
		    total_spent = total_spent + $4,
		    version = version + 1,
		    last_transaction_at = $5,
		    updated_at = $5
		WHERE user_id = $6
		  AND balance + $1 >= 0
		  AND escrow_balance + $2 >= 0
		RETURNING ` + walletColumns
	err := q.GetContext(ctx, &wallet, query,
		effect.Balance, effect.EscrowBalance, effect.TotalEarned, effect.TotalSpent, at, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The caller holds the row lock, so a missing row means the guard failed.
			return nil, util.ErrInsufficientFunds
		}
		return nil, util.StorageError("apply balance effect", err)
	}
	return &wallet, nil
}
