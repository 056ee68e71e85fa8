// internal/repository/transaction_repo.go
package repository

import (
	"context"

	"tradebybarter-ledger/internal/domain"
)

// TransactionRepository defines the interface for ledger entry operations.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, q DBExecutor, transaction *domain.Transaction) error
	// ListTransactions returns one page of the filtered entries, newest first, and the filtered total.
	ListTransactions(ctx context.Context, q DBExecutor, filter domain.TransactionFilter) ([]domain.Transaction, int64, error)
	// SummarizeTransactions totals credits and debits over every entry the filter matches, ignoring paging.
	SummarizeTransactions(ctx context.Context, q DBExecutor, filter domain.TransactionFilter) (domain.TransactionSummary, error)
	GetTransactionStats(ctx context.Context, q DBExecutor, userID string) (domain.WalletStats, error)
	ExistsByReference(ctx context.Context, q DBExecutor, txType domain.TransactionType, reference string) (bool, error)
}
