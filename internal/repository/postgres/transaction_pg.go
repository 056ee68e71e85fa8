// internal/repository/postgres/transaction_pg.go
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/util"
)

const transactionColumns = `id, user_id, type, amount, status, sender_id, receiver_id, reference_id,
       reference, description, balance_after, created_at`

// TransactionRepository implements repository.TransactionRepository for PostgreSQL.
type TransactionRepository struct{}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(_ *sqlx.DB) repository.TransactionRepository {
	return &TransactionRepository{}
}

// CreateTransaction inserts a ledger entry and fills in its id.
func (r *TransactionRepository) CreateTransaction(ctx context.Context, q repository.DBExecutor, transaction *domain.Transaction) error {
	query := `INSERT INTO transactions (user_id, type, amount, status, sender_id, receiver_id, reference_id,
                                        reference, description, balance_after, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`

	err := q.QueryRowContext(ctx, query,
		transaction.UserID,
		transaction.Type,
		transaction.Amount,
		transaction.Status,
		transaction.SenderID,
		transaction.ReceiverID,
		transaction.ReferenceID,
		transaction.Reference,
		transaction.Description,
		transaction.BalanceAfter,
		transaction.CreatedAt,
	).Scan(&transaction.ID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return util.ErrDuplicateReference
		}
		return util.StorageError("create transaction", err)
	}
	return nil
}

// filterClause renders the WHERE clause shared by list, count and summary queries.
func filterClause(filter domain.TransactionFilter) (string, []interface{}) {
	conds := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListTransactions retrieves one page of a user's entries, newest first, plus the filtered total.
func (r *TransactionRepository) ListTransactions(ctx context.Context, q repository.DBExecutor, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	where, args := filterClause(filter)

	transactions := []domain.Transaction{}
	query := `SELECT ` + transactionColumns + ` FROM transactions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	pageArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)
	if err := q.SelectContext(ctx, &transactions, query, pageArgs...); err != nil {
		return nil, 0, util.StorageError("list transactions", err)
	}

	var total int64
	if err := q.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions`+where, args...); err != nil {
		return nil, 0, util.StorageError("count transactions", err)
	}
	return transactions, total, nil
}

func creditTypes() interface{} {
	types := make([]string, len(domain.CreditTransactionTypes))
	for i, t := range domain.CreditTransactionTypes {
		types[i] = string(t)
	}
	return pq.Array(types)
}

// SummarizeTransactions totals completed credits and debits across the whole filtered set.
func (r *TransactionRepository) SummarizeTransactions(ctx context.Context, q repository.DBExecutor, filter domain.TransactionFilter) (domain.TransactionSummary, error) {
	where, args := filterClause(filter)
	args = append(args, creditTypes())
	credit := fmt.Sprintf("$%d", len(args))

	var summary domain.TransactionSummary
	query := `SELECT
	    COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED' AND type = ANY(` + credit + `)), 0) AS total_credits,
	    COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED' AND NOT (type = ANY(` + credit + `))), 0) AS total_debits
	  FROM transactions` + where
	if err := q.GetContext(ctx, &summary, query, args...); err != nil {
		return domain.TransactionSummary{}, util.StorageError("summarize transactions", err)
	}
	summary.NetAmount = summary.TotalCredits - summary.TotalDebits
	return summary, nil
}

// GetTransactionStats aggregates a user's whole history.
func (r *TransactionRepository) GetTransactionStats(ctx context.Context, q repository.DBExecutor, userID string) (domain.WalletStats, error) {
	var stats domain.WalletStats
	query := `SELECT
	    COUNT(*) AS total_transactions,
	    COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed_transactions,
	    COUNT(*) FILTER (WHERE status IN ('PENDING', 'PROCESSING')) AS pending_transactions,
	    COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED' AND type = ANY($2)), 0) AS total_credits,
	    COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED' AND NOT (type = ANY($2))), 0) AS total_debits
	  FROM transactions WHERE user_id = $1`
	if err := q.GetContext(ctx, &stats, query, userID, creditTypes()); err != nil {
		return domain.WalletStats{}, util.StorageError("transaction stats", err)
	}
	return stats, nil
}

// ExistsByReference reports whether an entry of txType with reference was already written.
func (r *TransactionRepository) ExistsByReference(ctx context.Context, q repository.DBExecutor, txType domain.TransactionType, reference string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM transactions WHERE type = $1 AND reference = $2)`
	if err := q.GetContext(ctx, &exists, query, txType, reference); err != nil {
		return false, util.StorageError("check reference", err)
	}
	return exists, nil
}
