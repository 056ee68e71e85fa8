// internal/domain/wallet.go
package domain

import (
	"time"
)

// Wallet is the single balance record a user owns. All amounts are kobo.
type Wallet struct {
	ID                int64      `db:"id" json:"id"`
	UserID            string     `db:"user_id" json:"userId"`
	Balance           int64      `db:"balance" json:"balance"`                // Available, never negative
	EscrowBalance     int64      `db:"escrow_balance" json:"escrowBalance"`   // Held by outstanding escrows as buyer
	TotalEarned       int64      `db:"total_earned" json:"totalEarned"`       // Monotonic
	TotalSpent        int64      `db:"total_spent" json:"totalSpent"`         // Monotonic
	Version           int64      `db:"version" json:"version"`                // Bumped on every balance change
	LastTransactionAt *time.Time `db:"last_transaction_at" json:"lastTransactionAt"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// BalanceEffect is the set of signed deltas a single ledger entry applies to a wallet.
type BalanceEffect struct {
	Balance       int64
	EscrowBalance int64
	TotalEarned   int64
	TotalSpent    int64
}

// BalanceEffectFor maps a transaction type and a positive amount to the deltas it
// applies. The second return is false for an unknown type.
func BalanceEffectFor(txType TransactionType, amount int64) (BalanceEffect, bool) {
	switch txType {
	case TransactionTypeWalletTopUp, TransactionTypeRefund:
		return BalanceEffect{Balance: amount}, true
	case TransactionTypeWalletWithdrawal, TransactionTypeTransferSent, TransactionTypeFeeCharge, TransactionTypePurchase:
		return BalanceEffect{Balance: -amount, TotalSpent: amount}, true
	case TransactionTypeTransferReceived, TransactionTypeSale:
		return BalanceEffect{Balance: amount, TotalEarned: amount}, true
	case TransactionTypeEscrowDeposit:
		return BalanceEffect{Balance: -amount, EscrowBalance: amount}, true
	case TransactionTypeEscrowRelease:
		return BalanceEffect{EscrowBalance: -amount, TotalSpent: amount}, true
	case TransactionTypeEscrowRefund:
		return BalanceEffect{Balance: amount, EscrowBalance: -amount}, true
	}
	return BalanceEffect{}, false
}

// WalletStats is aggregated from the transaction log at read time.
type WalletStats struct {
	TotalTransactions     int64 `db:"total_transactions" json:"totalTransactions"`
	CompletedTransactions int64 `db:"completed_transactions" json:"completedTransactions"`
	PendingTransactions   int64 `db:"pending_transactions" json:"pendingTransactions"`
	TotalCredits          int64 `db:"total_credits" json:"totalCredits"`
	TotalDebits           int64 `db:"total_debits" json:"totalDebits"`
	ActiveEscrowsAsBuyer  int64 `db:"-" json:"activeEscrowsAsBuyer"`
	ActiveEscrowsAsSeller int64 `db:"-" json:"activeEscrowsAsSeller"`
}

// WalletInfo is a wallet with its read-time statistics.
type WalletInfo struct {
	Wallet *Wallet     `json:"wallet"`
	Stats  WalletStats `json:"stats"`
}
