// internal/domain/transaction.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionType defines the kind of balance-affecting event a ledger entry records.
type TransactionType string

const (
	TransactionTypeWalletTopUp      TransactionType = "WALLET_TOPUP"
	TransactionTypeWalletWithdrawal TransactionType = "WALLET_WITHDRAWAL"
	TransactionTypeEscrowDeposit    TransactionType = "ESCROW_DEPOSIT"
	TransactionTypeEscrowRelease    TransactionType = "ESCROW_RELEASE"
	TransactionTypeEscrowRefund     TransactionType = "ESCROW_REFUND"
	TransactionTypeTransferSent     TransactionType = "TRANSFER_SENT"
	TransactionTypeTransferReceived TransactionType = "TRANSFER_RECEIVED"
	TransactionTypeFeeCharge        TransactionType = "FEE_CHARGE"
	TransactionTypeRefund           TransactionType = "REFUND"
	TransactionTypePurchase         TransactionType = "PURCHASE"
	TransactionTypeSale             TransactionType = "SALE"
)

// CreditTransactionTypes are the types that count as money in for history summaries.
var CreditTransactionTypes = []TransactionType{
	TransactionTypeWalletTopUp,
	TransactionTypeTransferReceived,
	TransactionTypeSale,
	TransactionTypeEscrowRefund,
	TransactionTypeRefund,
}

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	_, ok := BalanceEffectFor(t, 1)
	return ok
}

// TransactionStatus defines the status of a ledger entry.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
	TransactionStatusRefunded   TransactionStatus = "REFUNDED"
)

// IsValid reports whether s is a known transaction status.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusProcessing, TransactionStatusCompleted,
		TransactionStatusFailed, TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	}
	return false
}

// Transaction is an immutable ledger entry owned by UserID.
type Transaction struct {
	ID           int64             `db:"id" json:"id"`
	UserID       string            `db:"user_id" json:"userId"`
	Type         TransactionType   `db:"type" json:"type"`
	Amount       int64             `db:"amount" json:"amount"` // Kobo, always positive; sign follows Type
	Status       TransactionStatus `db:"status" json:"status"`
	SenderID     *string           `db:"sender_id" json:"senderId,omitempty"`
	ReceiverID   *string           `db:"receiver_id" json:"receiverId,omitempty"`
	ReferenceID  *string           `db:"reference_id" json:"referenceId,omitempty"` // Escrow or offer id
	Reference    string            `db:"reference" json:"reference"`
	Description  *string           `db:"description" json:"description,omitempty"`
	BalanceAfter int64             `db:"balance_after" json:"balanceAfter"`
	CreatedAt    time.Time         `db:"created_at" json:"createdAt"`
}

// NewTransaction creates a completed ledger entry for userID.
func NewTransaction(userID string, txType TransactionType, amount int64, reference string, description, referenceID *string) *Transaction {
	return &Transaction{
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Status:      TransactionStatusCompleted,
		ReferenceID: referenceID,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// TransactionFilter selects a user's ledger entries for history queries.
type TransactionFilter struct {
	UserID string
	Type   TransactionType
	Status TransactionStatus
	Limit  int
	Offset int
}

// TransactionSummary totals a filtered set of entries.
type TransactionSummary struct {
	TotalCredits int64 `db:"total_credits" json:"totalCredits"`
	TotalDebits  int64 `db:"total_debits" json:"totalDebits"`
	NetAmount    int64 `db:"-" json:"netAmount"`
}

// NewReference builds a human-readable unique reference such as TXN-20260115-1A2B3C4D.
func NewReference(prefix string, at time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + at.UTC().Format("20060102") + "-" + strings.ToUpper(id[:8])
}

// Reference prefixes.
const (
	ReferencePrefixTransaction = "TXN"
	ReferencePrefixTransfer    = "TRF"
	ReferencePrefixEscrow      = "ESC"
	ReferencePrefixDispute     = "DSP"
)

// Pagination describes one page of a larger result set.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination computes TotalPages for total items split into pages of limit.
func NewPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}
