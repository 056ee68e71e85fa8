// internal/service/wallet_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/events"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/util"
	"tradebybarter-ledger/pkg/db"
)

// History paging bounds.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// TransferInput is a request to move available funds to another user.
type TransferInput struct {
	RecipientID string
	Amount      int64
	Description string
}

// TransferResult is the sender's view of a completed transfer.
type TransferResult struct {
	Reference   string              `json:"reference"`
	RecipientID string              `json:"recipientId"`
	Amount      int64               `json:"amount"`
	NewBalance  int64               `json:"newBalance"`
	Transaction *domain.Transaction `json:"transaction"`
}

// HistoryQuery selects one page of a user's ledger. Zero values take defaults.
type HistoryQuery struct {
	Page   int
	Limit  int
	Type   string
	Status string
}

// TransactionHistory is one page of entries with a summary over the whole filtered set.
type TransactionHistory struct {
	Transactions []domain.Transaction      `json:"transactions"`
	Pagination   domain.Pagination         `json:"pagination"`
	Summary      domain.TransactionSummary `json:"summary"`
}

// BalanceUpdate describes one mutation applied through UpdateWalletBalance.
type BalanceUpdate struct {
	UserID      string
	Amount      int64
	Type        domain.TransactionType
	Description string
	ReferenceID string // Escrow or offer id
	Reference   string // Generated when empty
	SenderID    string
	ReceiverID  string
}

// WalletService defines the interface for wallet-related business logic.
type WalletService interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*domain.Wallet, error)
	GetWalletInfo(ctx context.Context, userID string) (*domain.WalletInfo, error)
	TransferFunds(ctx context.Context, fromUserID string, in TransferInput) (*TransferResult, error)
	GetTransactionHistory(ctx context.Context, userID string, in HistoryQuery) (*TransactionHistory, error)
	TopUpWallet(ctx context.Context, userID string, amount int64, paymentReference string) (*domain.Wallet, *domain.Transaction, error)
	WithdrawFromWallet(ctx context.Context, userID string, amount int64, description string) (*domain.Wallet, *domain.Transaction, error)
	// UpdateWalletBalance is the single mutation point for balances. q must be a
	// transaction executor; the caller owns commit and rollback.
	UpdateWalletBalance(ctx context.Context, q repository.DBExecutor, in BalanceUpdate) (*domain.Wallet, *domain.Transaction, error)
}

// walletService implements the WalletService interface.
type walletService struct {
	txRunner
	dbExecutor      repository.DBExecutor // For non-transactional reads (e.g., *sqlx.DB)
	userRepo        repository.UserRepository
	walletRepo      repository.WalletRepository
	transactionRepo repository.TransactionRepository
	escrowRepo      repository.EscrowRepository
	publisher       events.Publisher
	logger          *slog.Logger
	now             func() time.Time
}

// NewWalletService creates a new instance of WalletService.
func NewWalletService(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	userRepo repository.UserRepository,
	walletRepo repository.WalletRepository,
	transactionRepo repository.TransactionRepository,
	escrowRepo repository.EscrowRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	publisher events.Publisher,
	logger *slog.Logger,
) WalletService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = util.GetLogger()
	}
	return &walletService{
		txRunner: txRunner{
			dbBeginner: dbBeginner,
			beginTx:    beginTx,
			commitTx:   commitTx,
			rollbackTx: rollbackTx,
		},
		dbExecutor:      dbExecutor,
		userRepo:        userRepo,
		walletRepo:      walletRepo,
		transactionRepo: transactionRepo,
		escrowRepo:      escrowRepo,
		publisher:       publisher,
		logger:          logger,
		now:             utcNow,
	}
}

// GetOrCreateWallet returns the user's wallet, creating a zero-balance one on first use.
func (s *walletService) GetOrCreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, util.ErrInvalidInput
	}
	if err := s.walletRepo.CreateWalletIfNotExists(ctx, s.dbExecutor, userID); err != nil {
		return nil, fmt.Errorf("get or create wallet: %w", err)
	}
	wallet, err := s.walletRepo.GetWalletByUserID(ctx, s.dbExecutor, userID)
	if err != nil {
		return nil, wrapOp("get or create wallet", err)
	}
	return wallet, nil
}

// GetWalletInfo returns the wallet and statistics aggregated from the ledger at read time.
func (s *walletService) GetWalletInfo(ctx context.Context, userID string) (*domain.WalletInfo, error) {
	wallet, err := s.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats, err := s.transactionRepo.GetTransactionStats(ctx, s.dbExecutor, userID)
	if err != nil {
		return nil, fmt.Errorf("wallet info: %w", err)
	}
	stats.ActiveEscrowsAsBuyer, stats.ActiveEscrowsAsSeller, err = s.escrowRepo.CountActiveEscrows(ctx, s.dbExecutor, userID)
	if err != nil {
		return nil, fmt.Errorf("wallet info: %w", err)
	}

	return &domain.WalletInfo{Wallet: wallet, Stats: stats}, nil
}

// TransferFunds moves amount from the sender's available balance to the recipient's.
// Both balance changes and both ledger entries commit together or not at all.
func (s *walletService) TransferFunds(ctx context.Context, fromUserID string, in TransferInput) (*TransferResult, error) {
	if in.Amount <= 0 {
		return nil, util.ErrInvalidAmount
	}
	if fromUserID == "" || strings.TrimSpace(in.RecipientID) == "" {
		return nil, util.ErrInvalidInput
	}
	if in.RecipientID == fromUserID {
		return nil, util.ErrSelfTransfer
	}

	recipient, err := s.userRepo.GetUserByID(ctx, s.dbExecutor, in.RecipientID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("transfer funds: %w", err)
	}
	if !recipient.CanReceiveFunds() {
		return nil, util.ErrRecipientInactive
	}

	reference := domain.NewReference(domain.ReferencePrefixTransfer, s.now())
	var (
		senderWallet *domain.Wallet
		sentTx       *domain.Transaction
	)
	err = s.inTx(ctx, "transfer funds", func(q repository.DBExecutor) error {
		if err := lockWallets(ctx, q, s.walletRepo, fromUserID, in.RecipientID); err != nil {
			return err
		}

		var err error
		senderWallet, sentTx, err = s.UpdateWalletBalance(ctx, q, BalanceUpdate{
			UserID:      fromUserID,
			Amount:      in.Amount,
			Type:        domain.TransactionTypeTransferSent,
			Description: in.Description,
			Reference:   reference,
			SenderID:    fromUserID,
			ReceiverID:  in.RecipientID,
		})
		if err != nil {
			return err
		}

		_, _, err = s.UpdateWalletBalance(ctx, q, BalanceUpdate{
			UserID:      in.RecipientID,
			Amount:      in.Amount,
			Type:        domain.TransactionTypeTransferReceived,
			Description: in.Description,
			Reference:   reference,
			SenderID:    fromUserID,
			ReceiverID:  in.RecipientID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, s.logger, events.New(events.WalletTransfer, reference,
		[]string{fromUserID, in.RecipientID}, map[string]any{"amount": in.Amount}))

	return &TransferResult{
		Reference:   reference,
		RecipientID: in.RecipientID,
		Amount:      in.Amount,
		NewBalance:  senderWallet.Balance,
		Transaction: sentTx,
	}, nil
}

// GetTransactionHistory returns one page of the user's ledger, newest first. The
// summary covers every entry matching the filter, not only the returned page.
func (s *walletService) GetTransactionHistory(ctx context.Context, userID string, in HistoryQuery) (*TransactionHistory, error) {
	if userID == "" {
		return nil, util.ErrInvalidInput
	}
	page, limit := in.Page, in.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	filter := domain.TransactionFilter{
		UserID: userID,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if in.Type != "" {
		filter.Type = domain.TransactionType(strings.ToUpper(in.Type))
		if !filter.Type.IsValid() {
			return nil, util.NewError(util.ErrInvalidInput, "unknown transaction type "+in.Type)
		}
	}
	if in.Status != "" {
		filter.Status = domain.TransactionStatus(strings.ToUpper(in.Status))
		if !filter.Status.IsValid() {
			return nil, util.NewError(util.ErrInvalidInput, "unknown transaction status "+in.Status)
		}
	}

	transactions, total, err := s.transactionRepo.ListTransactions(ctx, s.dbExecutor, filter)
	if err != nil {
		return nil, fmt.Errorf("transaction history: %w", err)
	}
	summary, err := s.transactionRepo.SummarizeTransactions(ctx, s.dbExecutor, filter)
	if err != nil {
		return nil, fmt.Errorf("transaction history: %w", err)
	}

	return &TransactionHistory{
		Transactions: transactions,
		Pagination:   domain.NewPagination(page, limit, total),
		Summary:      summary,
	}, nil
}

// TopUpWallet credits funds confirmed by the payment provider. paymentReference
// is the provider's reference and may be credited only once.
func (s *walletService) TopUpWallet(ctx context.Context, userID string, amount int64, paymentReference string) (*domain.Wallet, *domain.Transaction, error) {
	if amount <= 0 {
		return nil, nil, util.ErrInvalidAmount
	}
	paymentReference = strings.TrimSpace(paymentReference)
	if userID == "" || paymentReference == "" {
		return nil, nil, util.ErrInvalidInput
	}

	var (
		wallet      *domain.Wallet
		transaction *domain.Transaction
	)
	err := s.inTx(ctx, "top up wallet", func(q repository.DBExecutor) error {
		if err := lockWallets(ctx, q, s.walletRepo, userID); err != nil {
			return err
		}
		seen, err := s.transactionRepo.ExistsByReference(ctx, q, domain.TransactionTypeWalletTopUp, paymentReference)
		if err != nil {
			return err
		}
		if seen {
			return util.ErrDuplicateReference
		}
		wallet, transaction, err = s.UpdateWalletBalance(ctx, q, BalanceUpdate{
			UserID:      userID,
			Amount:      amount,
			Type:        domain.TransactionTypeWalletTopUp,
			Description: "Wallet top-up",
			Reference:   paymentReference,
			ReceiverID:  userID,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	publish(ctx, s.publisher, s.logger, events.New(events.WalletTopUp, paymentReference,
		[]string{userID}, map[string]any{"amount": amount}))
	return wallet, transaction, nil
}

// WithdrawFromWallet debits available funds for payout.
func (s *walletService) WithdrawFromWallet(ctx context.Context, userID string, amount int64, description string) (*domain.Wallet, *domain.Transaction, error) {
	if amount <= 0 {
		return nil, nil, util.ErrInvalidAmount
	}
	if userID == "" {
		return nil, nil, util.ErrInvalidInput
	}
	if description == "" {
		description = "Wallet withdrawal"
	}

	var (
		wallet      *domain.Wallet
		transaction *domain.Transaction
	)
	err := s.inTx(ctx, "withdraw from wallet", func(q repository.DBExecutor) error {
		if err := lockWallets(ctx, q, s.walletRepo, userID); err != nil {
			return err
		}
		var err error
		wallet, transaction, err = s.UpdateWalletBalance(ctx, q, BalanceUpdate{
			UserID:      userID,
			Amount:      amount,
			Type:        domain.TransactionTypeWalletWithdrawal,
			Description: description,
			SenderID:    userID,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	publish(ctx, s.publisher, s.logger, events.New(events.WalletWithdraw, transaction.Reference,
		[]string{userID}, map[string]any{"amount": amount}))
	return wallet, transaction, nil
}

// UpdateWalletBalance applies the balance effect of in.Type and appends exactly one ledger entry.
func (s *walletService) UpdateWalletBalance(ctx context.Context, q repository.DBExecutor, in BalanceUpdate) (*domain.Wallet, *domain.Transaction, error) {
	if in.Amount <= 0 {
		return nil, nil, util.ErrInvalidAmount
	}
	effect, ok := domain.BalanceEffectFor(in.Type, in.Amount)
	if !ok {
		return nil, nil, util.NewError(util.ErrInvalidInput, "unknown transaction type "+string(in.Type))
	}

	now := s.now()
	wallet, err := s.walletRepo.ApplyBalanceEffect(ctx, q, in.UserID, effect, now)
	if err != nil {
		return nil, nil, err
	}

	reference := in.Reference
	if reference == "" {
		reference = domain.NewReference(domain.ReferencePrefixTransaction, now)
	}
	transaction := domain.NewTransaction(in.UserID, in.Type, in.Amount, reference, strPtr(in.Description), strPtr(in.ReferenceID))
	transaction.SenderID = strPtr(in.SenderID)
	transaction.ReceiverID = strPtr(in.ReceiverID)
	transaction.BalanceAfter = wallet.Balance
	transaction.CreatedAt = now
	if err := s.transactionRepo.CreateTransaction(ctx, q, transaction); err != nil {
		return nil, nil, err
	}

	return wallet, transaction, nil
}
