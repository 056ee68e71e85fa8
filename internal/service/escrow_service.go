// internal/service/escrow_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/events"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/util"
	"tradebybarter-ledger/pkg/db"
)

const autoReleaseReason = "auto-release after timeout"

// EscrowSettings are the business parameters of the escrow flow.
type EscrowSettings struct {
	FeeRate                 decimal.Decimal // Fraction, 0.05 for 5%
	MinAmountKobo           int64
	AutoReleaseAfter        time.Duration
	DisputeResolutionWindow time.Duration
	SweepBatchSize          int
}

// DefaultEscrowSettings returns the marketplace defaults.
func DefaultEscrowSettings() EscrowSettings {
	return EscrowSettings{
		FeeRate:                 decimal.RequireFromString("0.05"),
		MinAmountKobo:           10000,
		AutoReleaseAfter:        7 * 24 * time.Hour,
		DisputeResolutionWindow: 72 * time.Hour,
		SweepBatchSize:          100,
	}
}

// CreateEscrowInput is a buyer's request to open escrow for an accepted offer.
type CreateEscrowInput struct {
	OfferID            string
	Description        string
	CustomAmountInKobo *int64
	ReleaseCondition   string
}

// ReleaseEscrowInput confirms that the trade completed.
type ReleaseEscrowInput struct {
	Reason            string
	ConfirmCompletion bool
}

// RefundEscrowInput returns held funds to the buyer.
type RefundEscrowInput struct {
	Reason string
}

// DisputeEscrowInput freezes held funds pending manual review.
type DisputeEscrowInput struct {
	Reason  string
	Details string
}

// EscrowService defines the escrow lifecycle operations.
type EscrowService interface {
	CreateEscrow(ctx context.Context, userID string, in CreateEscrowInput) (*domain.Escrow, error)
	FundEscrow(ctx context.Context, escrowID, userID string) (*domain.Escrow, error)
	ReleaseEscrow(ctx context.Context, escrowID, userID string, in ReleaseEscrowInput) (*domain.ReleaseOutcome, error)
	RefundEscrow(ctx context.Context, escrowID, userID string, in RefundEscrowInput) (*domain.Escrow, error)
	DisputeEscrow(ctx context.Context, escrowID, userID string, in DisputeEscrowInput) (*domain.DisputeOutcome, error)
	GetUserEscrows(ctx context.Context, userID string) ([]domain.Escrow, error)
	GetEscrowByID(ctx context.Context, escrowID, userID string) (*domain.Escrow, error)
	AutoReleaseExpiredEscrows(ctx context.Context) (domain.SweepResult, error)
}

type escrowService struct {
	txRunner
	dbExecutor repository.DBExecutor
	offerRepo  repository.OfferRepository
	escrowRepo repository.EscrowRepository
	walletRepo repository.WalletRepository
	wallets    WalletService
	settings   EscrowSettings
	publisher  events.Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewEscrowService creates a new instance of EscrowService. Balance changes go
// through wallets.UpdateWalletBalance; walletRepo is only used for row locks.
func NewEscrowService(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	offerRepo repository.OfferRepository,
	escrowRepo repository.EscrowRepository,
	walletRepo repository.WalletRepository,
	wallets WalletService,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	settings EscrowSettings,
	publisher events.Publisher,
	logger *slog.Logger,
) EscrowService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = util.GetLogger()
	}
	if settings.SweepBatchSize <= 0 {
		settings.SweepBatchSize = DefaultEscrowSettings().SweepBatchSize
	}
	return &escrowService{
		txRunner: txRunner{
			dbBeginner: dbBeginner,
			beginTx:    beginTx,
			commitTx:   commitTx,
			rollbackTx: rollbackTx,
		},
		dbExecutor: dbExecutor,
		offerRepo:  offerRepo,
		escrowRepo: escrowRepo,
		walletRepo: walletRepo,
		wallets:    wallets,
		settings:   settings,
		publisher:  publisher,
		logger:     logger,
		now:        utcNow,
	}
}

// CreateEscrow opens an escrow in CREATED state for an accepted offer. No funds move.
func (s *escrowService) CreateEscrow(ctx context.Context, userID string, in CreateEscrowInput) (*domain.Escrow, error) {
	if userID == "" || strings.TrimSpace(in.OfferID) == "" {
		return nil, util.ErrInvalidInput
	}

	offer, err := s.offerRepo.GetOfferByID(ctx, s.dbExecutor, in.OfferID)
	if err != nil {
		return nil, wrapOp("create escrow", err)
	}
	if offer.BuyerID != userID {
		return nil, util.ErrNotOfferBuyer
	}
	if offer.Status != domain.OfferStatusAccepted {
		return nil, util.ErrOfferNotAccepted
	}

	var amount int64
	switch {
	case in.CustomAmountInKobo != nil:
		amount = *in.CustomAmountInKobo
	case offer.CashAmount != nil:
		amount = *offer.CashAmount
	}
	if amount < s.settings.MinAmountKobo {
		return nil, fmt.Errorf("%w: minimum is %d kobo", util.ErrBelowMinimumEscrow, s.settings.MinAmountKobo)
	}

	existing, err := s.escrowRepo.GetEscrowByOfferID(ctx, s.dbExecutor, offer.ID)
	switch {
	case err == nil && existing != nil:
		return nil, util.ErrEscrowExists
	case err != nil && !util.IsError(err, util.ErrNotFound):
		return nil, fmt.Errorf("create escrow: %w", err)
	}

	now := s.now()
	escrow := &domain.Escrow{
		ID:               uuid.NewString(),
		Reference:        domain.NewReference(domain.ReferencePrefixEscrow, now),
		OfferID:          offer.ID,
		BuyerID:          offer.BuyerID,
		SellerID:         offer.SellerID,
		Amount:           amount,
		Fee:              domain.ComputeFee(amount, s.settings.FeeRate),
		Status:           domain.EscrowStatusCreated,
		Description:      strPtr(strings.TrimSpace(in.Description)),
		ReleaseCondition: strPtr(strings.TrimSpace(in.ReleaseCondition)),
		ExpiresAt:        now.Add(s.settings.AutoReleaseAfter),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.escrowRepo.CreateEscrow(ctx, s.dbExecutor, escrow); err != nil {
		return nil, wrapOp("create escrow", err)
	}

	s.emit(ctx, events.EscrowCreated, escrow)
	return escrow, nil
}

// FundEscrow moves the escrow amount from the buyer's available balance into
// their escrow balance and marks the escrow FUNDED.
func (s *escrowService) FundEscrow(ctx context.Context, escrowID, userID string) (*domain.Escrow, error) {
	var escrow *domain.Escrow
	err := s.inTx(ctx, "fund escrow", func(q repository.DBExecutor) error {
		var err error
		escrow, err = s.lockForParty(ctx, q, escrowID, userID)
		if err != nil {
			return err
		}
		if escrow.BuyerID != userID {
			return util.ErrBuyerOnly
		}
		now := s.now()
		if escrow.Status != domain.EscrowStatusCreated || now.After(escrow.ExpiresAt) {
			return util.ErrEscrowNotFundable
		}

		if err := lockWallets(ctx, q, s.walletRepo, escrow.BuyerID); err != nil {
			return err
		}
		if _, _, err := s.wallets.UpdateWalletBalance(ctx, q, BalanceUpdate{
			UserID:      escrow.BuyerID,
			Amount:      escrow.Amount,
			Type:        domain.TransactionTypeEscrowDeposit,
			Description: "Escrow funding " + escrow.Reference,
			ReferenceID: escrow.ID,
			Reference:   escrow.Reference,
			SenderID:    escrow.BuyerID,
			ReceiverID:  escrow.SellerID,
		}); err != nil {
			return err
		}

		escrow.FundedAt = &now
		return s.transition(ctx, q, escrow, domain.EscrowStatusFunded, now)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.EscrowFunded, escrow)
	return escrow, nil
}

// ReleaseEscrow pays the seller once the buyer confirms completion. Only the buyer may release.
func (s *escrowService) ReleaseEscrow(ctx context.Context, escrowID, userID string, in ReleaseEscrowInput) (*domain.ReleaseOutcome, error) {
	if !in.ConfirmCompletion {
		return nil, util.ErrCompletionRequired
	}

	var outcome *domain.ReleaseOutcome
	err := s.inTx(ctx, "release escrow", func(q repository.DBExecutor) error {
		escrow, err := s.lockForParty(ctx, q, escrowID, userID)
		if err != nil {
			return err
		}
		if escrow.BuyerID != userID {
			return util.ErrBuyerOnly
		}
		if escrow.Status != domain.EscrowStatusFunded {
			return util.ErrEscrowNotFunded
		}
		outcome, err = s.releaseFunds(ctx, q, escrow, in.Reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.EscrowReleased, outcome.Escrow)
	return outcome, nil
}

// releaseFunds drains the buyer's hold and credits the seller net of the fee.
// The caller holds the escrow row lock and has checked it is FUNDED.
func (s *escrowService) releaseFunds(ctx context.Context, q repository.DBExecutor, escrow *domain.Escrow, reason string) (*domain.ReleaseOutcome, error) {
	if err := lockWallets(ctx, q, s.walletRepo, escrow.BuyerID, escrow.SellerID); err != nil {
		return nil, err
	}

	if _, _, err := s.wallets.UpdateWalletBalance(ctx, q, BalanceUpdate{
		UserID:      escrow.BuyerID,
		Amount:      escrow.Amount,
		Type:        domain.TransactionTypeEscrowRelease,
		Description: "Escrow release " + escrow.Reference,
		ReferenceID: escrow.ID,
		Reference:   escrow.Reference,
		SenderID:    escrow.BuyerID,
		ReceiverID:  escrow.SellerID,
	}); err != nil {
		return nil, err
	}

	var sellerBalance int64
	if proceeds := escrow.SellerProceeds(); proceeds > 0 {
		sellerWallet, _, err := s.wallets.UpdateWalletBalance(ctx, q, BalanceUpdate{
			UserID:      escrow.SellerID,
			Amount:      proceeds,
			Type:        domain.TransactionTypeSale,
			Description: "Escrow payout " + escrow.Reference,
			ReferenceID: escrow.ID,
			Reference:   escrow.Reference,
			SenderID:    escrow.BuyerID,
			ReceiverID:  escrow.SellerID,
		})
		if err != nil {
			return nil, err
		}
		sellerBalance = sellerWallet.Balance
	}

	now := s.now()
	escrow.ReleasedAt = &now
	escrow.ResolutionReason = strPtr(strings.TrimSpace(reason))
	if err := s.transition(ctx, q, escrow, domain.EscrowStatusReleased, now); err != nil {
		return nil, err
	}

	return &domain.ReleaseOutcome{
		Escrow:         escrow,
		AmountReleased: escrow.SellerProceeds(),
		FeeCharged:     escrow.Fee,
		SellerBalance:  sellerBalance,
	}, nil
}

// RefundEscrow returns the held amount to the buyer. Only the seller may refund.
func (s *escrowService) RefundEscrow(ctx context.Context, escrowID, userID string, in RefundEscrowInput) (*domain.Escrow, error) {
	var escrow *domain.Escrow
	err := s.inTx(ctx, "refund escrow", func(q repository.DBExecutor) error {
		var err error
		escrow, err = s.lockForParty(ctx, q, escrowID, userID)
		if err != nil {
			return err
		}
		if escrow.SellerID != userID {
			return util.ErrSellerOnly
		}
		if escrow.Status != domain.EscrowStatusFunded {
			return util.ErrEscrowNotFunded
		}

		if err := lockWallets(ctx, q, s.walletRepo, escrow.BuyerID); err != nil {
			return err
		}
		if _, _, err := s.wallets.UpdateWalletBalance(ctx, q, BalanceUpdate{
			UserID:      escrow.BuyerID,
			Amount:      escrow.Amount,
			Type:        domain.TransactionTypeEscrowRefund,
			Description: "Escrow refund " + escrow.Reference,
			ReferenceID: escrow.ID,
			Reference:   escrow.Reference,
			SenderID:    escrow.SellerID,
			ReceiverID:  escrow.BuyerID,
		}); err != nil {
			return err
		}

		now := s.now()
		escrow.RefundedAt = &now
		escrow.ResolutionReason = strPtr(strings.TrimSpace(in.Reason))
		return s.transition(ctx, q, escrow, domain.EscrowStatusRefunded, now)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.EscrowRefunded, escrow)
	return escrow, nil
}

// DisputeEscrow freezes a funded escrow. Funds stay in the buyer's escrow balance.
func (s *escrowService) DisputeEscrow(ctx context.Context, escrowID, userID string, in DisputeEscrowInput) (*domain.DisputeOutcome, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, util.NewError(util.ErrInvalidInput, "a dispute reason is required")
	}

	var outcome *domain.DisputeOutcome
	err := s.inTx(ctx, "dispute escrow", func(q repository.DBExecutor) error {
		escrow, err := s.lockForParty(ctx, q, escrowID, userID)
		if err != nil {
			return err
		}
		if escrow.Status != domain.EscrowStatusFunded {
			return util.ErrEscrowNotFunded
		}

		now := s.now()
		disputeRef := domain.NewReference(domain.ReferencePrefixDispute, now)
		escrow.DisputeOpenedAt = &now
		escrow.DisputeReason = &reason
		escrow.DisputeDetails = strPtr(strings.TrimSpace(in.Details))
		escrow.DisputeReference = &disputeRef
		if err := s.transition(ctx, q, escrow, domain.EscrowStatusDisputed, now); err != nil {
			return err
		}

		outcome = &domain.DisputeOutcome{
			Escrow:                escrow,
			DisputeReference:      disputeRef,
			EstimatedResolutionAt: now.Add(s.settings.DisputeResolutionWindow),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.EscrowDisputed, outcome.Escrow)
	return outcome, nil
}

// GetUserEscrows lists escrows where the user is buyer or seller, newest first.
func (s *escrowService) GetUserEscrows(ctx context.Context, userID string) ([]domain.Escrow, error) {
	if userID == "" {
		return nil, util.ErrInvalidInput
	}
	escrows, err := s.escrowRepo.ListEscrowsByUser(ctx, s.dbExecutor, userID)
	if err != nil {
		return nil, fmt.Errorf("list user escrows: %w", err)
	}
	return escrows, nil
}

// GetEscrowByID returns an escrow to one of its parties.
func (s *escrowService) GetEscrowByID(ctx context.Context, escrowID, userID string) (*domain.Escrow, error) {
	escrow, err := s.escrowRepo.GetEscrowByID(ctx, s.dbExecutor, escrowID)
	if err != nil {
		return nil, wrapOp("get escrow", err)
	}
	if !escrow.IsParty(userID) {
		return nil, util.ErrNotEscrowParty
	}
	return escrow, nil
}

// AutoReleaseExpiredEscrows handles one batch of escrows past their deadline:
// CREATED ones expire, FUNDED ones are released to the seller. Each escrow is
// settled in its own transaction after re-checking it under a row lock, so a
// concurrent release or dispute wins cleanly. Failures are counted, not fatal.
func (s *escrowService) AutoReleaseExpiredEscrows(ctx context.Context) (domain.SweepResult, error) {
	var result domain.SweepResult

	ids, err := s.escrowRepo.ListExpiredEscrowIDs(ctx, s.dbExecutor, s.now(), s.settings.SweepBatchSize)
	if err != nil {
		return result, fmt.Errorf("auto release: %w", err)
	}
	result.Scanned = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var (
			settled *domain.Escrow
			event   string
		)
		err := s.inTx(ctx, "auto release escrow", func(q repository.DBExecutor) error {
			escrow, err := s.escrowRepo.GetEscrowByIDForUpdate(ctx, q, id)
			if err != nil {
				return err
			}
			now := s.now()
			if !escrow.IsExpired(now) {
				return nil
			}

			switch escrow.Status {
			case domain.EscrowStatusCreated:
				escrow.ExpiredAt = &now
				if err := s.transition(ctx, q, escrow, domain.EscrowStatusExpired, now); err != nil {
					return err
				}
				event = events.EscrowExpired
			case domain.EscrowStatusFunded:
				if _, err := s.releaseFunds(ctx, q, escrow, autoReleaseReason); err != nil {
					return err
				}
				event = events.EscrowReleased
			}
			settled = escrow
			return nil
		})
		if err != nil {
			result.Failed++
			s.logger.Error("Failed to settle expired escrow", "escrow_id", id, "error", err)
			continue
		}
		if settled == nil {
			continue
		}

		if event == events.EscrowExpired {
			result.Expired++
		} else {
			result.Released++
		}
		s.emit(ctx, event, settled)
	}

	s.logger.Info("Escrow expiry sweep finished",
		"scanned", result.Scanned, "expired", result.Expired, "released", result.Released, "failed", result.Failed)
	return result, nil
}

// lockForParty row-locks the escrow and checks the caller is buyer or seller.
func (s *escrowService) lockForParty(ctx context.Context, q repository.DBExecutor, escrowID, userID string) (*domain.Escrow, error) {
	escrow, err := s.escrowRepo.GetEscrowByIDForUpdate(ctx, q, escrowID)
	if err != nil {
		return nil, err
	}
	if !escrow.IsParty(userID) {
		return nil, util.ErrNotEscrowParty
	}
	return escrow, nil
}

// transition moves escrow to next if the state machine allows it and persists the change.
func (s *escrowService) transition(ctx context.Context, q repository.DBExecutor, escrow *domain.Escrow, next domain.EscrowStatus, now time.Time) error {
	from := escrow.Status
	if from.IsTerminal() {
		return util.NewError(util.ErrInvalidState, fmt.Sprintf("escrow is already %s", from))
	}
	if !from.CanTransitionTo(next) {
		return util.NewError(util.ErrInvalidState, fmt.Sprintf("escrow cannot move from %s to %s", from, next))
	}
	escrow.Status = next
	escrow.UpdatedAt = now
	return s.escrowRepo.UpdateEscrow(ctx, q, escrow, from)
}

func (s *escrowService) emit(ctx context.Context, eventType string, escrow *domain.Escrow) {
	publish(ctx, s.publisher, s.logger, events.New(eventType, escrow.ID,
		[]string{escrow.BuyerID, escrow.SellerID}, map[string]any{
			"reference": escrow.Reference,
			"status":    escrow.Status,
			"amount":    escrow.Amount,
			"fee":       escrow.Fee,
		}))
}
