// internal/api/handler/wallet.go
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"tradebybarter-ledger/internal/api/middleware"
	"tradebybarter-ledger/internal/api/types"
	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/service"
	"tradebybarter-ledger/internal/util"
)

// WalletHandler handles HTTP requests related to wallet operations.
type WalletHandler struct {
	service service.WalletService
	logger  *slog.Logger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(svc service.WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		service: svc,
		logger:  logger,
	}
}

// TransferRequest represents the request body for transfer.
type TransferRequest struct {
	RecipientID string `json:"recipientId" validate:"required,max=64"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=255"`
}

// TopUpRequest represents the request body for topping up from a confirmed payment.
type TopUpRequest struct {
	UserID           string `json:"userId" validate:"required,max=64"`
	Amount           int64  `json:"amount" validate:"required,gt=0"`
	PaymentReference string `json:"paymentReference" validate:"required,max=100"`
}

// WithdrawRequest represents the request body for withdraw.
type WithdrawRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=255"`
}

// walletEntry is the response for top-up and withdrawal.
type walletEntry struct {
	Wallet      *domain.Wallet      `json:"wallet"`
	Transaction *domain.Transaction `json:"transaction"`
}

// GetWallet returns the caller's wallet with stats.
// GET /wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.GetWalletInfo(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		respondWithError(w, r, h.logger, "Failed to fetch wallet", err)
		return
	}
	types.WriteSuccess(w, http.StatusOK, "Wallet retrieved", info)
}

// GetTransactionHistory handles the get transaction history request.
// GET /wallet/transactions?page&limit&type&status
func (h *WalletHandler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		respondWithError(w, r, h.logger, "Invalid query", util.NewError(util.ErrInvalidInput, "page must be a positive integer"))
		return
	}
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		respondWithError(w, r, h.logger, "Invalid query", util.NewError(util.ErrInvalidInput, "limit must be a positive integer"))
		return
	}

	history, err := h.service.GetTransactionHistory(r.Context(), middleware.UserIDFromContext(r.Context()), service.HistoryQuery{
		Page:   page,
		Limit:  limit,
		Type:   q.Get("type"),
		Status: q.Get("status"),
	})
	if err != nil {
		respondWithError(w, r, h.logger, "Failed to fetch transactions", err)
		return
	}
	types.WriteSuccess(w, http.StatusOK, "Transactions retrieved", history)
}

// Transfer handles the transfer money request.
// POST /wallet/transfer
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		respondWithError(w, r, h.logger, "Invalid transfer request", err)
		return
	}

	result, err := h.service.TransferFunds(r.Context(), middleware.UserIDFromContext(r.Context()), service.TransferInput{
		RecipientID: req.RecipientID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respondWithError(w, r, h.logger, "Transfer failed", err)
		return
	}
	types.WriteSuccess(w, http.StatusCreated, "Transfer successful", result)
}

// TopUp credits a user's wallet for a payment the gateway has confirmed.
// Mounted for ADMIN and SERVICE callers only.
// POST /admin/wallet/topup
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req TopUpRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		respondWithError(w, r, h.logger, "Invalid top-up request", err)
		return
	}

	wallet, txn, err := h.service.TopUpWallet(r.Context(), req.UserID, req.Amount, req.PaymentReference)
	if err != nil {
		respondWithError(w, r, h.logger, "Top-up failed", err)
		return
	}
	types.WriteSuccess(w, http.StatusCreated, "Wallet topped up", walletEntry{Wallet: wallet, Transaction: txn})
}

// Withdraw handles the withdraw money request.
// POST /wallet/withdraw
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		respondWithError(w, r, h.logger, "Invalid withdrawal request", err)
		return
	}

	wallet, txn, err := h.service.WithdrawFromWallet(r.Context(), middleware.UserIDFromContext(r.Context()), req.Amount, req.Description)
	if err != nil {
		respondWithError(w, r, h.logger, "Withdrawal failed", err)
		return
	}
	types.WriteSuccess(w, http.StatusCreated, "Withdrawal successful", walletEntry{Wallet: wallet, Transaction: txn})
}

// optionalInt parses a positive query integer; empty means zero (use the default).
func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, util.ErrInvalidInput
	}
	return v, nil
}
