// internal/api/handler/escrow.go
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradebybarter-ledger/internal/api/middleware"
	"tradebybarter-ledger/internal/api/types"
	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/service"
)

// Sweeper runs one locked expiry sweep on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (domain.SweepResult, error)
}

// EscrowHandler handles the escrow lifecycle endpoints.
type EscrowHandler struct {
	service service.EscrowService
	sweeper Sweeper
	logger  *slog.Logger
}

func NewEscrowHandler(svc service.EscrowService, sweeper Sweeper, logger *slog.Logger) *EscrowHandler {
	return &EscrowHandler{service: svc, sweeper: sweeper, logger: logger}
}

type CreateEscrowRequest struct {
	OfferID            string `json:"offerId" validate:"required,max=64"`
	Description        string `json:"description" validate:"max=500"`
	CustomAmountInKobo *int64 `json:"customAmountInKobo" validate:"omitempty,gt=0"`
	ReleaseCondition   string `json:"releaseCondition" validate:"max=500"`
}

type ReleaseEscrowRequest struct {
	Reason            string `json:"reason" validate:"max=500"`
	ConfirmCompletion bool   `json:"confirmCompletion"`
}

type RefundEscrowRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type DisputeEscrowRequest struct {
	Reason  string `json:"reason" validate:"required,max=500"`
	Details string `json:"details" validate:"max=2000"`
}

// POST /escrow/create
func (h *EscrowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEscrowRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		respondWithError(w, r, h.logger, "Invalid escrow request", err)
		return
	}

	escrow, err := h.service.CreateEscrow(r.Context(), middleware.UserIDFromContext(r.Context()), service.CreateEscrowInput{
		OfferID:            req.OfferID,
		Description:        req.Description,
		CustomAmountInKobo: req.CustomAmountInKobo,
		ReleaseCondition:   req.ReleaseCondition,
	})
	if err != nil {
		respondWithError(w, r, h.logger, "Failed to create escrow", err)
		return
	}
	types.WriteSuccess(w, http.StatusCreated, "Escrow created", escrow)
}

// POST /escrow/{id}/fund
func (h *EscrowHandler) Fund(w http.ResponseWriter, r *http.Request) {
	escrow, err := h.service.FundEscrow(r.Context(), chi.URLParam(r, "id"), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		respondWithError(w, r, h.logger, "Failed to fund escrow", err)
		return
	}
	types.WriteSuccess(w, http.StatusOK, "Escrow funded", escrow)
}

// PUT /escrow/{id}/release
func (h *EscrowHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req ReleaseEscrowRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		respondWithError(w, r, h.logger, "Invalid release request", err)
		return
	}

	outcome, err := h.service.ReleaseEscrow(r.Context(), chi.URLParam(r, "id"), middleware.UserIDFromContext(r.Context()), service.ReleaseEscrowInput{
		Reason:            req.Reason,
		ConfirmCompletion: req.ConfirmCompletion,
	})
	if err != nil {
		respondWithError(w, r, h.logger, "Failed to release escrow", err)
		return
	}
	types.WriteSuccess(w, http.StatusOK, "Escrow released", outcome)
}

// POST /escrow/{id}/refund
func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundEscrowRequest
	if err := decodeAndValidate(r, &req, true); err != nil {
		respondWithError(w, r, h.logger, "Invalid refund request", err)
		return
	}

	escrow, err := h.service.RefundEscrow(r.Context(), chi.URLParam(r, "id"), middleware.UserIDFromContext(r.Context()), service.RefundEscrowInput{
		Reason: req.Reason,
	})
	if err != nil {
		respondWithError(w, r, h.logger, "Failed to refund escrow", err)
		return
	}
	types.WriteSuccess(w, http.StatusOK, "Escrow refunded", escrow)
}

// POST /escrow/{id}/dispute
func (h *EscrowHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	var req DisputeEscrowRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		respondWithError(w, r, h.logger, "Invalid dispute request", err)
		return
	}

	outcome, err := h.service.DisputeEscrow(r.Context(), chi.URLParam(r, "id"), middleware.UserIDFromContext(r.Context()), service.DisputeEscrowInput{
		Reason:  req.Reason,
		Details: req.Details,
	})
	if err != nil {
		respondWithError(w, r, h.logger, "Failed to open dispute", err)
		return
	}
	types.WriteSuccess(w, http.StatusCreated, "Dispute opened", outcome)
}

// GET /escrow/user
func (h *EscrowHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	escrows, err := h.service.GetUserEscrows(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		respondWithError(w, r, h.logger, "Failed to fetch escrows", err)
		return
	}
	types.WriteSuccess(w, http.StatusOK, "Escrows retrieved", escrows)
}

// GET /escrow/{id}
func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	escrow, err := h.service.GetEscrowByID(r.Context(), chi.URLParam(r, "id"), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		respondWithError(w, r, h.logger, "Failed to fetch escrow", err)
		return
	}
	types.WriteSuccess(w, http.StatusOK, "Escrow retrieved", escrow)
}

// Sweep runs the expiry sweep now.
// POST /admin/escrow/sweep
func (h *EscrowHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		respondWithError(w, r, h.logger, "Escrow sweep failed", err)
		return
	}
	types.WriteSuccess(w, http.StatusOK, "Escrow sweep finished", result)
}
