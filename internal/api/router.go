// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"tradebybarter-ledger/internal/api/handler"
	"tradebybarter-ledger/internal/api/middleware"
	"tradebybarter-ledger/internal/cache"
	"tradebybarter-ledger/internal/domain"
)

// Options configures the router. A nil Idempotency store disables Idempotency-Key handling.
type Options struct {
	JWTSecret      []byte
	RequestTimeout time.Duration
	Idempotency    cache.IdempotencyStore
	IdempotencyTTL time.Duration
}

// NewRouter sets up and returns a new HTTP router.
func NewRouter(walletHandler *handler.WalletHandler, escrowHandler *handler.EscrowHandler, opts Options, logger *slog.Logger) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	idempotent := func(next http.Handler) http.Handler { return next }
	if opts.Idempotency != nil {
		idempotent = middleware.Idempotency(opts.Idempotency, opts.IdempotencyTTL, logger)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(opts.JWTSecret))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", walletHandler.GetWallet)
			r.Get("/transactions", walletHandler.GetTransactionHistory)
			r.With(idempotent).Post("/transfer", walletHandler.Transfer)
			r.With(idempotent).Post("/withdraw", walletHandler.Withdraw)
		})

		r.Route("/escrow", func(r chi.Router) {
			r.With(idempotent).Post("/create", escrowHandler.Create)
			r.Get("/user", escrowHandler.ListMine)
			r.Get("/{id}", escrowHandler.Get)
			r.With(idempotent).Post("/{id}/fund", escrowHandler.Fund)
			r.With(idempotent).Put("/{id}/release", escrowHandler.Release)
			r.With(idempotent).Post("/{id}/refund", escrowHandler.Refund)
			r.With(idempotent).Post("/{id}/dispute", escrowHandler.Dispute)
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(middleware.RequireRole(domain.RoleAdmin)).Post("/escrow/sweep", escrowHandler.Sweep)
			// Top-ups are confirmed by the payment gateway, never by the wallet owner.
			r.With(middleware.RequireRole(domain.RoleAdmin, domain.RoleService), idempotent).
				Post("/wallet/topup", walletHandler.TopUp)
		})
	})

	return r
}
