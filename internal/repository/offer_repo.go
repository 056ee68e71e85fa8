// internal/repository/offer_repo.go
package repository

import (
	"context"

	"tradebybarter-ledger/internal/domain"
)

// OfferRepository reads offers. Offers are owned by the negotiation service.
type OfferRepository interface {
	GetOfferByID(ctx context.Context, q DBExecutor, id string) (*domain.Offer, error)
}
