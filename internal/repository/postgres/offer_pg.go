// internal/repository/postgres/offer_pg.go
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/util"
)

// OfferRepository implements repository.OfferRepository for PostgreSQL.
type OfferRepository struct{}

// NewOfferRepository creates a new OfferRepository.
func NewOfferRepository(_ *sqlx.DB) repository.OfferRepository {
	return &OfferRepository{}
}

// GetOfferByID retrieves an offer by id.
func (r *OfferRepository) GetOfferByID(ctx context.Context, q repository.DBExecutor, id string) (*domain.Offer, error) {
	var offer domain.Offer
	query := `SELECT id, listing_id, buyer_id, seller_id, offer_type, status, cash_amount, created_at, updated_at
              FROM offers WHERE id = $1`
	if err := q.GetContext(ctx, &offer, query, id); err != nil {
		return nil, mapError("get offer", err, util.ErrOfferNotFound)
	}
	return &offer, nil
}
