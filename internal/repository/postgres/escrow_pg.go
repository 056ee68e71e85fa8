// internal/repository/postgres/escrow_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/util"
)

const escrowColumns = `id, reference, offer_id, buyer_id, seller_id, amount, fee, status, description,
       release_condition, resolution_reason, dispute_reason, dispute_details, dispute_reference,
       expires_at, funded_at, released_at, refunded_at, expired_at, dispute_opened_at,
       version, created_at, updated_at`

// EscrowRepository implements repository.EscrowRepository for PostgreSQL.
type EscrowRepository struct{}

// NewEscrowRepository creates a new EscrowRepository.
func NewEscrowRepository(_ *sqlx.DB) repository.EscrowRepository {
	return &EscrowRepository{}
}

// CreateEscrow inserts a new escrow row.
func (r *EscrowRepository) CreateEscrow(ctx context.Context, q repository.DBExecutor, e *domain.Escrow) error {
	query := `INSERT INTO escrows (id, reference, offer_id, buyer_id, seller_id, amount, fee, status,
                                   description, release_condition, expires_at, version, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := q.ExecContext(ctx, query,
		e.ID, e.Reference, e.OfferID, e.BuyerID, e.SellerID, e.Amount, e.Fee, e.Status,
		e.Description, e.ReleaseCondition, e.ExpiresAt, e.Version, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "escrows_offer_id_key") {
			return util.ErrEscrowExists
		}
		return util.StorageError("create escrow", err)
	}
	return nil
}

func (r *EscrowRepository) getOne(ctx context.Context, q repository.DBExecutor, op, query string, arg interface{}) (*domain.Escrow, error) {
	var e domain.Escrow
	if err := q.GetContext(ctx, &e, query, arg); err != nil {
		return nil, mapError(op, err, util.ErrEscrowNotFound)
	}
	return &e, nil
}

// GetEscrowByID retrieves an escrow without locking it.
func (r *EscrowRepository) GetEscrowByID(ctx context.Context, q repository.DBExecutor, id string) (*domain.Escrow, error) {
	return r.getOne(ctx, q, "get escrow", `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id)
}

// GetEscrowByIDForUpdate retrieves an escrow and holds its row lock until the transaction ends.
func (r *EscrowRepository) GetEscrowByIDForUpdate(ctx context.Context, q repository.DBExecutor, id string) (*domain.Escrow, error) {
	return r.getOne(ctx, q, "lock escrow", `SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE`, id)
}

// GetEscrowByOfferID retrieves the escrow opened for an offer.
func (r *EscrowRepository) GetEscrowByOfferID(ctx context.Context, q repository.DBExecutor, offerID string) (*domain.Escrow, error) {
	return r.getOne(ctx, q, "get escrow by offer", `SELECT `+escrowColumns+` FROM escrows WHERE offer_id = $1`, offerID)
}

// ListEscrowsByUser lists escrows where the user is buyer or seller, newest first.
func (r *EscrowRepository) ListEscrowsByUser(ctx context.Context, q repository.DBExecutor, userID string) ([]domain.Escrow, error) {
	escrows := []domain.Escrow{}
	query := `SELECT ` + escrowColumns + ` FROM escrows
              WHERE buyer_id = $1 OR seller_id = $1
              ORDER BY created_at DESC`
	if err := q.SelectContext(ctx, &escrows, query, userID); err != nil {
		return nil, util.StorageError("list escrows", err)
	}
	return escrows, nil
}

// CountActiveEscrows counts non-terminal escrows per role.
func (r *EscrowRepository) CountActiveEscrows(ctx context.Context, q repository.DBExecutor, userID string) (int64, int64, error) {
	var counts struct {
		AsBuyer  int64 `db:"as_buyer"`
		AsSeller int64 `db:"as_seller"`
	}
	query := `SELECT
	    COUNT(*) FILTER (WHERE buyer_id = $1) AS as_buyer,
	    COUNT(*) FILTER (WHERE seller_id = $1) AS as_seller
	  FROM escrows
	  WHERE (buyer_id = $1 OR seller_id = $1) AND status IN ('CREATED', 'FUNDED')`
	if err := q.GetContext(ctx, &counts, query, userID); err != nil {
		return 0, 0, util.StorageError("count escrows", err)
	}
	return counts.AsBuyer, counts.AsSeller, nil
}

// UpdateEscrow writes the mutable columns if the row is still at expectedStatus and
// the version e was read with, then bumps e.Version.
func (r *EscrowRepository) UpdateEscrow(ctx context.Context, q repository.DBExecutor, e *domain.Escrow, expectedStatus domain.EscrowStatus) error {
	query := `
		UPDATE escrows
		SET status = $1, resolution_reason = $2, dispute_reason = $3, dispute_details = $4, dispute_reference = $5,
		    funded_at = $6, released_at = $7, refunded_at = $8, expired_at = $9, dispute_opened_at = $10,
		    version = version + 1, updated_at = $11
		WHERE id = $12 AND status = $13 AND version = $14
		RETURNING version`
	var version int64
	err := q.GetContext(ctx, &version, query,
		e.Status, e.ResolutionReason, e.DisputeReason, e.DisputeDetails, e.DisputeReference,
		e.FundedAt, e.ReleasedAt, e.RefundedAt, e.ExpiredAt, e.DisputeOpenedAt,
		e.UpdatedAt, e.ID, expectedStatus, e.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return util.ErrInvalidState
		}
		return util.StorageError("update escrow", err)
	}
	e.Version = version
	return nil
}

// ListExpiredEscrowIDs returns up to limit ids of CREATED or FUNDED escrows past their deadline.
func (r *EscrowRepository) ListExpiredEscrowIDs(ctx context.Context, q repository.DBExecutor, now time.Time, limit int) ([]string, error) {
	ids := []string{}
	query := `SELECT id FROM escrows
              WHERE status IN ('CREATED', 'FUNDED') AND expires_at < $1
              ORDER BY expires_at
              LIMIT $2`
	if err := q.SelectContext(ctx, &ids, query, now, limit); err != nil {
		return nil, util.StorageError("list expired escrows", err)
	}
	return ids, nil
}
