// internal/domain/escrow.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EscrowStatus is the lifecycle state of an escrow.
type EscrowStatus string

const (
	EscrowStatusCreated  EscrowStatus = "CREATED"
	EscrowStatusFunded   EscrowStatus = "FUNDED"
	EscrowStatusDisputed EscrowStatus = "DISPUTED"
	EscrowStatusReleased EscrowStatus = "RELEASED"
	EscrowStatusRefunded EscrowStatus = "REFUNDED"
	EscrowStatusExpired  EscrowStatus = "EXPIRED"
)

// escrowTransitions lists every allowed edge. DISPUTED has no outgoing edge:
// resolution is a manual process outside this service.
var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusCreated: {EscrowStatusFunded, EscrowStatusExpired},
	EscrowStatusFunded:  {EscrowStatusDisputed, EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusExpired},
}

// CanTransitionTo reports whether s -> next is an edge of the escrow state machine.
func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	for _, allowed := range escrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s EscrowStatus) IsTerminal() bool {
	return len(escrowTransitions[s]) == 0
}

// Escrow holds a buyer's funds for one accepted offer.
type Escrow struct {
	ID               string       `db:"id" json:"id"`
	Reference        string       `db:"reference" json:"reference"`
	OfferID          string       `db:"offer_id" json:"offerId"`
	BuyerID          string       `db:"buyer_id" json:"buyerId"`
	SellerID         string       `db:"seller_id" json:"sellerId"`
	Amount           int64        `db:"amount" json:"amount"`
	Fee              int64        `db:"fee" json:"fee"`
	Status           EscrowStatus `db:"status" json:"status"`
	Description      *string      `db:"description" json:"description,omitempty"`
	ReleaseCondition *string      `db:"release_condition" json:"releaseCondition,omitempty"`
	ResolutionReason *string      `db:"resolution_reason" json:"resolutionReason,omitempty"` // Release or refund reason
	DisputeReason    *string      `db:"dispute_reason" json:"disputeReason,omitempty"`
	DisputeDetails   *string      `db:"dispute_details" json:"disputeDetails,omitempty"`
	DisputeReference *string      `db:"dispute_reference" json:"disputeReference,omitempty"`
	ExpiresAt        time.Time    `db:"expires_at" json:"expiresAt"`
	FundedAt         *time.Time   `db:"funded_at" json:"fundedAt,omitempty"`
	ReleasedAt       *time.Time   `db:"released_at" json:"releasedAt,omitempty"`
	RefundedAt       *time.Time   `db:"refunded_at" json:"refundedAt,omitempty"`
	ExpiredAt        *time.Time   `db:"expired_at" json:"expiredAt,omitempty"`
	DisputeOpenedAt  *time.Time   `db:"dispute_opened_at" json:"disputeOpenedAt,omitempty"`
	Version          int64        `db:"version" json:"version"`
	CreatedAt        time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updatedAt"`
}

// SellerProceeds is what the seller is credited on release.
func (e *Escrow) SellerProceeds() int64 {
	return e.Amount - e.Fee
}

// IsParty reports whether userID is the buyer or the seller.
func (e *Escrow) IsParty(userID string) bool {
	return userID != "" && (userID == e.BuyerID || userID == e.SellerID)
}

// IsExpired reports whether the escrow is past its deadline and still sweepable.
func (e *Escrow) IsExpired(now time.Time) bool {
	return (e.Status == EscrowStatusCreated || e.Status == EscrowStatusFunded) && now.After(e.ExpiresAt)
}

// ComputeFee returns amount x rate rounded half-up to whole kobo.
// rate is a fraction, so 5% is 0.05.
func ComputeFee(amount int64, rate decimal.Decimal) int64 {
	if amount <= 0 || rate.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// SweepResult counts what one run of the expiry sweep did.
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Expired  int `json:"expired"`
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// DisputeOutcome is returned when an escrow is frozen under dispute.
type DisputeOutcome struct {
	Escrow                *Escrow   `json:"escrow"`
	DisputeReference      string    `json:"disputeReference"`
	EstimatedResolutionAt time.Time `json:"estimatedResolutionAt"`
}

// ReleaseOutcome is returned when funds leave escrow for the seller.
type ReleaseOutcome struct {
	Escrow         *Escrow `json:"escrow"`
	AmountReleased int64   `json:"amountReleased"`
	FeeCharged     int64   `json:"feeCharged"`
	SellerBalance  int64   `json:"sellerBalance"`
}
