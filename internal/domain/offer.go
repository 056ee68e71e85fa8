// internal/domain/offer.go
package domain

import "time"

// OfferType is how a buyer proposes to pay for a listing.
type OfferType string

const (
	OfferTypeCash   OfferType = "CASH"
	OfferTypeSwap   OfferType = "SWAP"
	OfferTypeHybrid OfferType = "HYBRID"
)

// OfferStatus is the negotiation state of an offer.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "PENDING"
	OfferStatusAccepted  OfferStatus = "ACCEPTED"
	OfferStatusRejected  OfferStatus = "REJECTED"
	OfferStatusCountered OfferStatus = "COUNTERED"
	OfferStatusWithdrawn OfferStatus = "WITHDRAWN"
	OfferStatusCompleted OfferStatus = "COMPLETED"
)

// Offer is a buyer's proposal against a listing. Escrows are only created for accepted offers.
type Offer struct {
	ID         string      `db:"id" json:"id"`
	ListingID  string      `db:"listing_id" json:"listingId"`
	BuyerID    string      `db:"buyer_id" json:"buyerId"`
	SellerID   string      `db:"seller_id" json:"sellerId"`
	Type       OfferType   `db:"offer_type" json:"offerType"`
	Status     OfferStatus `db:"status" json:"status"`
	CashAmount *int64      `db:"cash_amount" json:"cashAmount,omitempty"` // Kobo; nil for pure swaps
	CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updatedAt"`
}
