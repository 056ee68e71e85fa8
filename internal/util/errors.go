// internal/util/errors.go
package util

import (
	"errors"
	"fmt"
)

// Domain error categories. Handlers map each to one HTTP status.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input provided")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("conflict")
)

// ErrStorage marks failures of the ledger store itself (connectivity, driver,
// unexpected constraint violations), as opposed to business rule errors.
var ErrStorage = errors.New("storage failure")

// categorized is a specific error with its own message that matches one category.
type categorized struct {
	msg      string
	category error
}

func (e *categorized) Error() string { return e.msg }
func (e *categorized) Unwrap() error { return e.category }

// NewError returns an error with msg as its message that matches category under errors.Is.
func NewError(category error, msg string) error {
	return &categorized{msg: msg, category: category}
}

// Specific errors.
var (
	ErrWalletNotFound       = NewError(ErrNotFound, "wallet not found")
	ErrUserNotFound         = NewError(ErrNotFound, "user not found")
	ErrRecipientNotFound    = NewError(ErrNotFound, "recipient not found")
	ErrOfferNotFound        = NewError(ErrNotFound, "offer not found")
	ErrEscrowNotFound       = NewError(ErrNotFound, "escrow not found")
	ErrSelfTransfer         = NewError(ErrInvalidInput, "cannot transfer funds to yourself")
	ErrInvalidAmount        = NewError(ErrInvalidInput, "amount must be a positive number of kobo")
	ErrBelowMinimumEscrow   = NewError(ErrInvalidInput, "escrow amount is below the minimum")
	ErrCompletionRequired   = NewError(ErrInvalidInput, "completion must be confirmed to release escrow")
	ErrRecipientInactive    = NewError(ErrForbidden, "recipient account cannot receive funds")
	ErrNotEscrowParty       = NewError(ErrForbidden, "you are not a party to this escrow")
	ErrNotOfferBuyer        = NewError(ErrForbidden, "only the buyer on the offer can create an escrow")
	ErrBuyerOnly            = NewError(ErrForbidden, "only the buyer can perform this action")
	ErrSellerOnly           = NewError(ErrForbidden, "only the seller can perform this action")
	ErrOfferNotAccepted     = NewError(ErrInvalidState, "offer has not been accepted")
	ErrEscrowNotFundable    = NewError(ErrInvalidState, "escrow can only be funded while CREATED and unexpired")
	ErrEscrowNotFunded      = NewError(ErrInvalidState, "escrow is not in FUNDED state")
	ErrEscrowExists         = NewError(ErrConflict, "an escrow already exists for this offer")
	ErrDuplicateReference   = NewError(ErrConflict, "a transaction with this reference already exists")
	ErrIdempotencyInFlight  = NewError(ErrConflict, "a request with this idempotency key is still in progress")
	ErrIdempotencyKeyReused = NewError(ErrConflict, "idempotency key was used with a different request")
)

// IsError reports whether err matches target anywhere in its chain.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// IsDomainError reports whether err belongs to one of the business categories.
func IsDomainError(err error) bool {
	for _, category := range []error{
		ErrNotFound, ErrForbidden, ErrUnauthorized, ErrInvalidInput,
		ErrInvalidState, ErrInsufficientFunds, ErrConflict,
	} {
		if errors.Is(err, category) {
			return true
		}
	}
	return false
}

// StorageError wraps a driver error so it matches ErrStorage while keeping the cause.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
