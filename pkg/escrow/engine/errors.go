package engine

import "github.com/pkg/errors"

var (
	// ErrInvalidAmount is returned when a create request carries a zero
	// escrow amount.
	ErrInvalidAmount = errors.New("escrow amount must be positive")

	// ErrInvalidItemLabel is returned when the item label exceeds the
	// maximum length.
	ErrInvalidItemLabel = errors.New("item label is too long")

	// ErrInsufficientFunds is returned when the buyer's funding account
	// cannot cover the escrow amount.
	ErrInsufficientFunds = errors.New("insufficient funds in funding account")

	// ErrRecordExists is returned when an escrow already exists for the
	// (buyer, seller) pair.
	ErrRecordExists = errors.New("escrow record already exists")

	// ErrRecordNotFound is returned when no escrow record exists at the
	// provided address.
	ErrRecordNotFound = errors.New("escrow record not found")

	// ErrUnauthorized is returned when the caller isn't the party allowed
	// to perform the operation, or the signature doesn't verify.
	ErrUnauthorized = errors.New("caller is not authorized for this operation")

	// ErrAlreadyResolved is returned when completing or cancelling an
	// escrow that has already been resolved.
	ErrAlreadyResolved = errors.New("escrow record is already resolved")

	// ErrDerivationCollision is returned when no valid derived address
	// exists for the party pair. Callers retry with different inputs.
	ErrDerivationCollision = errors.New("no valid derived address for inputs")
)
