package ledger

import (
	"context"
)

type Store interface {
	// CreateAccount opens a new token account. ErrAccountExists is returned
	// if the address is already taken.
	CreateAccount(ctx context.Context, record *AccountRecord) error

	// GetByAddress gets a token account by its address
	GetByAddress(ctx context.Context, address string) (*AccountRecord, error)

	// Transfer atomically moves amount tokens between two accounts. The
	// authority must match the source account's authority. Either both
	// balances change, or neither does.
	Transfer(ctx context.Context, source, destination, authority string, amount uint64) error
}
