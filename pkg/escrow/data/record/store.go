package record

import (
	"context"

	"github.com/escrow-payments/escrow-server/pkg/database/query"
)

type Store interface {
	// Put creates a new escrow record. The address is the uniqueness domain;
	// ErrRecordExists is returned if a record is already stored at it,
	// whether active or resolved.
	Put(ctx context.Context, record *Record) error

	// GetByAddress gets an escrow record by its state address
	GetByAddress(ctx context.Context, address string) (*Record, error)

	// GetByVault gets an escrow record by its vault address
	GetByVault(ctx context.Context, vault string) (*Record, error)

	// MarkResolved flips the record's completion flag exactly once.
	// ErrRecordAlreadyResolved is returned on any subsequent attempt.
	MarkResolved(ctx context.Context, address string) error

	// GetAllByBuyer gets a page of escrow records where the provided
	// account is the buyer
	GetAllByBuyer(ctx context.Context, buyer string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// GetAllBySeller gets a page of escrow records where the provided
	// account is the seller
	GetAllBySeller(ctx context.Context, seller string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// GetCountByBuyer gets the total count of escrow records for a buyer
	GetCountByBuyer(ctx context.Context, buyer string) (uint64, error)
}
