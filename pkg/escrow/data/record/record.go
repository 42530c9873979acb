package record

import (
	"time"

	"github.com/pkg/errors"
)

// MaxItemLabelLength bounds the informational item label. The label carries
// no business logic; the bound only caps storage.
const MaxItemLabelLength = 50

var (
	ErrRecordNotFound = errors.New("no escrow record could be found")
	ErrRecordExists   = errors.New("escrow record already exists")

	// ErrRecordAlreadyResolved is returned by MarkResolved when the record
	// has already been resolved. The transition is exactly-once.
	ErrRecordAlreadyResolved = errors.New("escrow record already resolved")
)

// Record is the persistent state of a single escrow between one buyer and
// one seller. The address and vault address are deterministic functions of
// the (buyer, seller) pair, so at most one record exists per pair.
type Record struct {
	Id uint64

	Address string
	Bump    uint8

	VaultAddress string
	VaultBump    uint8

	Buyer  string
	Seller string

	Amount    uint64
	ItemLabel string

	// IsCompleted denotes "resolved", by either completion or cancellation.
	// It transitions false -> true exactly once and never back.
	IsCompleted bool

	CreatedAt  time.Time
	ResolvedAt *time.Time
}

func (r *Record) IsActive() bool {
	return !r.IsCompleted
}

func (r *Record) Clone() *Record {
	var resolvedAt *time.Time
	if r.ResolvedAt != nil {
		value := *r.ResolvedAt
		resolvedAt = &value
	}

	return &Record{
		Id: r.Id,

		Address: r.Address,
		Bump:    r.Bump,

		VaultAddress: r.VaultAddress,
		VaultBump:    r.VaultBump,

		Buyer:  r.Buyer,
		Seller: r.Seller,

		Amount:    r.Amount,
		ItemLabel: r.ItemLabel,

		IsCompleted: r.IsCompleted,

		CreatedAt:  r.CreatedAt,
		ResolvedAt: resolvedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	var resolvedAt *time.Time
	if r.ResolvedAt != nil {
		value := *r.ResolvedAt
		resolvedAt = &value
	}

	dst.Id = r.Id

	dst.Address = r.Address
	dst.Bump = r.Bump

	dst.VaultAddress = r.VaultAddress
	dst.VaultBump = r.VaultBump

	dst.Buyer = r.Buyer
	dst.Seller = r.Seller

	dst.Amount = r.Amount
	dst.ItemLabel = r.ItemLabel

	dst.IsCompleted = r.IsCompleted

	dst.CreatedAt = r.CreatedAt
	dst.ResolvedAt = resolvedAt
}

func (r *Record) Validate() error {
	if r == nil {
		return errors.New("record is nil")
	}

	if len(r.Address) == 0 {
		return errors.New("escrow address is required")
	}

	if len(r.VaultAddress) == 0 {
		return errors.New("vault address is required")
	}

	if len(r.Buyer) == 0 {
		return errors.New("buyer is required")
	}

	if len(r.Seller) == 0 {
		return errors.New("seller is required")
	}

	if r.Amount == 0 {
		return errors.New("amount must be positive")
	}

	if len(r.ItemLabel) > MaxItemLabelLength {
		return errors.Errorf("item label can't exceed %d characters", MaxItemLabelLength)
	}

	return nil
}
