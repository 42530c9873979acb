package ledger

import (
	"time"

	"github.com/pkg/errors"
)

var (
	ErrAccountNotFound = errors.New("no token account could be found")
	ErrAccountExists   = errors.New("token account already exists")

	ErrInsufficientFunds = errors.New("token account has insufficient funds")
	ErrInvalidAuthority  = errors.New("authority doesn't own the source token account")
)

// AccountRecord is a token account on the ledger. The authority is the only
// identity allowed to move funds out of it. For escrow vaults, the authority
// is the escrow record's derived address rather than any human identity.
type AccountRecord struct {
	Id uint64

	Address   string
	Authority string

	Balance uint64

	CreatedAt time.Time
}

func (r *AccountRecord) Clone() *AccountRecord {
	return &AccountRecord{
		Id: r.Id,

		Address:   r.Address,
		Authority: r.Authority,

		Balance: r.Balance,

		CreatedAt: r.CreatedAt,
	}
}

func (r *AccountRecord) CopyTo(dst *AccountRecord) {
	dst.Id = r.Id

	dst.Address = r.Address
	dst.Authority = r.Authority

	dst.Balance = r.Balance

	dst.CreatedAt = r.CreatedAt
}

func (r *AccountRecord) Validate() error {
	if r == nil {
		return errors.New("account record is nil")
	}

	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Authority) == 0 {
		return errors.New("authority is required")
	}

	return nil
}
