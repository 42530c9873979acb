package engine

import (
	"fmt"

	"github.com/escrow-payments/escrow-server/pkg/escrow/common"
)

// CreateParams are the parameters for opening a new escrow. The signature
// must be produced by the buyer over Message().
type CreateParams struct {
	Buyer          *common.Account
	Seller         *common.Account
	Amount         uint64
	ItemLabel      string
	FundingAccount string

	Signature []byte
}

// Message is the canonical byte message the buyer signs to authorize the
// create. Both client and server must construct it identically.
func (p *CreateParams) Message() []byte {
	return []byte(fmt.Sprintf(
		"escrow:create:%s:%s:%d:%s:%s",
		p.Buyer.PublicKey().ToBase58(),
		p.Seller.PublicKey().ToBase58(),
		p.Amount,
		p.ItemLabel,
		p.FundingAccount,
	))
}

// CompleteParams are the parameters for releasing an escrow's funds to the
// seller. The signature must be produced by the seller over Message().
type CompleteParams struct {
	Seller           *common.Account
	EscrowAddress    string
	RecipientAccount string

	Signature []byte
}

func (p *CompleteParams) Message() []byte {
	return []byte(fmt.Sprintf(
		"escrow:complete:%s:%s:%s",
		p.Seller.PublicKey().ToBase58(),
		p.EscrowAddress,
		p.RecipientAccount,
	))
}

// CancelParams are the parameters for returning an escrow's funds to the
// buyer. The signature must be produced by the buyer over Message().
type CancelParams struct {
	Buyer         *common.Account
	EscrowAddress string
	RefundAccount string

	Signature []byte
}

func (p *CancelParams) Message() []byte {
	return []byte(fmt.Sprintf(
		"escrow:cancel:%s:%s:%s",
		p.Buyer.PublicKey().ToBase58(),
		p.EscrowAddress,
		p.RefundAccount,
	))
}
