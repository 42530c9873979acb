package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/escrow-payments/escrow-server/pkg/database/query"
	"github.com/escrow-payments/escrow-server/pkg/escrow/common"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/record"
	"github.com/escrow-payments/escrow-server/pkg/escrow/engine"
)

var errInvalidParams = errors.New("invalid params")

// recordView is the read model exposed over RPC.
type recordView struct {
	Address      string     `json:"address"`
	VaultAddress string     `json:"vaultAddress"`
	Buyer        string     `json:"buyer"`
	Seller       string     `json:"seller"`
	Amount       uint64     `json:"amount"`
	ItemLabel    string     `json:"itemLabel"`
	IsCompleted  bool       `json:"isCompleted"`
	CreatedAt    time.Time  `json:"createdAt"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
}

func newRecordView(r *record.Record) *recordView {
	return &recordView{
		Address:      r.Address,
		VaultAddress: r.VaultAddress,
		Buyer:        r.Buyer,
		Seller:       r.Seller,
		Amount:       r.Amount,
		ItemLabel:    r.ItemLabel,
		IsCompleted:  r.IsCompleted,
		CreatedAt:    r.CreatedAt,
		ResolvedAt:   r.ResolvedAt,
	}
}

func newRecordViews(records []*record.Record) []*recordView {
	views := make([]*recordView, 0, len(records))
	for _, r := range records {
		views = append(views, newRecordView(r))
	}
	return views
}

func decodeAccount(value string) (*common.Account, error) {
	if len(value) == 0 {
		return nil, errInvalidParams
	}

	account, err := common.NewAccountFromPublicKeyString(value)
	if err != nil {
		return nil, errInvalidParams
	}
	return account, nil
}

func decodeSignature(value string) ([]byte, error) {
	if len(value) == 0 {
		return nil, errInvalidParams
	}

	signature, err := base58.Decode(value)
	if err != nil {
		return nil, errInvalidParams
	}
	return signature, nil
}

type createParams struct {
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	Amount         uint64 `json:"amount"`
	ItemLabel      string `json:"itemLabel"`
	FundingAccount string `json:"fundingAccount"`
	Signature      string `json:"signature"`
}

func (s *Server) handleCreate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params createParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errInvalidParams
	}

	buyer, err := decodeAccount(params.Buyer)
	if err != nil {
		return nil, err
	}
	seller, err := decodeAccount(params.Seller)
	if err != nil {
		return nil, err
	}
	signature, err := decodeSignature(params.Signature)
	if err != nil {
		return nil, err
	}
	if len(params.FundingAccount) == 0 {
		return nil, errInvalidParams
	}

	created, err := s.engine.Create(ctx, &engine.CreateParams{
		Buyer:          buyer,
		Seller:         seller,
		Amount:         params.Amount,
		ItemLabel:      params.ItemLabel,
		FundingAccount: params.FundingAccount,
		Signature:      signature,
	})
	if err != nil {
		return nil, err
	}

	return newRecordView(created), nil
}

type completeParams struct {
	Seller           string `json:"seller"`
	Escrow           string `json:"escrow"`
	RecipientAccount string `json:"recipientAccount"`
	Signature        string `json:"signature"`
}

func (s *Server) handleComplete(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params completeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errInvalidParams
	}

	seller, err := decodeAccount(params.Seller)
	if err != nil {
		return nil, err
	}
	signature, err := decodeSignature(params.Signature)
	if err != nil {
		return nil, err
	}
	if len(params.Escrow) == 0 || len(params.RecipientAccount) == 0 {
		return nil, errInvalidParams
	}

	err = s.engine.Complete(ctx, &engine.CompleteParams{
		Seller:           seller,
		EscrowAddress:    params.Escrow,
		RecipientAccount: params.RecipientAccount,
		Signature:        signature,
	})
	if err != nil {
		return nil, err
	}

	return map[string]bool{"resolved": true}, nil
}

type cancelParams struct {
	Buyer         string `json:"buyer"`
	Escrow        string `json:"escrow"`
	RefundAccount string `json:"refundAccount"`
	Signature     string `json:"signature"`
}

func (s *Server) handleCancel(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params cancelParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errInvalidParams
	}

	buyer, err := decodeAccount(params.Buyer)
	if err != nil {
		return nil, err
	}
	signature, err := decodeSignature(params.Signature)
	if err != nil {
		return nil, err
	}
	if len(params.Escrow) == 0 || len(params.RefundAccount) == 0 {
		return nil, errInvalidParams
	}

	err = s.engine.Cancel(ctx, &engine.CancelParams{
		Buyer:         buyer,
		EscrowAddress: params.Escrow,
		RefundAccount: params.RefundAccount,
		Signature:     signature,
	})
	if err != nil {
		return nil, err
	}

	return map[string]bool{"resolved": true}, nil
}

type getParams struct {
	Escrow string `json:"escrow"`
}

func (s *Server) handleGet(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params getParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errInvalidParams
	}
	if len(params.Escrow) == 0 {
		return nil, errInvalidParams
	}

	escrowRecord, err := s.engine.GetRecord(ctx, params.Escrow)
	if err != nil {
		return nil, err
	}

	return newRecordView(escrowRecord), nil
}

type getByVaultParams struct {
	Vault string `json:"vault"`
}

func (s *Server) handleGetByVault(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params getByVaultParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errInvalidParams
	}
	if len(params.Vault) == 0 {
		return nil, errInvalidParams
	}

	escrowRecord, err := s.engine.GetRecordByVault(ctx, params.Vault)
	if err != nil {
		return nil, err
	}

	return newRecordView(escrowRecord), nil
}

type listParams struct {
	Buyer     string `json:"buyer,omitempty"`
	Seller    string `json:"seller,omitempty"`
	Cursor    uint64 `json:"cursor,omitempty"`
	Limit     uint64 `json:"limit,omitempty"`
	Direction string `json:"direction,omitempty"`
}

const defaultListPageSize = 100

func (p *listParams) queryOptions() (query.Cursor, uint64, query.Ordering) {
	cursor := query.EmptyCursor
	if p.Cursor > 0 {
		cursor = query.ToCursor(p.Cursor)
	}

	limit := p.Limit
	if limit == 0 || limit > defaultListPageSize {
		limit = defaultListPageSize
	}

	return cursor, limit, query.ToOrderingWithFallback(p.Direction, query.Ascending)
}

func (s *Server) handleListByBuyer(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params listParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errInvalidParams
	}
	if len(params.Buyer) == 0 {
		return nil, errInvalidParams
	}

	cursor, limit, direction := params.queryOptions()
	records, err := s.engine.GetRecordsByBuyer(ctx, params.Buyer, cursor, limit, direction)
	if err != nil {
		if err == engine.ErrRecordNotFound {
			return []*recordView{}, nil
		}
		return nil, err
	}

	return newRecordViews(records), nil
}

type countByBuyerParams struct {
	Buyer string `json:"buyer"`
}

func (s *Server) handleCountByBuyer(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params countByBuyerParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errInvalidParams
	}
	if len(params.Buyer) == 0 {
		return nil, errInvalidParams
	}

	count, err := s.engine.GetRecordCountByBuyer(ctx, params.Buyer)
	if err != nil {
		return nil, err
	}

	return map[string]uint64{"count": count}, nil
}

func (s *Server) handleListBySeller(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params listParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errInvalidParams
	}
	if len(params.Seller) == 0 {
		return nil, errInvalidParams
	}

	cursor, limit, direction := params.queryOptions()
	records, err := s.engine.GetRecordsBySeller(ctx, params.Seller, cursor, limit, direction)
	if err != nil {
		if err == engine.ErrRecordNotFound {
			return []*recordView{}, nil
		}
		return nil, err
	}

	return newRecordViews(records), nil
}
