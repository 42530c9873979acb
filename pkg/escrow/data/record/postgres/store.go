package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/escrow-payments/escrow-server/pkg/database/query"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/record"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres-backed record.Store
func New(db *sql.DB) record.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Put implements record.Store.Put
func (s *store) Put(ctx context.Context, data *record.Record) error {
	model, err := toModel(data)
	if err != nil {
		return err
	}

	if err := model.dbPut(ctx, s.db); err != nil {
		return err
	}

	res := fromModel(model)
	res.CopyTo(data)

	return nil
}

// GetByAddress implements record.Store.GetByAddress
func (s *store) GetByAddress(ctx context.Context, address string) (*record.Record, error) {
	model, err := dbGetByAddress(ctx, s.db, address)
	if err != nil {
		return nil, err
	}

	return fromModel(model), nil
}

// GetByVault implements record.Store.GetByVault
func (s *store) GetByVault(ctx context.Context, vault string) (*record.Record, error) {
	model, err := dbGetByVault(ctx, s.db, vault)
	if err != nil {
		return nil, err
	}

	return fromModel(model), nil
}

// MarkResolved implements record.Store.MarkResolved
func (s *store) MarkResolved(ctx context.Context, address string) error {
	return dbMarkResolved(ctx, s.db, address)
}

// GetAllByBuyer implements record.Store.GetAllByBuyer
func (s *store) GetAllByBuyer(ctx context.Context, buyer string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*record.Record, error) {
	models, err := dbGetAllByParty(ctx, s.db, "buyer", buyer, cursor, limit, direction)
	if err != nil {
		return nil, err
	}

	res := make([]*record.Record, len(models))
	for i, model := range models {
		res[i] = fromModel(model)
	}
	return res, nil
}

// GetAllBySeller implements record.Store.GetAllBySeller
func (s *store) GetAllBySeller(ctx context.Context, seller string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*record.Record, error) {
	models, err := dbGetAllByParty(ctx, s.db, "seller", seller, cursor, limit, direction)
	if err != nil {
		return nil, err
	}

	res := make([]*record.Record, len(models))
	for i, model := range models {
		res[i] = fromModel(model)
	}
	return res, nil
}

// GetCountByBuyer implements record.Store.GetCountByBuyer
func (s *store) GetCountByBuyer(ctx context.Context, buyer string) (uint64, error) {
	return dbGetCountByBuyer(ctx, s.db, buyer)
}
