package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/escrow-payments/escrow-server/pkg/escrow/data/ledger"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres-backed ledger.Store
func New(db *sql.DB) ledger.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// CreateAccount implements ledger.Store.CreateAccount
func (s *store) CreateAccount(ctx context.Context, data *ledger.AccountRecord) error {
	model, err := toModel(data)
	if err != nil {
		return err
	}

	if err := model.dbCreate(ctx, s.db); err != nil {
		return err
	}

	res := fromModel(model)
	res.CopyTo(data)

	return nil
}

// GetByAddress implements ledger.Store.GetByAddress
func (s *store) GetByAddress(ctx context.Context, address string) (*ledger.AccountRecord, error) {
	model, err := dbGetByAddress(ctx, s.db, address)
	if err != nil {
		return nil, err
	}

	return fromModel(model), nil
}

// Transfer implements ledger.Store.Transfer
func (s *store) Transfer(ctx context.Context, source, destination, authority string, amount uint64) error {
	return dbTransfer(ctx, s.db, source, destination, authority, amount)
}
