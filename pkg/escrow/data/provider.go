package data

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/jmoiron/sqlx"

	pg "github.com/escrow-payments/escrow-server/pkg/database/postgres"
	"github.com/escrow-payments/escrow-server/pkg/database/query"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/ledger"
	ledger_memory "github.com/escrow-payments/escrow-server/pkg/escrow/data/ledger/memory"
	ledger_postgres "github.com/escrow-payments/escrow-server/pkg/escrow/data/ledger/postgres"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/record"
	record_memory "github.com/escrow-payments/escrow-server/pkg/escrow/data/record/memory"
	record_postgres "github.com/escrow-payments/escrow-server/pkg/escrow/data/record/postgres"
)

// Provider is the aggregated data access layer for the escrow system.
type Provider interface {
	// ExecuteInTx runs fn within a single DB transaction, so mutations
	// against multiple stores commit or roll back as a unit. The memory
	// provider runs fn directly.
	ExecuteInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Escrow records

	PutEscrowRecord(ctx context.Context, v *record.Record) error
	GetEscrowRecordByAddress(ctx context.Context, address string) (*record.Record, error)
	GetEscrowRecordByVault(ctx context.Context, vault string) (*record.Record, error)
	MarkEscrowRecordResolved(ctx context.Context, address string) error
	GetAllEscrowRecordsByBuyer(ctx context.Context, buyer string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*record.Record, error)
	GetAllEscrowRecordsBySeller(ctx context.Context, seller string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*record.Record, error)
	GetEscrowRecordCountByBuyer(ctx context.Context, buyer string) (uint64, error)

	// Token ledger

	CreateTokenAccount(ctx context.Context, v *ledger.AccountRecord) error
	GetTokenAccountByAddress(ctx context.Context, address string) (*ledger.AccountRecord, error)
	TransferTokens(ctx context.Context, source, destination, authority string, amount uint64) error
}

type DatabaseProvider struct {
	db *sqlx.DB // nil for the memory-backed provider

	records record.Store
	ledger  ledger.Store
}

// NewDatabaseProvider returns a postgres-backed Provider
func NewDatabaseProvider(dbConfig *pg.Config) (Provider, error) {
	db, err := pg.NewWithUsernameAndPassword(
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		strconv.Itoa(dbConfig.Port),
		dbConfig.DbName,
	)
	if err != nil {
		return nil, err
	}

	if dbConfig.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(dbConfig.MaxOpenConnections)
	}
	if dbConfig.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(dbConfig.MaxIdleConnections)
	}

	return &DatabaseProvider{
		db: sqlx.NewDb(db, "pgx"),

		records: record_postgres.New(db),
		ledger:  ledger_postgres.New(db),
	}, nil
}

// NewTestDataProvider returns a memory-backed Provider for testing
func NewTestDataProvider() Provider {
	return &DatabaseProvider{
		records: record_memory.New(),
		ledger:  ledger_memory.New(),
	}
}

func (p *DatabaseProvider) ExecuteInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.db == nil {
		return fn(ctx)
	}
	return pg.ExecuteTxWithinCtx(ctx, p.db, sql.LevelDefault, fn)
}

// Escrow records

func (p *DatabaseProvider) PutEscrowRecord(ctx context.Context, v *record.Record) error {
	return p.records.Put(ctx, v)
}
func (p *DatabaseProvider) GetEscrowRecordByAddress(ctx context.Context, address string) (*record.Record, error) {
	return p.records.GetByAddress(ctx, address)
}
func (p *DatabaseProvider) GetEscrowRecordByVault(ctx context.Context, vault string) (*record.Record, error) {
	return p.records.GetByVault(ctx, vault)
}
func (p *DatabaseProvider) MarkEscrowRecordResolved(ctx context.Context, address string) error {
	return p.records.MarkResolved(ctx, address)
}
func (p *DatabaseProvider) GetAllEscrowRecordsByBuyer(ctx context.Context, buyer string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*record.Record, error) {
	return p.records.GetAllByBuyer(ctx, buyer, cursor, limit, direction)
}
func (p *DatabaseProvider) GetAllEscrowRecordsBySeller(ctx context.Context, seller string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*record.Record, error) {
	return p.records.GetAllBySeller(ctx, seller, cursor, limit, direction)
}
func (p *DatabaseProvider) GetEscrowRecordCountByBuyer(ctx context.Context, buyer string) (uint64, error) {
	return p.records.GetCountByBuyer(ctx, buyer)
}

// Token ledger

func (p *DatabaseProvider) CreateTokenAccount(ctx context.Context, v *ledger.AccountRecord) error {
	return p.ledger.CreateAccount(ctx, v)
}
func (p *DatabaseProvider) GetTokenAccountByAddress(ctx context.Context, address string) (*ledger.AccountRecord, error) {
	return p.ledger.GetByAddress(ctx, address)
}
func (p *DatabaseProvider) TransferTokens(ctx context.Context, source, destination, authority string, amount uint64) error {
	return p.ledger.Transfer(ctx, source, destination, authority, amount)
}
