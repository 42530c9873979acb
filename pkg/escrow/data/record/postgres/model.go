package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/escrow-payments/escrow-server/pkg/database/postgres"
	q "github.com/escrow-payments/escrow-server/pkg/database/query"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/record"
)

const (
	tableName = "escrow__core_record"
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Address string `db:"address"`
	Bump    uint   `db:"bump"`

	VaultAddress string `db:"vault_address"`
	VaultBump    uint   `db:"vault_bump"`

	Buyer  string `db:"buyer"`
	Seller string `db:"seller"`

	Amount    uint64 `db:"amount"`
	ItemLabel string `db:"item_label"`

	IsCompleted bool `db:"is_completed"`

	CreatedAt  time.Time    `db:"created_at"`
	ResolvedAt sql.NullTime `db:"resolved_at"`
}

func toModel(obj *record.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	var resolvedAt sql.NullTime
	if obj.ResolvedAt != nil {
		resolvedAt.Valid = true
		resolvedAt.Time = *obj.ResolvedAt
	}

	return &model{
		Address: obj.Address,
		Bump:    uint(obj.Bump),

		VaultAddress: obj.VaultAddress,
		VaultBump:    uint(obj.VaultBump),

		Buyer:  obj.Buyer,
		Seller: obj.Seller,

		Amount:    obj.Amount,
		ItemLabel: obj.ItemLabel,

		IsCompleted: obj.IsCompleted,

		CreatedAt:  obj.CreatedAt,
		ResolvedAt: resolvedAt,
	}, nil
}

func fromModel(obj *model) *record.Record {
	var resolvedAt *time.Time
	if obj.ResolvedAt.Valid {
		value := obj.ResolvedAt.Time
		resolvedAt = &value
	}

	return &record.Record{
		Id: uint64(obj.Id.Int64),

		Address: obj.Address,
		Bump:    uint8(obj.Bump),

		VaultAddress: obj.VaultAddress,
		VaultBump:    uint8(obj.VaultBump),

		Buyer:  obj.Buyer,
		Seller: obj.Seller,

		Amount:    obj.Amount,
		ItemLabel: obj.ItemLabel,

		IsCompleted: obj.IsCompleted,

		CreatedAt:  obj.CreatedAt,
		ResolvedAt: resolvedAt,
	}
}

const allFields = `id, address, bump, vault_address, vault_bump, buyer, seller, amount, item_label, is_completed, created_at, resolved_at`

func (m *model) dbPut(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(address, bump, vault_address, vault_bump, buyer, seller, amount, item_label, is_completed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING ` + allFields

		m.CreatedAt = time.Now()

		err := tx.QueryRowxContext(
			ctx,
			query,

			m.Address,
			m.Bump,

			m.VaultAddress,
			m.VaultBump,

			m.Buyer,
			m.Seller,

			m.Amount,
			m.ItemLabel,

			m.IsCompleted,

			m.CreatedAt.UTC(),
		).StructScan(m)

		return pgutil.CheckUniqueViolation(err, record.ErrRecordExists)
	})
}

func dbGetByAddress(ctx context.Context, db *sqlx.DB, address string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allFields + `
		FROM ` + tableName + `
		WHERE address = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, record.ErrRecordNotFound)
	}
	return res, nil
}

func dbGetByVault(ctx context.Context, db *sqlx.DB, vault string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allFields + `
		FROM ` + tableName + `
		WHERE vault_address = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, vault)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, record.ErrRecordNotFound)
	}
	return res, nil
}

func dbMarkResolved(ctx context.Context, db *sqlx.DB, address string) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `UPDATE ` + tableName + `
			SET is_completed = TRUE, resolved_at = $2
			WHERE address = $1 AND is_completed IS FALSE`

		res, err := tx.ExecContext(ctx, query, address, time.Now().UTC())
		if err != nil {
			return err
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows > 0 {
			return nil
		}

		// Distinguish a missing record from one that was already resolved
		existsQuery := `SELECT ` + allFields + ` FROM ` + tableName + ` WHERE address = $1 LIMIT 1`
		existing := &model{}
		err = tx.GetContext(ctx, existing, existsQuery, address)
		if err != nil {
			return pgutil.CheckNoRows(err, record.ErrRecordNotFound)
		}
		return record.ErrRecordAlreadyResolved
	})
}

func dbGetAllByParty(ctx context.Context, db *sqlx.DB, column, party string, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allFields + `
		FROM ` + tableName + `
		WHERE (` + column + ` = $1)`

	query, opts := q.PaginateQuery(query, []interface{}{party}, cursor, limit, direction)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, record.ErrRecordNotFound)
	}
	if len(res) == 0 {
		return nil, record.ErrRecordNotFound
	}
	return res, nil
}

func dbGetCountByBuyer(ctx context.Context, db *sqlx.DB, buyer string) (uint64, error) {
	var res uint64

	query := `SELECT COUNT(*) FROM ` + tableName + ` WHERE buyer = $1`

	err := db.GetContext(ctx, &res, query, buyer)
	if err != nil {
		return 0, err
	}
	return res, nil
}
