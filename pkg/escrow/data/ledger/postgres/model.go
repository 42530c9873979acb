package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	pgutil "github.com/escrow-payments/escrow-server/pkg/database/postgres"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/ledger"
)

const (
	tableName = "escrow__core_tokenaccount"
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Address   string `db:"address"`
	Authority string `db:"authority"`

	Balance uint64 `db:"balance"`

	CreatedAt time.Time `db:"created_at"`
}

func toModel(obj *ledger.AccountRecord) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	return &model{
		Address:   obj.Address,
		Authority: obj.Authority,

		Balance: obj.Balance,

		CreatedAt: obj.CreatedAt,
	}, nil
}

func fromModel(obj *model) *ledger.AccountRecord {
	return &ledger.AccountRecord{
		Id: uint64(obj.Id.Int64),

		Address:   obj.Address,
		Authority: obj.Authority,

		Balance: obj.Balance,

		CreatedAt: obj.CreatedAt,
	}
}

const allFields = `id, address, authority, balance, created_at`

func (m *model) dbCreate(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(address, authority, balance, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING ` + allFields

		m.CreatedAt = time.Now()

		err := tx.QueryRowxContext(
			ctx,
			query,

			m.Address,
			m.Authority,

			m.Balance,

			m.CreatedAt.UTC(),
		).StructScan(m)

		return pgutil.CheckUniqueViolation(err, ledger.ErrAccountExists)
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
		return nil, pgutil.CheckNoRows(err, ledger.ErrAccountNotFound)
	}
	return res, nil
}

// dbTransfer debits the source and credits the destination within a single DB
// transaction. The debit is guarded on both the authority and the balance, so
// a failed precondition rolls the whole transfer back.
func dbTransfer(ctx context.Context, db *sqlx.DB, source, destination, authority string, amount uint64) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		debitQuery := `UPDATE ` + tableName + `
			SET balance = balance - $3
			WHERE address = $1 AND authority = $2 AND balance >= $3`

		res, err := tx.ExecContext(ctx, debitQuery, source, authority, amount)
		if err != nil {
			return err
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return classifyFailedDebit(ctx, tx, source, authority, amount)
		}

		creditQuery := `UPDATE ` + tableName + `
			SET balance = balance + $2
			WHERE address = $1`

		res, err = tx.ExecContext(ctx, creditQuery, destination, amount)
		if err != nil {
			return err
		}

		rows, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ledger.ErrAccountNotFound
		}

		return nil
	})
}

func classifyFailedDebit(ctx context.Context, tx *sqlx.Tx, source, authority string, amount uint64) error {
	existing := &model{}

	query := `SELECT ` + allFields + ` FROM ` + tableName + ` WHERE address = $1 LIMIT 1`

	err := tx.GetContext(ctx, existing, query, source)
	if err != nil {
		return pgutil.CheckNoRows(err, ledger.ErrAccountNotFound)
	}

	if existing.Authority != authority {
		return ledger.ErrInvalidAuthority
	}
	if existing.Balance < amount {
		return ledger.ErrInsufficientFunds
	}

	// The guarded update should have succeeded
	return errors.New("transfer failed for an unexpected reason")
}
