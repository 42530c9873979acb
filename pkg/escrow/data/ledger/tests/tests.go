package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrow-payments/escrow-server/pkg/escrow/data/ledger"
)

func RunTests(t *testing.T, s ledger.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s ledger.Store){
		testHappyPath,
		testCreateAccountIsInsertOnly,
		testTransferPreconditions,
		testTransferAtomicity,
	} {
		tf(t, s)
		teardown()
	}
}

func testHappyPath(t *testing.T, s ledger.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		start := time.Now()

		ctx := context.Background()

		expected := &ledger.AccountRecord{
			Address:   "token_account",
			Authority: "owner",
			Balance:   2000,
		}

		_, err := s.GetByAddress(ctx, expected.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		require.NoError(t, s.CreateAccount(ctx, expected))
		assert.True(t, expected.Id > 0)
		assert.True(t, expected.CreatedAt.After(start))

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assert.Equal(t, expected.Address, actual.Address)
		assert.Equal(t, expected.Authority, actual.Authority)
		assert.EqualValues(t, 2000, actual.Balance)
	})
}

func testCreateAccountIsInsertOnly(t *testing.T, s ledger.Store) {
	t.Run("testCreateAccountIsInsertOnly", func(t *testing.T) {
		ctx := context.Background()

		original := &ledger.AccountRecord{
			Address:   "token_account",
			Authority: "owner",
			Balance:   2000,
		}
		require.NoError(t, s.CreateAccount(ctx, original))

		conflicting := &ledger.AccountRecord{
			Address:   "token_account",
			Authority: "attacker",
			Balance:   0,
		}
		assert.Equal(t, ledger.ErrAccountExists, s.CreateAccount(ctx, conflicting))

		actual, err := s.GetByAddress(ctx, original.Address)
		require.NoError(t, err)
		assert.Equal(t, "owner", actual.Authority)
		assert.EqualValues(t, 2000, actual.Balance)
	})
}

func testTransferPreconditions(t *testing.T, s ledger.Store) {
	t.Run("testTransferPreconditions", func(t *testing.T) {
		ctx := context.Background()

		source := &ledger.AccountRecord{
			Address:   "source",
			Authority: "owner",
			Balance:   1000,
		}
		destination := &ledger.AccountRecord{
			Address:   "destination",
			Authority: "other_owner",
			Balance:   0,
		}
		require.NoError(t, s.CreateAccount(ctx, source))
		require.NoError(t, s.CreateAccount(ctx, destination))

		assert.Equal(t, ledger.ErrAccountNotFound, s.Transfer(ctx, "missing", "destination", "owner", 1))
		assert.Equal(t, ledger.ErrAccountNotFound, s.Transfer(ctx, "source", "missing", "owner", 1))
		assert.Equal(t, ledger.ErrInvalidAuthority, s.Transfer(ctx, "source", "destination", "attacker", 1))
		assert.Equal(t, ledger.ErrInsufficientFunds, s.Transfer(ctx, "source", "destination", "owner", 1001))

		// No failed precondition moved any funds
		actual, err := s.GetByAddress(ctx, "source")
		require.NoError(t, err)
		assert.EqualValues(t, 1000, actual.Balance)

		actual, err = s.GetByAddress(ctx, "destination")
		require.NoError(t, err)
		assert.EqualValues(t, 0, actual.Balance)
	})
}

func testTransferAtomicity(t *testing.T, s ledger.Store) {
	t.Run("testTransferAtomicity", func(t *testing.T) {
		ctx := context.Background()

		source := &ledger.AccountRecord{
			Address:   "source",
			Authority: "owner",
			Balance:   2000,
		}
		destination := &ledger.AccountRecord{
			Address:   "destination",
			Authority: "other_owner",
			Balance:   0,
		}
		require.NoError(t, s.CreateAccount(ctx, source))
		require.NoError(t, s.CreateAccount(ctx, destination))

		require.NoError(t, s.Transfer(ctx, "source", "destination", "owner", 1000))

		actual, err := s.GetByAddress(ctx, "source")
		require.NoError(t, err)
		assert.EqualValues(t, 1000, actual.Balance)

		actual, err = s.GetByAddress(ctx, "destination")
		require.NoError(t, err)
		assert.EqualValues(t, 1000, actual.Balance)

		// Draining the account entirely is allowed
		require.NoError(t, s.Transfer(ctx, "source", "destination", "owner", 1000))

		actual, err = s.GetByAddress(ctx, "source")
		require.NoError(t, err)
		assert.EqualValues(t, 0, actual.Balance)

		actual, err = s.GetByAddress(ctx, "destination")
		require.NoError(t, err)
		assert.EqualValues(t, 2000, actual.Balance)
	})
}
