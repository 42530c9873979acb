package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrow-payments/escrow-server/pkg/database/query"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/record"
)

func RunTests(t *testing.T, s record.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s record.Store){
		testHappyPath,
		testPutIsInsertOnly,
		testMarkResolvedIsExactlyOnce,
		testValidation,
		testPagedQueries,
	} {
		tf(t, s)
		teardown()
	}
}

func testHappyPath(t *testing.T, s record.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		start := time.Now()

		ctx := context.Background()

		expected := &record.Record{
			Address: "escrow_state",
			Bump:    254,

			VaultAddress: "escrow_vault",
			VaultBump:    255,

			Buyer:  "buyer",
			Seller: "seller",

			Amount:    1000,
			ItemLabel: "iPhone 15 Pro",
		}

		// Validate the record initially doesn't exist

		_, err := s.GetByAddress(ctx, expected.Address)
		assert.Equal(t, record.ErrRecordNotFound, err)

		_, err = s.GetByVault(ctx, expected.VaultAddress)
		assert.Equal(t, record.ErrRecordNotFound, err)

		// Save the record

		require.NoError(t, s.Put(ctx, expected))
		assert.True(t, expected.Id > 0)
		assert.True(t, expected.CreatedAt.After(start))

		cloned := expected.Clone()

		// Ensure we can fetch the same record by all supported indices

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentRecords(t, cloned, actual)
		assert.False(t, actual.IsCompleted)
		assert.Nil(t, actual.ResolvedAt)

		actual, err = s.GetByVault(ctx, expected.VaultAddress)
		require.NoError(t, err)
		assertEquivalentRecords(t, cloned, actual)

		// Resolve the record

		require.NoError(t, s.MarkResolved(ctx, expected.Address))

		actual, err = s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assert.True(t, actual.IsCompleted)
		require.NotNil(t, actual.ResolvedAt)
		assert.True(t, actual.ResolvedAt.After(start))

		// Everything but the completion state is immutable

		assert.Equal(t, cloned.Buyer, actual.Buyer)
		assert.Equal(t, cloned.Seller, actual.Seller)
		assert.Equal(t, cloned.Amount, actual.Amount)
		assert.Equal(t, cloned.ItemLabel, actual.ItemLabel)
	})
}

func testPutIsInsertOnly(t *testing.T, s record.Store) {
	t.Run("testPutIsInsertOnly", func(t *testing.T) {
		ctx := context.Background()

		original := &record.Record{
			Address:      "escrow_state",
			VaultAddress: "escrow_vault",
			Buyer:        "buyer",
			Seller:       "seller",
			Amount:       1000,
		}
		require.NoError(t, s.Put(ctx, original))

		// Same address, different contents
		conflicting := &record.Record{
			Address:      "escrow_state",
			VaultAddress: "other_vault",
			Buyer:        "other_buyer",
			Seller:       "other_seller",
			Amount:       42,
		}
		assert.Equal(t, record.ErrRecordExists, s.Put(ctx, conflicting))

		// The original record is untouched
		actual, err := s.GetByAddress(ctx, original.Address)
		require.NoError(t, err)
		assert.Equal(t, original.Buyer, actual.Buyer)
		assert.Equal(t, original.Amount, actual.Amount)

		// A resolved record still occupies its address
		require.NoError(t, s.MarkResolved(ctx, original.Address))
		assert.Equal(t, record.ErrRecordExists, s.Put(ctx, conflicting))
	})
}

func testMarkResolvedIsExactlyOnce(t *testing.T, s record.Store) {
	t.Run("testMarkResolvedIsExactlyOnce", func(t *testing.T) {
		ctx := context.Background()

		assert.Equal(t, record.ErrRecordNotFound, s.MarkResolved(ctx, "missing"))

		saved := &record.Record{
			Address:      "escrow_state",
			VaultAddress: "escrow_vault",
			Buyer:        "buyer",
			Seller:       "seller",
			Amount:       1000,
		}
		require.NoError(t, s.Put(ctx, saved))

		require.NoError(t, s.MarkResolved(ctx, saved.Address))

		// The transition is monotonic and exactly-once
		assert.Equal(t, record.ErrRecordAlreadyResolved, s.MarkResolved(ctx, saved.Address))

		actual, err := s.GetByAddress(ctx, saved.Address)
		require.NoError(t, err)
		assert.True(t, actual.IsCompleted)
	})
}

func testValidation(t *testing.T, s record.Store) {
	t.Run("testValidation", func(t *testing.T) {
		ctx := context.Background()

		valid := record.Record{
			Address:      "escrow_state",
			VaultAddress: "escrow_vault",
			Buyer:        "buyer",
			Seller:       "seller",
			Amount:       1,
		}

		zeroAmount := valid
		zeroAmount.Amount = 0
		assert.Error(t, s.Put(ctx, &zeroAmount))

		longLabel := valid
		for len(longLabel.ItemLabel) <= record.MaxItemLabelLength {
			longLabel.ItemLabel += "x"
		}
		assert.Error(t, s.Put(ctx, &longLabel))

		noBuyer := valid
		noBuyer.Buyer = ""
		assert.Error(t, s.Put(ctx, &noBuyer))

		_, err := s.GetByAddress(ctx, valid.Address)
		assert.Equal(t, record.ErrRecordNotFound, err)
	})
}

func testPagedQueries(t *testing.T, s record.Store) {
	t.Run("testPagedQueries", func(t *testing.T) {
		ctx := context.Background()

		records := make([]*record.Record, 0)
		for i := 0; i < 5; i++ {
			seller := "seller"
			if i%2 == 0 {
				seller = "other_seller"
			}

			r := &record.Record{
				Address:      fmt.Sprintf("escrow_state_%d", i),
				VaultAddress: fmt.Sprintf("escrow_vault_%d", i),
				Buyer:        "buyer",
				Seller:       seller,
				Amount:       uint64(1000 + i),
			}
			require.NoError(t, s.Put(ctx, r))
			records = append(records, r)
		}

		_, err := s.GetAllByBuyer(ctx, "unknown", query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, record.ErrRecordNotFound, err)

		count, err := s.GetCountByBuyer(ctx, "unknown")
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		count, err = s.GetCountByBuyer(ctx, "buyer")
		require.NoError(t, err)
		assert.EqualValues(t, 5, count)

		actual, err := s.GetAllByBuyer(ctx, "buyer", query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i, item := range actual {
			assertEquivalentRecords(t, records[i], item)
		}

		actual, err = s.GetAllByBuyer(ctx, "buyer", query.EmptyCursor, 3, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 3)
		assertEquivalentRecords(t, records[4], actual[0])

		cursor := query.ToCursor(actual[2].Id)
		actual, err = s.GetAllByBuyer(ctx, "buyer", cursor, 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assertEquivalentRecords(t, records[1], actual[0])
		assertEquivalentRecords(t, records[0], actual[1])

		actual, err = s.GetAllBySeller(ctx, "other_seller", query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 3)
		for _, item := range actual {
			assert.Equal(t, "other_seller", item.Seller)
		}
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *record.Record) {
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Bump, obj2.Bump)
	assert.Equal(t, obj1.VaultAddress, obj2.VaultAddress)
	assert.Equal(t, obj1.VaultBump, obj2.VaultBump)
	assert.Equal(t, obj1.Buyer, obj2.Buyer)
	assert.Equal(t, obj1.Seller, obj2.Seller)
	assert.Equal(t, obj1.Amount, obj2.Amount)
	assert.Equal(t, obj1.ItemLabel, obj2.ItemLabel)
	assert.Equal(t, obj1.IsCompleted, obj2.IsCompleted)
}
