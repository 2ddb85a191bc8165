package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/accounts"
	"github.com/odyssey-erp/stockledger/internal/costing"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestRunRestoresSnapshotOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.Accounts().WithTx(ctx, func(ctx context.Context, tx accounts.TxRepository) error {
		_, err := tx.InsertAccount(ctx, accounts.Account{TenantID: 1, Code: "1000", Type: accounts.TypeAsset, IsActive: true})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.Accounts().WithTx(ctx, func(ctx context.Context, tx accounts.TxRepository) error {
		_, err := tx.GetAccountByCode(ctx, 1, "1000")
		require.ErrorIs(t, err, shared.ErrNotFound)
		created, err := tx.InsertAccount(ctx, accounts.Account{TenantID: 1, Code: "1000", Type: accounts.TypeAsset, IsActive: true})
		require.NoError(t, err)
		require.Equal(t, int64(1), created.ID, "sequences roll back with the data")
		return nil
	})
	require.NoError(t, err)
}

func TestRunHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().Costs().WithTx(ctx, func(context.Context, costing.TxRepository) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestItemCostDefaultsAndTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.Costs().WithTx(ctx, func(ctx context.Context, tx costing.TxRepository) error {
		zero, err := tx.GetItemCostForUpdate(ctx, 1, 5, 1)
		require.NoError(t, err)
		require.True(t, zero.OnHand.IsZero())
		return tx.UpsertItemCost(ctx, costing.ItemCost{TenantID: 1, ItemID: 5, SiteID: 1, AverageCost: decimal.NewFromInt(3), OnHand: decimal.NewFromInt(2)})
	})
	require.NoError(t, err)

	err = s.Costs().WithTx(ctx, func(ctx context.Context, tx costing.TxRepository) error {
		mine, err := tx.ListItemCosts(ctx, 1)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		theirs, err := tx.ListItemCosts(ctx, 2)
		require.NoError(t, err)
		require.Empty(t, theirs)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Record(ctx, shared.AuditLog{TenantID: 1, Action: "x", Entity: "y", EntityID: "1"}))
	require.Len(t, s.AuditTrail(), 1)
}
