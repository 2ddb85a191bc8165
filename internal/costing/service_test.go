package costing_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/costing"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWeightedAverage(t *testing.T) {
	avg, err := costing.WeightedAverage(dec("10"), dec("100"), dec("10"), dec("120"))
	require.NoError(t, err)
	require.Equal(t, "110", avg.String())

	avg, err = costing.WeightedAverage(decimal.Zero, dec("80"), dec("3"), dec("33.33333"))
	require.NoError(t, err)
	require.Equal(t, "33.3333", avg.String(), "an empty position takes the incoming cost")

	avg, err = costing.WeightedAverage(dec("3"), dec("10"), dec("0"), dec("99"))
	require.NoError(t, err)
	require.Equal(t, "10", avg.String())

	_, err = costing.WeightedAverage(dec("-1"), dec("10"), dec("1"), dec("1"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestValuatorLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	v := costing.NewValuator(store.Costs(), nil)
	tc := shared.TenantContext{TenantID: 1}

	cost, err := v.OnReceive(ctx, tc, 1, 1, dec("10"), dec("100"))
	require.NoError(t, err)
	require.Equal(t, "100", cost.AverageCost.String())

	cost, err = v.OnReceive(ctx, tc, 1, 1, dec("10"), dec("120"))
	require.NoError(t, err)
	require.Equal(t, "110", cost.AverageCost.String())
	require.Equal(t, "20", cost.OnHand.String())
	require.Equal(t, "2200.00", cost.Value().StringFixed(2))

	other, err := v.ItemCost(ctx, tc, 1, 2)
	require.NoError(t, err)
	require.True(t, other.OnHand.IsZero(), "cost is tracked per site")

	err = store.Costs().WithTx(ctx, func(ctx context.Context, tx costing.TxRepository) error {
		issued, err := v.OnIssueTx(ctx, tx, tc, 1, 1, dec("5"))
		require.NoError(t, err)
		require.Equal(t, "110", issued.AverageCost.String(), "issues keep the average")
		require.Equal(t, "15", issued.OnHand.String())

		_, err = v.OnIssueTx(ctx, tx, tc, 1, 1, dec("16"))
		require.ErrorIs(t, err, shared.ErrValidation)

		back, err := v.OnReturnTx(ctx, tx, tc, 1, 1, dec("5"), dec("450"))
		require.NoError(t, err)
		require.Equal(t, "105", back.AverageCost.String())
		return nil
	})
	require.NoError(t, err)

	list, err := v.List(ctx, tc)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "20", list[0].OnHand.String())
}
