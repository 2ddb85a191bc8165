package batches_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/batches"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
)

var tc = shared.TenantContext{TenantID: 1}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func jan(d int) time.Time { return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC) }

func receive(t *testing.T, r *batches.Registry, d int, quantity, cost string, gst bool) batches.Batch {
	t.Helper()
	in := batches.ReceiveInput{ItemID: 1, SiteID: 1, PurchaseDate: jan(d), Quantity: dec(quantity), UnitCost: dec(cost), PurchasedWithGST: gst}
	if gst {
		in.GSTRate = dec("18")
	}
	b, err := r.Receive(context.Background(), tc, in)
	require.NoError(t, err)
	return b
}

func TestReceiveComputesITC(t *testing.T) {
	r := batches.NewRegistry(memory.New().Batches(), nil)
	b := receive(t, r, 1, "100", "50", true)
	require.Equal(t, batches.StatusActive, b.Status)
	require.Equal(t, "9", b.ITCPerUnit.String())
	require.Equal(t, "900.00", b.ITCTotalAvailable.StringFixed(2))
	require.True(t, b.ITCRemaining.Equal(b.ITCTotalAvailable))
	require.NoError(t, b.CheckInvariants())

	plain := receive(t, r, 1, "10", "50", false)
	require.True(t, plain.ITCTotalAvailable.IsZero())

	cases := map[string]batches.ReceiveInput{
		"zero quantity":  {ItemID: 1, SiteID: 1, PurchaseDate: jan(1), Quantity: decimal.Zero, UnitCost: dec("1")},
		"negative cost":  {ItemID: 1, SiteID: 1, PurchaseDate: jan(1), Quantity: dec("1"), UnitCost: dec("-1")},
		"rate too high":  {ItemID: 1, SiteID: 1, PurchaseDate: jan(1), Quantity: dec("1"), UnitCost: dec("1"), GSTRate: dec("101")},
		"gst no rate":    {ItemID: 1, SiteID: 1, PurchaseDate: jan(1), Quantity: dec("1"), UnitCost: dec("1"), PurchasedWithGST: true},
		"missing item":   {SiteID: 1, PurchaseDate: jan(1), Quantity: dec("1"), UnitCost: dec("1")},
		"expiry earlier": {ItemID: 1, SiteID: 1, PurchaseDate: jan(5), Quantity: dec("1"), UnitCost: dec("1"), ExpiryDate: ptr(jan(4))},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Receive(context.Background(), tc, in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestConsumeFIFOAcrossBatches(t *testing.T) {
	ctx := context.Background()
	r := batches.NewRegistry(memory.New().Batches(), nil)
	b1 := receive(t, r, 1, "5", "10", true)
	b2 := receive(t, r, 2, "5", "12", true)

	allocations, err := r.Consume(ctx, tc, batches.ConsumeInput{ItemID: 1, SiteID: 1, ConsumingRef: "sale:1#1", Quantity: dec("7"), RequireGSTBacked: true})
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	require.Equal(t, b1.ID, allocations[0].BatchID)
	require.Equal(t, "5", allocations[0].Quantity.String())
	require.Equal(t, b2.ID, allocations[1].BatchID)
	require.Equal(t, "2", allocations[1].Quantity.String())
	require.Equal(t, "74.00", batches.TotalCost(allocations).StringFixed(2))

	got1, err := r.Get(ctx, tc, b1.ID)
	require.NoError(t, err)
	require.Equal(t, batches.StatusDepleted, got1.Status)
	require.True(t, got1.ITCRemaining.IsZero())

	listed, err := r.Allocations(ctx, tc, "sale:1#1")
	require.NoError(t, err)
	require.Equal(t, allocations, listed)
}

func TestConsumeGSTEligibility(t *testing.T) {
	ctx := context.Background()
	r := batches.NewRegistry(memory.New().Batches(), nil)
	receive(t, r, 1, "5", "10", false)
	gst := receive(t, r, 2, "3", "10", true)

	_, err := r.Consume(ctx, tc, batches.ConsumeInput{ItemID: 1, SiteID: 1, ConsumingRef: "sale:1#1", Quantity: dec("4"), RequireGSTBacked: true})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var short *shared.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, "3", short.Available.String())
	require.Equal(t, "1", short.Shortfall().String())

	allocations, err := r.Consume(ctx, tc, batches.ConsumeInput{ItemID: 1, SiteID: 1, ConsumingRef: "sale:2#1", Quantity: dec("3"), RequireGSTBacked: true})
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	require.Equal(t, gst.ID, allocations[0].BatchID)

	availability, err := r.AvailableStock(ctx, tc, 1, 1)
	require.NoError(t, err)
	require.Equal(t, "5", availability.Total.String())
	require.True(t, availability.GSTBacked.IsZero())
}

func TestConsumeIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	r := batches.NewRegistry(memory.New().Batches(), nil)
	b := receive(t, r, 1, "5", "10", true)

	_, err := r.Consume(ctx, tc, batches.ConsumeInput{ItemID: 1, SiteID: 1, ConsumingRef: "sale:1#1", Quantity: dec("6")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	got, err := r.Get(ctx, tc, b.ID)
	require.NoError(t, err)
	require.Equal(t, "5", got.QuantityRemaining.String())
	listed, err := r.Allocations(ctx, tc, "sale:1#1")
	require.NoError(t, err)
	require.Empty(t, listed)

	_, err = r.Consume(ctx, tc, batches.ConsumeInput{ItemID: 1, SiteID: 1, Quantity: dec("1")})
	require.ErrorIs(t, err, shared.ErrValidation, "consuming reference is required")
}

func TestReturnRestoresAndReactivates(t *testing.T) {
	ctx := context.Background()
	r := batches.NewRegistry(memory.New().Batches(), nil)
	b := receive(t, r, 1, "5", "10", true)
	allocations, err := r.Consume(ctx, tc, batches.ConsumeInput{ItemID: 1, SiteID: 1, ConsumingRef: "sale:1#1", Quantity: dec("5")})
	require.NoError(t, err)

	require.NoError(t, r.Return(ctx, tc, []batches.Allocation{allocations[0].Portion(dec("2"))}))
	got, err := r.Get(ctx, tc, b.ID)
	require.NoError(t, err)
	require.Equal(t, batches.StatusActive, got.Status)
	require.Equal(t, "2", got.QuantityRemaining.String())
	require.Equal(t, "3.60", got.ITCRemaining.StringFixed(2))
	require.NoError(t, got.CheckInvariants())

	err = r.Return(ctx, tc, []batches.Allocation{allocations[0].Portion(dec("4"))})
	require.ErrorIs(t, err, shared.ErrValidation, "only three units are still outstanding")

	require.NoError(t, r.Return(ctx, tc, []batches.Allocation{allocations[0].Portion(dec("3"))}))
	got, err = r.Get(ctx, tc, b.ID)
	require.NoError(t, err)
	require.Equal(t, "5", got.QuantityRemaining.String())
	require.True(t, got.ITCClaimed.IsZero())
	require.True(t, got.ITCRemaining.Equal(got.ITCTotalAvailable))

	require.ErrorIs(t, r.Return(ctx, tc, nil), shared.ErrValidation)
}

func TestWriteOffs(t *testing.T) {
	ctx := context.Background()
	r := batches.NewRegistry(memory.New().Batches(), nil)
	b := receive(t, r, 1, "10", "10", true)

	damaged, err := r.MarkDamaged(ctx, tc, b.ID, dec("4"))
	require.NoError(t, err)
	require.Equal(t, batches.StatusActive, damaged.Status, "sellable units remain")
	require.Equal(t, "-4", damaged.QuantityAdjusted.String())
	require.Equal(t, "7.20", damaged.ITCReversed.StringFixed(2))
	require.Equal(t, "10.80", damaged.ITCTotalAvailable.StringFixed(2))

	_, err = r.MarkDamaged(ctx, tc, b.ID, dec("7"))
	require.ErrorIs(t, err, shared.ErrValidation)

	expired, err := r.MarkExpired(ctx, tc, b.ID)
	require.NoError(t, err)
	require.Equal(t, batches.StatusExpired, expired.Status)
	require.True(t, expired.QuantityRemaining.IsZero())
	require.True(t, expired.ITCRemaining.IsZero())
	require.NoError(t, expired.CheckInvariants())

	_, err = r.MarkExpired(ctx, tc, b.ID)
	require.ErrorIs(t, err, shared.ErrValidation, "retired batches stay retired")

	_, err = r.Consume(ctx, tc, batches.ConsumeInput{ItemID: 1, SiteID: 1, ConsumingRef: "sale:9#1", Quantity: dec("1")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestStockSummary(t *testing.T) {
	ctx := context.Background()
	r := batches.NewRegistry(memory.New().Batches(), nil)
	receive(t, r, 1, "10", "50", true)
	receive(t, r, 2, "4", "25", false)
	_, err := r.Receive(ctx, tc, batches.ReceiveInput{ItemID: 2, SiteID: 1, PurchaseDate: jan(3), Quantity: dec("1"), UnitCost: dec("5")})
	require.NoError(t, err)

	summary, err := r.StockSummary(ctx, tc, 1)
	require.NoError(t, err)
	require.Equal(t, "10", summary.GSTQuantity.String())
	require.Equal(t, "500.00", summary.GSTValue.StringFixed(2))
	require.Equal(t, "90.00", summary.ITCAvailable.StringFixed(2))
	require.Equal(t, "4", summary.NonGSTQuantity.String())
	require.Equal(t, "100.00", summary.NonGSTValue.StringFixed(2))
	require.Equal(t, 2, summary.ActiveBatches)

	all, err := r.StockSummary(ctx, tc, 0)
	require.NoError(t, err)
	require.Equal(t, 3, all.TotalBatches)

	list, err := r.List(ctx, tc, batches.Filter{ItemID: 1, Status: batches.StatusActive})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.True(t, list[0].PurchaseDate.Before(list[1].PurchaseDate))
}

func TestQuantitiesBelowPrecisionAreRejected(t *testing.T) {
	ctx := context.Background()
	r := batches.NewRegistry(memory.New().Batches(), nil)
	receive(t, r, 1, "5", "10", true)

	_, err := r.Receive(ctx, tc, batches.ReceiveInput{ItemID: 1, SiteID: 1, PurchaseDate: jan(2), Quantity: dec("0.0004"), UnitCost: dec("10")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = r.Consume(ctx, tc, batches.ConsumeInput{ItemID: 1, SiteID: 1, ConsumingRef: "sale:1#1", Quantity: dec("0.0004")})
	require.ErrorIs(t, err, shared.ErrValidation)

	list, err := r.List(ctx, tc, batches.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "5", list[0].QuantityRemaining.String())

	allocations, err := r.Consume(ctx, tc, batches.ConsumeInput{ItemID: 1, SiteID: 1, ConsumingRef: "sale:2#1", Quantity: dec("0.0006")})
	require.NoError(t, err)
	require.Equal(t, "0.001", batches.TotalQuantity(allocations).String())
}

func TestReturnIntoRetiredBatch(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	r := batches.NewRegistry(store.Batches(), nil)
	b := receive(t, r, 1, "10", "10", true)
	allocations, err := r.Consume(ctx, tc, batches.ConsumeInput{ItemID: 1, SiteID: 1, ConsumingRef: "sale:1#1", Quantity: dec("4")})
	require.NoError(t, err)
	_, err = r.MarkExpired(ctx, tc, b.ID)
	require.NoError(t, err)

	portion := allocations[0].Portion(dec("2"))
	err = r.Return(ctx, tc, []batches.Allocation{portion})
	require.ErrorIs(t, err, shared.ErrValidation, "expired batches take nothing back")

	err = store.Batches().WithTx(ctx, func(ctx context.Context, tx batches.TxRepository) error {
		return r.ReturnWrittenOffTx(ctx, tx, tc, []batches.Allocation{portion})
	})
	require.NoError(t, err)

	got, err := r.Get(ctx, tc, b.ID)
	require.NoError(t, err)
	require.Equal(t, batches.StatusExpired, got.Status)
	require.True(t, got.QuantityRemaining.IsZero())
	require.Equal(t, "2", got.QuantitySold.String())
	require.Equal(t, "-8", got.QuantityAdjusted.String())
	require.Equal(t, "3.60", got.ITCClaimed.StringFixed(2))
	require.Equal(t, "14.40", got.ITCReversed.StringFixed(2))
	require.NoError(t, got.CheckInvariants())

	listed, err := r.Allocations(ctx, tc, "sale:1#1")
	require.NoError(t, err)
	require.Equal(t, "2", listed[0].Outstanding().String())
}
