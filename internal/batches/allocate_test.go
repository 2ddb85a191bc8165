package batches

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testBatch(id int64, day int, remaining string, gst bool) Batch {
	b := Batch{
		ID:                id,
		PurchaseDate:      time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC),
		QuantityPurchased: qty(remaining),
		QuantityRemaining: qty(remaining),
		QuantitySold:      decimal.Zero,
		QuantityAdjusted:  decimal.Zero,
		PurchasedWithGST:  gst,
		BaseCostPerUnit:   qty("10"),
		ITCPerUnit:        decimal.Zero,
		ITCTotalAvailable: decimal.Zero,
		ITCClaimed:        decimal.Zero,
		ITCRemaining:      decimal.Zero,
		ITCReversed:       decimal.Zero,
		Status:            StatusActive,
	}
	if gst {
		b.ITCPerUnit = qty("1.8")
		b.ITCTotalAvailable = b.ITCPerUnit.Mul(b.QuantityPurchased).Round(2)
		b.ITCRemaining = b.ITCTotalAvailable
	}
	return b
}

func ids(list []Batch) []int64 {
	out := make([]int64, 0, len(list))
	for _, b := range list {
		out = append(out, b.ID)
	}
	return out
}

func TestEligibleOrdering(t *testing.T) {
	candidates := []Batch{
		testBatch(3, 5, "1", true),
		testBatch(1, 5, "1", false),
		testBatch(2, 1, "1", true),
		testBatch(4, 2, "0", true),
	}
	depleted := candidates[3]
	depleted.Status = StatusDepleted
	candidates[3] = depleted

	require.Equal(t, []int64{2, 1, 3}, ids(eligible(candidates, false, false)))
	require.Equal(t, []int64{2, 3}, ids(eligible(candidates, true, false)))
	require.Equal(t, []int64{1, 2, 3}, ids(eligible(candidates, false, true)))
	require.Equal(t, []int64{2, 3}, ids(eligible(candidates, true, true)), "GST requirement wins over the preference")
}

func TestPlanTakesOldestFirst(t *testing.T) {
	ordered := []Batch{testBatch(1, 1, "5", true), testBatch(2, 2, "5", true)}

	draws, available := plan(ordered, qty("7"))
	require.True(t, available.Equal(qty("10")))
	require.Len(t, draws, 2)
	require.True(t, draws[0].qty.Equal(qty("5")))
	require.True(t, draws[1].qty.Equal(qty("2")))

	draws, available = plan(ordered, qty("11"))
	require.Nil(t, draws)
	require.True(t, available.Equal(qty("10")))
}

func TestApplyAndRestore(t *testing.T) {
	b := testBatch(1, 1, "10", true)
	a := apply(&b, qty("4"), "sale:1#1")
	require.True(t, a.CostConsumed.Equal(qty("40")))
	require.True(t, a.ITCConsumed.Equal(qty("7.2")))
	require.True(t, b.QuantityRemaining.Equal(qty("6")))
	require.NoError(t, b.CheckInvariants())

	last := apply(&b, qty("6"), "sale:2#1")
	require.True(t, last.ITCConsumed.Equal(qty("10.8")), "the final draw takes the ITC remainder")
	require.Equal(t, StatusDepleted, b.Status)
	require.True(t, b.ITCRemaining.IsZero())

	restore(&b, a.Portion(qty("1")))
	require.Equal(t, StatusActive, b.Status)
	require.True(t, b.QuantityRemaining.Equal(qty("1")))
	require.NoError(t, b.CheckInvariants())
}

func TestWriteOffForfeitsITC(t *testing.T) {
	b := testBatch(1, 1, "10", true)
	forfeit := writeOff(&b, qty("3"))
	require.True(t, forfeit.Equal(qty("5.4")))
	require.True(t, b.QuantityAdjusted.Equal(qty("-3")))
	require.True(t, b.ITCTotalAvailable.Equal(qty("12.6")))
	require.True(t, b.ITCReversed.Equal(qty("5.4")))
	require.NoError(t, b.CheckInvariants())

	nonGST := testBatch(2, 1, "10", false)
	require.True(t, writeOff(&nonGST, qty("10")).IsZero())
	require.True(t, nonGST.QuantityRemaining.IsZero())
}

func TestPortionSplitsCost(t *testing.T) {
	a := Allocation{
		Quantity: qty("3"), CostConsumed: qty("10"), ITCConsumed: qty("1"),
		QuantityReturned: decimal.Zero, CostReturned: decimal.Zero, ITCReturned: decimal.Zero,
	}
	part := a.Portion(qty("1"))
	require.True(t, part.CostConsumed.Equal(qty("3.33")))
	require.True(t, part.ITCConsumed.Equal(qty("0.33")))

	a.QuantityReturned = qty("1")
	a.CostReturned = qty("3.33")
	a.ITCReturned = qty("0.33")
	rest := a.Portion(a.Outstanding())
	require.True(t, rest.CostConsumed.Equal(qty("6.67")), "the last portion carries the remainder")
	require.True(t, rest.ITCConsumed.Equal(qty("0.67")))
}
