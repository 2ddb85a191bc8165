package batches

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// draw is one planned take from a batch.
type draw struct {
	batch Batch
	qty   decimal.Decimal
}

// eligible filters and orders candidate batches: purchase date ascending, then id ascending.
// With preferNonGST the non-GST batches come first, each group in that same order.
func eligible(candidates []Batch, requireGST, preferNonGST bool) []Batch {
	out := make([]Batch, 0, len(candidates))
	for _, b := range candidates {
		if !b.Allocatable() {
			continue
		}
		if requireGST && !b.PurchasedWithGST {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if preferNonGST && !requireGST && out[i].PurchasedWithGST != out[j].PurchasedWithGST {
			return !out[i].PurchasedWithGST
		}
		if !out[i].PurchaseDate.Equal(out[j].PurchaseDate) {
			return out[i].PurchaseDate.Before(out[j].PurchaseDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// plan greedily takes qty from ordered batches. It returns the available total and no draws when
// the pool is short.
func plan(ordered []Batch, qty decimal.Decimal) ([]draw, decimal.Decimal) {
	available := decimal.Zero
	for _, b := range ordered {
		available = available.Add(b.QuantityRemaining)
	}
	if available.LessThan(qty) {
		return nil, available
	}
	draws := make([]draw, 0, len(ordered))
	need := qty
	for _, b := range ordered {
		if !need.IsPositive() {
			break
		}
		take := decimal.Min(need, b.QuantityRemaining)
		draws = append(draws, draw{batch: b, qty: take})
		need = need.Sub(take)
	}
	return draws, available
}

// apply mutates the batch for a draw and returns the allocation it produced.
func apply(b *Batch, qty decimal.Decimal, ref string) Allocation {
	itc := decimal.Zero
	if b.PurchasedWithGST {
		if qty.Equal(b.QuantityRemaining) {
			itc = b.ITCRemaining
		} else {
			itc = decimal.Min(shared.RoundMoney(b.ITCPerUnit.Mul(qty)), b.ITCRemaining)
		}
	}
	b.QuantityRemaining = b.QuantityRemaining.Sub(qty)
	b.QuantitySold = b.QuantitySold.Add(qty)
	b.ITCClaimed = b.ITCClaimed.Add(itc)
	b.ITCRemaining = b.ITCRemaining.Sub(itc)
	if b.QuantityRemaining.IsZero() {
		b.Status = StatusDepleted
	}
	return Allocation{
		TenantID:         b.TenantID,
		BatchID:          b.ID,
		ConsumingRef:     ref,
		Quantity:         qty,
		UnitCost:         b.BaseCostPerUnit,
		CostConsumed:     shared.RoundMoney(qty.Mul(b.BaseCostPerUnit)),
		ITCConsumed:      itc,
		QuantityReturned: decimal.Zero,
		CostReturned:     decimal.Zero,
		ITCReturned:      decimal.Zero,
	}
}

// restore undoes an allocation (or a portion of one) on its batch.
func restore(b *Batch, a Allocation) {
	b.QuantityRemaining = b.QuantityRemaining.Add(a.Quantity)
	b.QuantitySold = b.QuantitySold.Sub(a.Quantity)
	b.ITCClaimed = b.ITCClaimed.Sub(a.ITCConsumed)
	b.ITCRemaining = b.ITCRemaining.Add(a.ITCConsumed)
	if b.Status == StatusDepleted && b.QuantityRemaining.IsPositive() {
		b.Status = StatusActive
	}
}

// writeOff removes qty from the batch, forfeiting the matching ITC.
func writeOff(b *Batch, qty decimal.Decimal) decimal.Decimal {
	forfeit := decimal.Zero
	if b.PurchasedWithGST {
		if qty.Equal(b.QuantityRemaining) {
			forfeit = b.ITCRemaining
		} else {
			forfeit = decimal.Min(shared.RoundMoney(b.ITCPerUnit.Mul(qty)), b.ITCRemaining)
		}
	}
	b.QuantityRemaining = b.QuantityRemaining.Sub(qty)
	b.QuantityAdjusted = b.QuantityAdjusted.Sub(qty)
	b.ITCRemaining = b.ITCRemaining.Sub(forfeit)
	b.ITCTotalAvailable = b.ITCTotalAvailable.Sub(forfeit)
	b.ITCReversed = b.ITCReversed.Add(forfeit)
	return forfeit
}

// forfeitReturn books returned units straight to write-off: they leave sold without reaching
// remaining, and the ITC they had claimed is forfeited.
func forfeitReturn(b *Batch, a Allocation) {
	b.QuantitySold = b.QuantitySold.Sub(a.Quantity)
	b.QuantityAdjusted = b.QuantityAdjusted.Sub(a.Quantity)
	b.ITCClaimed = b.ITCClaimed.Sub(a.ITCConsumed)
	b.ITCTotalAvailable = b.ITCTotalAvailable.Sub(a.ITCConsumed)
	b.ITCReversed = b.ITCReversed.Add(a.ITCConsumed)
}
