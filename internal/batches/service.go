package batches

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Registry tracks purchased lots and allocates them to consumptions.
type Registry struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry constructs the batch registry.
func NewRegistry(repo RepositoryPort, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (r *Registry) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Receive creates a batch for a purchased lot.
func (r *Registry) Receive(ctx context.Context, tc shared.TenantContext, in ReceiveInput) (Batch, error) {
	var batch Batch
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		batch, err = r.ReceiveTx(ctx, tx, tc, in)
		return err
	})
	return batch, err
}

// ReceiveTx creates a batch inside a caller-owned transaction.
func (r *Registry) ReceiveTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, in ReceiveInput) (Batch, error) {
	if err := tc.Validate(); err != nil {
		return Batch{}, err
	}
	if err := in.Validate(); err != nil {
		return Batch{}, err
	}
	qty := shared.RoundQuantity(in.Quantity)
	unitCost := shared.RoundRate(in.UnitCost)
	itcPerUnit, itcTotal := decimal.Zero, decimal.Zero
	if in.PurchasedWithGST {
		itcPerUnit = shared.RoundRate(shared.Percent(unitCost, in.GSTRate))
		itcTotal = shared.RoundMoney(itcPerUnit.Mul(qty))
	}
	now := r.now()
	batch, err := tx.InsertBatch(ctx, Batch{
		TenantID:          tc.TenantID,
		ItemID:            in.ItemID,
		SiteID:            in.SiteID,
		BatchNumber:       in.BatchNumber,
		PurchaseDate:      in.PurchaseDate,
		ExpiryDate:        in.ExpiryDate,
		VendorRef:         in.VendorRef,
		PurchaseRef:       in.PurchaseRef,
		QuantityPurchased: qty,
		QuantityRemaining: qty,
		QuantitySold:      decimal.Zero,
		QuantityAdjusted:  decimal.Zero,
		PurchasedWithGST:  in.PurchasedWithGST,
		BaseCostPerUnit:   unitCost,
		GSTRate:           in.GSTRate,
		ITCPerUnit:        itcPerUnit,
		ITCTotalAvailable: itcTotal,
		ITCClaimed:        decimal.Zero,
		ITCRemaining:      itcTotal,
		ITCReversed:       decimal.Zero,
		Status:            StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return Batch{}, fmt.Errorf("batches: receive: %w", err)
	}
	return batch, nil
}

// Consume allocates quantity FIFO from eligible batches. Either every draw is applied or none is.
func (r *Registry) Consume(ctx context.Context, tc shared.TenantContext, in ConsumeInput) ([]Allocation, error) {
	var allocations []Allocation
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		allocations, err = r.ConsumeTx(ctx, tx, tc, in)
		return err
	})
	return allocations, err
}

// ConsumeTx allocates inside a caller-owned transaction. Candidate rows stay locked until it ends.
func (r *Registry) ConsumeTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, in ConsumeInput) ([]Allocation, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	qty := shared.RoundQuantity(in.Quantity)
	candidates, err := tx.LockAllocatableBatches(ctx, tc.TenantID, in.ItemID, in.SiteID)
	if err != nil {
		return nil, err
	}
	draws, available := plan(eligible(candidates, in.RequireGSTBacked, in.PreferNonGST), qty)
	if draws == nil {
		return nil, &shared.InsufficientStockError{
			ItemID:           in.ItemID,
			SiteID:           in.SiteID,
			Requested:        qty,
			Available:        available,
			RequireGSTBacked: in.RequireGSTBacked,
		}
	}
	now := r.now()
	allocations := make([]Allocation, 0, len(draws))
	for _, d := range draws {
		batch := d.batch
		allocation := apply(&batch, d.qty, in.ConsumingRef)
		allocation.CreatedAt = now
		batch.UpdatedAt = now
		if err := batch.CheckInvariants(); err != nil {
			return nil, fmt.Errorf("batches: consume: %w", err)
		}
		if err := tx.UpdateBatch(ctx, batch); err != nil {
			return nil, err
		}
		stored, err := tx.InsertAllocation(ctx, allocation)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, stored)
	}
	return allocations, nil
}

// Return reverses prior allocations, restoring batch quantities and ITC.
func (r *Registry) Return(ctx context.Context, tc shared.TenantContext, allocations []Allocation) error {
	return r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return r.ReturnTx(ctx, tx, tc, allocations)
	})
}

// ReturnTx reverses allocations inside a caller-owned transaction. Each allocation's Quantity,
// CostConsumed and ITCConsumed are the amounts being returned; stored allocations (non-zero ID)
// also have their returned totals advanced and may not be returned beyond what was consumed.
// Units cannot go back into an expired or damaged batch; use ReturnWrittenOffTx for those.
func (r *Registry) ReturnTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, allocations []Allocation) error {
	return r.returnTx(ctx, tx, tc, allocations, false)
}

// ReturnWrittenOffTx takes back allocations whose units are not fit to sell again. The units
// are booked as a write-off on their batch and the ITC they claimed is forfeited.
func (r *Registry) ReturnWrittenOffTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, allocations []Allocation) error {
	return r.returnTx(ctx, tx, tc, allocations, true)
}

func (r *Registry) returnTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, allocations []Allocation, writtenOff bool) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	if len(allocations) == 0 {
		return shared.Invalid("allocations", "nothing to return")
	}
	// Lock batches in id order so concurrent returns and consumptions cannot deadlock.
	ordered := append([]Allocation(nil), allocations...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].BatchID < ordered[j].BatchID })
	now := r.now()
	for i, a := range ordered {
		field := fmt.Sprintf("allocations[%d]", i)
		if err := shared.RequirePositive(field+".quantity", a.Quantity); err != nil {
			return err
		}
		if a.CostConsumed.IsNegative() || a.ITCConsumed.IsNegative() {
			return shared.Invalid(field, "cost and itc must not be negative")
		}
		batch, err := tx.GetBatchForUpdate(ctx, tc.TenantID, a.BatchID)
		if err != nil {
			return err
		}
		if !writtenOff && batch.Retired() {
			return shared.Invalid(field, "batch %d is %s and cannot take stock back", batch.ID, batch.Status)
		}
		if a.Quantity.GreaterThan(batch.QuantitySold) || a.ITCConsumed.GreaterThan(batch.ITCClaimed) {
			return shared.Invalid(field, "returns more than batch %d has sold", batch.ID)
		}
		if a.ID != 0 {
			stored, err := tx.GetAllocationForUpdate(ctx, tc.TenantID, a.ID)
			if err != nil {
				return err
			}
			if stored.BatchID != a.BatchID {
				return shared.Invalid(field, "allocation %d belongs to batch %d", stored.ID, stored.BatchID)
			}
			if a.Quantity.GreaterThan(stored.Outstanding()) {
				return shared.Invalid(field, "returns %s but only %s outstanding", a.Quantity, stored.Outstanding())
			}
			stored.QuantityReturned = stored.QuantityReturned.Add(a.Quantity)
			stored.CostReturned = stored.CostReturned.Add(a.CostConsumed)
			stored.ITCReturned = stored.ITCReturned.Add(a.ITCConsumed)
			if err := tx.UpdateAllocationReturn(ctx, stored); err != nil {
				return err
			}
		}
		if writtenOff {
			forfeitReturn(&batch, a)
		} else {
			restore(&batch, a)
		}
		batch.UpdatedAt = now
		if err := batch.CheckInvariants(); err != nil {
			return fmt.Errorf("batches: return: %w", err)
		}
		if err := tx.UpdateBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// MarkExpired writes off the remaining quantity and retires the batch.
func (r *Registry) MarkExpired(ctx context.Context, tc shared.TenantContext, batchID int64) (Batch, error) {
	var batch Batch
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		batch, _, err = r.WriteOffTx(ctx, tx, tc, batchID, nil, StatusExpired)
		return err
	})
	if err == nil {
		r.logger.Info("batch expired", slog.Int64("tenant_id", tc.TenantID), slog.Int64("batch_id", batchID),
			slog.String("itc_reversed", batch.ITCReversed.StringFixed(shared.MoneyPlaces)))
	}
	return batch, err
}

// MarkDamaged writes off qty units. The batch turns damaged once nothing sellable remains.
func (r *Registry) MarkDamaged(ctx context.Context, tc shared.TenantContext, batchID int64, qty decimal.Decimal) (Batch, error) {
	var batch Batch
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		batch, _, err = r.WriteOffTx(ctx, tx, tc, batchID, &qty, StatusDamaged)
		return err
	})
	if err == nil {
		r.logger.Info("batch damaged", slog.Int64("tenant_id", tc.TenantID), slog.Int64("batch_id", batchID),
			slog.String("quantity", qty.String()))
	}
	return batch, err
}

// WriteOffTx writes off qty units, or everything remaining when qty is nil, inside a caller-owned
// transaction. final is the status the batch takes once nothing sellable remains. It returns the
// updated batch and what was written off.
func (r *Registry) WriteOffTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, batchID int64, qty *decimal.Decimal, final Status) (Batch, WriteOff, error) {
	none := WriteOff{Quantity: decimal.Zero, Cost: decimal.Zero, ITCForfeited: decimal.Zero}
	if err := tc.Validate(); err != nil {
		return Batch{}, none, err
	}
	if final != StatusExpired && final != StatusDamaged {
		return Batch{}, none, shared.Invalid("status", "write-off status must be expired or damaged, got %q", final)
	}
	batch, err := tx.GetBatchForUpdate(ctx, tc.TenantID, batchID)
	if err != nil {
		return Batch{}, none, err
	}
	if batch.Retired() {
		return Batch{}, none, shared.Invalid("batch", "batch %d is already %s", batch.ID, batch.Status)
	}
	amount := batch.QuantityRemaining
	if qty != nil {
		amount = shared.RoundQuantity(*qty)
		if err := shared.RequirePositive("quantity", amount); err != nil {
			return Batch{}, none, err
		}
		if amount.GreaterThan(batch.QuantityRemaining) {
			return Batch{}, none, shared.Invalid("quantity", "write-off %s exceeds remaining %s", amount, batch.QuantityRemaining)
		}
	}
	out := WriteOff{Quantity: amount, Cost: decimal.Zero, ITCForfeited: decimal.Zero}
	if amount.IsPositive() {
		out.Cost = shared.RoundMoney(amount.Mul(batch.BaseCostPerUnit))
		out.ITCForfeited = writeOff(&batch, amount)
	}
	if qty == nil || batch.QuantityRemaining.IsZero() {
		batch.Status = final
	}
	batch.UpdatedAt = r.now()
	if err := batch.CheckInvariants(); err != nil {
		return Batch{}, none, fmt.Errorf("batches: write-off: %w", err)
	}
	if err := tx.UpdateBatch(ctx, batch); err != nil {
		return Batch{}, none, err
	}
	return batch, out, nil
}

// Get loads a batch.
func (r *Registry) Get(ctx context.Context, tc shared.TenantContext, id int64) (Batch, error) {
	if err := tc.Validate(); err != nil {
		return Batch{}, err
	}
	var batch Batch
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		batch, err = tx.GetBatch(ctx, tc.TenantID, id)
		return err
	})
	return batch, err
}

// List returns batches matching filter ordered by purchase date and id.
func (r *Registry) List(ctx context.Context, tc shared.TenantContext, filter Filter) ([]Batch, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	var out []Batch
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListBatches(ctx, tc.TenantID, filter)
		return err
	})
	return out, err
}

// Allocations lists the allocations recorded for a consuming reference.
func (r *Registry) Allocations(ctx context.Context, tc shared.TenantContext, consumingRef string) ([]Allocation, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	var out []Allocation
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListAllocations(ctx, tc.TenantID, consumingRef)
		return err
	})
	return out, err
}

// AvailableStock reports allocatable quantity for an item at a site.
func (r *Registry) AvailableStock(ctx context.Context, tc shared.TenantContext, itemID, siteID int64) (Availability, error) {
	list, err := r.List(ctx, tc, Filter{ItemID: itemID, SiteID: siteID, Status: StatusActive})
	if err != nil {
		return Availability{}, err
	}
	out := Availability{Total: decimal.Zero, GSTBacked: decimal.Zero, NonGST: decimal.Zero}
	for _, b := range list {
		if !b.Allocatable() {
			continue
		}
		out.Total = out.Total.Add(b.QuantityRemaining)
		if b.PurchasedWithGST {
			out.GSTBacked = out.GSTBacked.Add(b.QuantityRemaining)
		} else {
			out.NonGST = out.NonGST.Add(b.QuantityRemaining)
		}
	}
	return out, nil
}

// StockSummary values remaining stock split by GST backing. itemID zero covers every item.
func (r *Registry) StockSummary(ctx context.Context, tc shared.TenantContext, itemID int64) (Summary, error) {
	list, err := r.List(ctx, tc, Filter{ItemID: itemID})
	if err != nil {
		return Summary{}, err
	}
	return Summarize(list), nil
}

// Summarize aggregates batches into a Summary.
func Summarize(list []Batch) Summary {
	out := Summary{
		GSTQuantity: decimal.Zero, NonGSTQuantity: decimal.Zero,
		GSTValue: decimal.Zero, NonGSTValue: decimal.Zero, ITCAvailable: decimal.Zero,
	}
	for _, b := range list {
		out.TotalBatches++
		if !b.Allocatable() {
			continue
		}
		out.ActiveBatches++
		if b.PurchasedWithGST {
			out.GSTQuantity = out.GSTQuantity.Add(b.QuantityRemaining)
			out.GSTValue = out.GSTValue.Add(b.Value())
			out.ITCAvailable = out.ITCAvailable.Add(b.ITCRemaining)
		} else {
			out.NonGSTQuantity = out.NonGSTQuantity.Add(b.QuantityRemaining)
			out.NonGSTValue = out.NonGSTValue.Add(b.Value())
		}
	}
	return out
}
