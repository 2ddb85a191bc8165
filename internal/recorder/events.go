package recorder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/batches"
	"github.com/odyssey-erp/stockledger/internal/costing"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// PurchaseLine is one received item of a purchase bill.
type PurchaseLine struct {
	ItemID      int64 `validate:"required,gt=0"`
	SiteID      int64 `validate:"required,gt=0"`
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	GSTRate     decimal.Decimal
	BatchNumber string `validate:"max=64"`
	ExpiryDate  *time.Time
}

// PurchaseInput is an accepted purchase bill. Lines with a zero GST rate on a GST bill become
// non-GST batches.
type PurchaseInput struct {
	Source           ledger.SourceRef
	Date             time.Time `validate:"required"`
	VendorRef        string    `validate:"max=128"`
	PurchasedWithGST bool
	Settlement       Settlement     `validate:"required"`
	Narration        string         `validate:"max=512"`
	Lines            []PurchaseLine `validate:"min=1,dive"`
}

// RecordPurchase receives one batch per line, updates average cost and posts
// Dr Inventory / Dr Input-Tax-Credit / Cr Payable.
func (r *Recorder) RecordPurchase(ctx context.Context, tc shared.TenantContext, in PurchaseInput) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	var res Result
	err := r.run(ctx, tc, EventPurchase, nil, func(ctx context.Context, tx TxRepository) error {
		res = Result{}
		tpl := PurchaseTemplate{Taxable: decimal.Zero, Tax: decimal.Zero, Settlement: in.Settlement}
		for i, line := range in.Lines {
			gst := in.PurchasedWithGST && line.GSTRate.IsPositive()
			batch, err := r.batches.ReceiveTx(ctx, tx.Batches(), tc, batches.ReceiveInput{
				ItemID:           line.ItemID,
				SiteID:           line.SiteID,
				PurchaseDate:     in.Date,
				Quantity:         line.Quantity,
				UnitCost:         line.UnitCost,
				PurchasedWithGST: gst,
				GSTRate:          line.GSTRate,
				VendorRef:        in.VendorRef,
				PurchaseRef:      in.Source.String(),
				BatchNumber:      line.BatchNumber,
				ExpiryDate:       line.ExpiryDate,
			})
			if err != nil {
				return fmt.Errorf("lines[%d]: %w", i, err)
			}
			cost, err := r.costs.OnReceiveTx(ctx, tx.Costs(), tc, batch.ItemID, batch.SiteID, batch.QuantityPurchased, batch.BaseCostPerUnit)
			if err != nil {
				return fmt.Errorf("lines[%d]: %w", i, err)
			}
			tpl.Taxable = tpl.Taxable.Add(shared.RoundMoney(batch.QuantityPurchased.Mul(batch.BaseCostPerUnit)))
			tpl.Tax = tpl.Tax.Add(batch.ITCTotalAvailable)
			res.Batches = append(res.Batches, batch)
			res.Costs = append(res.Costs, cost)
		}
		voucher, err := r.post(ctx, tx, tc, in.Date, in.Source, narrationOr(in.Narration, "Purchase %s", in.Source), tpl)
		res.Voucher = voucher
		return err
	})
	if err != nil {
		return Result{}, err
	}
	r.record(ctx, tc, EventPurchase, in.Source.String(), map[string]any{
		"voucher_id": res.Voucher.ID,
		"batches":    len(res.Batches),
	})
	return res, nil
}

// SaleLine is one invoiced item. NetAmount defaults to Quantity * UnitPrice.
type SaleLine struct {
	ItemID    int64 `validate:"required,gt=0"`
	SiteID    int64 `validate:"required,gt=0"`
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	NetAmount decimal.Decimal
	TaxAmount decimal.Decimal
}

func (l SaleLine) net() decimal.Decimal {
	if !l.NetAmount.IsZero() {
		return shared.RoundMoney(l.NetAmount)
	}
	return shared.RoundMoney(l.Quantity.Mul(l.UnitPrice))
}

// SaleInput is a finalized invoice. RoundOff is the signed invoice rounding.
type SaleInput struct {
	Source     ledger.SourceRef
	Date       time.Time `validate:"required"`
	Taxable    bool
	Settlement Settlement `validate:"required"`
	RoundOff   decimal.Decimal
	Narration  string     `validate:"max=512"`
	Lines      []SaleLine `validate:"min=1,dive"`
}

// RecordSale consumes stock per line (GST-backed only when taxable) and posts revenue and COGS.
func (r *Recorder) RecordSale(ctx context.Context, tc shared.TenantContext, in SaleInput) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	pairs := make([][2]int64, 0, len(in.Lines))
	for i, line := range in.Lines {
		if err := shared.RequirePositive(fmt.Sprintf("lines[%d].quantity", i), shared.RoundQuantity(line.Quantity)); err != nil {
			return Result{}, err
		}
		if err := shared.RequireNonNegative(fmt.Sprintf("lines[%d].tax_amount", i), line.TaxAmount); err != nil {
			return Result{}, err
		}
		if !in.Taxable && line.TaxAmount.IsPositive() {
			return Result{}, shared.Invalid(fmt.Sprintf("lines[%d].tax_amount", i), "non-taxable sale carries tax")
		}
		pairs = append(pairs, [2]int64{line.ItemID, line.SiteID})
	}
	var res Result
	err := r.run(ctx, tc, EventSale, stockKeys(tc.TenantID, pairs), func(ctx context.Context, tx TxRepository) error {
		res = Result{}
		tpl := SaleTemplate{Net: decimal.Zero, Tax: decimal.Zero, Cost: decimal.Zero, RoundOff: shared.RoundMoney(in.RoundOff), Settlement: in.Settlement}
		doc := SaleDocument{TenantID: tc.TenantID, Source: in.Source, Settlement: in.Settlement, Taxable: in.Taxable, CreatedAt: r.now()}
		for i, line := range in.Lines {
			lineNo := i + 1
			ref := consumingRef(in.Source, lineNo)
			allocations, err := r.batches.ConsumeTx(ctx, tx.Batches(), tc, batches.ConsumeInput{
				ItemID:           line.ItemID,
				SiteID:           line.SiteID,
				ConsumingRef:     ref,
				Quantity:         line.Quantity,
				RequireGSTBacked: in.Taxable,
				PreferNonGST:     !in.Taxable && r.cfg.PreferNonGSTForExempt,
			})
			if err != nil {
				return fmt.Errorf("lines[%d]: %w", i, err)
			}
			qty := batches.TotalQuantity(allocations)
			cost, err := r.costs.OnIssueTx(ctx, tx.Costs(), tc, line.ItemID, line.SiteID, qty)
			if err != nil {
				return fmt.Errorf("lines[%d]: %w", i, err)
			}
			net, tax := line.net(), shared.RoundMoney(line.TaxAmount)
			tpl.Net = tpl.Net.Add(net)
			tpl.Tax = tpl.Tax.Add(tax)
			tpl.Cost = tpl.Cost.Add(batches.TotalCost(allocations))
			doc.Lines = append(doc.Lines, SaleDocumentLine{
				LineNo:           lineNo,
				ItemID:           line.ItemID,
				SiteID:           line.SiteID,
				Quantity:         qty,
				NetAmount:        net,
				TaxAmount:        tax,
				QuantityReturned: decimal.Zero,
				NetReturned:      decimal.Zero,
				TaxReturned:      decimal.Zero,
				ConsumingRef:     ref,
			})
			res.Allocations = append(res.Allocations, allocations...)
			res.Costs = append(res.Costs, cost)
		}
		voucher, err := r.post(ctx, tx, tc, in.Date, in.Source, narrationOr(in.Narration, "Sale %s", in.Source), tpl)
		if err != nil {
			return err
		}
		doc.VoucherID = voucher.ID
		saved, err := tx.Documents().InsertSale(ctx, doc)
		if err != nil {
			return err
		}
		res.Voucher = voucher
		res.Sale = &saved
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	r.record(ctx, tc, EventSale, in.Source.String(), map[string]any{
		"voucher_id":  res.Voucher.ID,
		"taxable":     in.Taxable,
		"allocations": len(res.Allocations),
	})
	return res, nil
}

// PaymentInput is a vendor payment or customer receipt.
type PaymentInput struct {
	Source     ledger.SourceRef
	Date       time.Time `validate:"required"`
	Amount     decimal.Decimal
	Settlement Settlement `validate:"required,oneof=cash bank"`
	Narration  string     `validate:"max=512"`
}

// RecordVendorPayment posts Dr Payable / Cr Cash or Bank.
func (r *Recorder) RecordVendorPayment(ctx context.Context, tc shared.TenantContext, in PaymentInput) (Result, error) {
	return r.recordPayment(ctx, tc, in, VendorPaymentTemplate{Amount: in.Amount, Settlement: in.Settlement}, "Vendor payment %s")
}

// RecordCustomerReceipt posts Dr Cash or Bank / Cr Receivable.
func (r *Recorder) RecordCustomerReceipt(ctx context.Context, tc shared.TenantContext, in PaymentInput) (Result, error) {
	return r.recordPayment(ctx, tc, in, CustomerReceiptTemplate{Amount: in.Amount, Settlement: in.Settlement}, "Customer receipt %s")
}

func (r *Recorder) recordPayment(ctx context.Context, tc shared.TenantContext, in PaymentInput, tpl PostingTemplate, narration string) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	var res Result
	err := r.run(ctx, tc, tpl.Event(), nil, func(ctx context.Context, tx TxRepository) error {
		voucher, err := r.post(ctx, tx, tc, in.Date, in.Source, narrationOr(in.Narration, narration, in.Source), tpl)
		res = Result{Voucher: voucher}
		return err
	})
	if err != nil {
		return Result{}, err
	}
	r.record(ctx, tc, tpl.Event(), in.Source.String(), map[string]any{
		"voucher_id": res.Voucher.ID,
		"amount":     shared.RoundMoney(in.Amount).StringFixed(shared.MoneyPlaces),
	})
	return res, nil
}

// ReturnCondition is the state returned goods arrive in.
type ReturnCondition string

const (
	ConditionResellable ReturnCondition = "resellable"
	ConditionDamaged    ReturnCondition = "damaged"
	ConditionDefective  ReturnCondition = "defective"
)

// Restock reports whether goods in this condition go back on sale. Empty means resellable.
func (c ReturnCondition) Restock() bool {
	return c == "" || c == ConditionResellable
}

// ReturnLine names a sale line and the quantity coming back.
type ReturnLine struct {
	LineNo    int `validate:"required,gt=0"`
	Quantity  decimal.Decimal
	Condition ReturnCondition `validate:"omitempty,oneof=resellable damaged defective"`
}

// SalesReturnInput is an approved return against a recorded sale. An empty Settlement refunds
// the way the sale was settled.
type SalesReturnInput struct {
	Source     ledger.SourceRef
	SaleSource ledger.SourceRef
	Date       time.Time `validate:"required"`
	Settlement Settlement
	Narration  string       `validate:"max=512"`
	Lines      []ReturnLine `validate:"min=1,dive"`
}

// RecordSalesReturn restores batch stock from the sale's most recent allocations first and
// reverses revenue, tax and COGS for the returned share. Units that are damaged, defective or
// belong to a batch retired since the sale are written off instead of restocked. Commission
// notes on the sale are reversed in proportion.
func (r *Recorder) RecordSalesReturn(ctx context.Context, tc shared.TenantContext, in SalesReturnInput) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	if in.Settlement != "" && !in.Settlement.Valid() {
		return Result{}, shared.Invalid("settlement", "unknown settlement %q", in.Settlement)
	}
	for i, line := range in.Lines {
		if err := shared.RequirePositive(fmt.Sprintf("lines[%d].quantity", i), shared.RoundQuantity(line.Quantity)); err != nil {
			return Result{}, err
		}
	}
	keys, err := r.returnLockKeys(ctx, tc, in)
	if err != nil {
		return Result{}, err
	}
	var res Result
	err = r.run(ctx, tc, EventSalesReturn, keys, func(ctx context.Context, tx TxRepository) error {
		res = Result{}
		sale, err := tx.Documents().GetSaleBySourceForUpdate(ctx, tc.TenantID, in.SaleSource)
		if err != nil {
			return err
		}
		settlement := in.Settlement
		if settlement == "" {
			settlement = sale.Settlement
		}
		tpl := SalesReturnTemplate{Net: decimal.Zero, Tax: decimal.Zero, Cost: decimal.Zero, LossCost: decimal.Zero, LossITC: decimal.Zero, Settlement: settlement}
		for i, rl := range in.Lines {
			line, ok := findLine(sale, rl.LineNo)
			if !ok {
				return &shared.NotFoundError{Kind: "sale line", Key: fmt.Sprintf("%s#%d", in.SaleSource, rl.LineNo)}
			}
			qty := shared.RoundQuantity(rl.Quantity)
			if qty.GreaterThan(line.Outstanding()) {
				return shared.Invalid(fmt.Sprintf("lines[%d].quantity", i), "returns %s but only %s outstanding", qty, line.Outstanding())
			}
			portions, err := r.returnPortions(ctx, tx, tc, line.ConsumingRef, qty)
			if err != nil {
				return fmt.Errorf("lines[%d]: %w", i, err)
			}
			restock, lost, err := splitReturn(ctx, tx, tc, portions, rl.Condition.Restock())
			if err != nil {
				return fmt.Errorf("lines[%d]: %w", i, err)
			}
			if len(restock) > 0 {
				if err := r.batches.ReturnTx(ctx, tx.Batches(), tc, restock); err != nil {
					return fmt.Errorf("lines[%d]: %w", i, err)
				}
				costBack := batches.TotalCost(restock)
				cost, err := r.costs.OnReturnTx(ctx, tx.Costs(), tc, line.ItemID, line.SiteID, batches.TotalQuantity(restock), costBack)
				if err != nil {
					return fmt.Errorf("lines[%d]: %w", i, err)
				}
				tpl.Cost = tpl.Cost.Add(costBack)
				res.Costs = append(res.Costs, cost)
			}
			if len(lost) > 0 {
				if err := r.batches.ReturnWrittenOffTx(ctx, tx.Batches(), tc, lost); err != nil {
					return fmt.Errorf("lines[%d]: %w", i, err)
				}
				tpl.LossCost = tpl.LossCost.Add(batches.TotalCost(lost))
				tpl.LossITC = tpl.LossITC.Add(batches.TotalITC(lost))
			}
			net, tax := line.share(qty)
			line.QuantityReturned = line.QuantityReturned.Add(qty)
			line.NetReturned = line.NetReturned.Add(net)
			line.TaxReturned = line.TaxReturned.Add(tax)
			if err := tx.Documents().UpdateSaleLineReturn(ctx, line); err != nil {
				return err
			}
			setLine(&sale, line)
			tpl.Net = tpl.Net.Add(net)
			tpl.Tax = tpl.Tax.Add(tax)
			res.Allocations = append(res.Allocations, portions...)
		}
		voucher, err := r.post(ctx, tx, tc, in.Date, in.Source, narrationOr(in.Narration, "Return %s against %s", in.Source, in.SaleSource), tpl)
		if err != nil {
			return err
		}
		res.Voucher = voucher
		reversals, err := r.reverseSaleCommissions(ctx, tx, tc, sale, tpl.Net.Add(tpl.Tax), in.Source)
		if err != nil {
			return err
		}
		res.Reversals = reversals
		res.Sale = &sale
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	r.record(ctx, tc, EventSalesReturn, in.Source.String(), map[string]any{
		"voucher_id": res.Voucher.ID,
		"sale":       in.SaleSource.String(),
		"reversals":  len(res.Reversals),
	})
	return res, nil
}

// returnLockKeys reads the sale outside the event transaction to learn which stock to lock.
func (r *Recorder) returnLockKeys(ctx context.Context, tc shared.TenantContext, in SalesReturnInput) ([]string, error) {
	if r.locker == nil {
		return nil, nil
	}
	var pairs [][2]int64
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.Documents().GetSaleBySourceForUpdate(ctx, tc.TenantID, in.SaleSource)
		if err != nil {
			return err
		}
		for _, line := range sale.Lines {
			pairs = append(pairs, [2]int64{line.ItemID, line.SiteID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stockKeys(tc.TenantID, pairs), nil
}

// returnPortions picks qty units from the line's allocations, newest first.
func (r *Recorder) returnPortions(ctx context.Context, tx TxRepository, tc shared.TenantContext, ref string, qty decimal.Decimal) ([]batches.Allocation, error) {
	allocations, err := tx.Batches().ListAllocations(ctx, tc.TenantID, ref)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(allocations, func(i, j int) bool { return allocations[i].ID > allocations[j].ID })
	need := qty
	var portions []batches.Allocation
	for _, a := range allocations {
		if !need.IsPositive() {
			break
		}
		outstanding := a.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		take := decimal.Min(need, outstanding)
		portions = append(portions, a.Portion(take))
		need = need.Sub(take)
	}
	if need.IsPositive() {
		return nil, shared.Invalid("quantity", "allocations for %s cover %s less than requested", ref, need)
	}
	return portions, nil
}

// splitReturn separates portions that go back on sale from those written off. Nothing is
// restocked into an expired or damaged batch.
func splitReturn(ctx context.Context, tx TxRepository, tc shared.TenantContext, portions []batches.Allocation, restockable bool) ([]batches.Allocation, []batches.Allocation, error) {
	if !restockable {
		return nil, portions, nil
	}
	var restock, lost []batches.Allocation
	for _, p := range portions {
		batch, err := tx.Batches().GetBatch(ctx, tc.TenantID, p.BatchID)
		if err != nil {
			return nil, nil, err
		}
		if batch.Retired() {
			lost = append(lost, p)
			continue
		}
		restock = append(restock, p)
	}
	return restock, lost, nil
}

// share is the net and tax belonging to qty returned units; the last units take the remainder.
func (l SaleDocumentLine) share(qty decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if qty.Equal(l.Outstanding()) {
		return l.NetAmount.Sub(l.NetReturned), l.TaxAmount.Sub(l.TaxReturned)
	}
	net := shared.RoundMoney(l.NetAmount.Mul(qty).Div(l.Quantity))
	tax := shared.RoundMoney(l.TaxAmount.Mul(qty).Div(l.Quantity))
	return net, tax
}

func findLine(sale SaleDocument, lineNo int) (SaleDocumentLine, bool) {
	for _, line := range sale.Lines {
		if line.LineNo == lineNo {
			return line, true
		}
	}
	return SaleDocumentLine{}, false
}

func setLine(sale *SaleDocument, line SaleDocumentLine) {
	for i := range sale.Lines {
		if sale.Lines[i].LineNo == line.LineNo {
			sale.Lines[i] = line
		}
	}
}

// StockReceipt is a direct batch receipt outside a purchase bill.
type StockReceipt = batches.ReceiveInput

// ReceiveStock registers a batch and folds it into the item's average cost. No voucher is posted.
func (r *Recorder) ReceiveStock(ctx context.Context, tc shared.TenantContext, in StockReceipt) (batches.Batch, error) {
	var batch batches.Batch
	err := r.run(ctx, tc, EventStockReceipt, nil, func(ctx context.Context, tx TxRepository) error {
		var err error
		batch, err = r.batches.ReceiveTx(ctx, tx.Batches(), tc, in)
		if err != nil {
			return err
		}
		_, err = r.costs.OnReceiveTx(ctx, tx.Costs(), tc, batch.ItemID, batch.SiteID, batch.QuantityPurchased, batch.BaseCostPerUnit)
		return err
	})
	return batch, err
}

// ConsumeStock allocates stock FIFO and lowers on-hand quantity. No voucher is posted.
func (r *Recorder) ConsumeStock(ctx context.Context, tc shared.TenantContext, in batches.ConsumeInput) ([]batches.Allocation, error) {
	var allocations []batches.Allocation
	keys := stockKeys(tc.TenantID, [][2]int64{{in.ItemID, in.SiteID}})
	err := r.run(ctx, tc, EventStockIssue, keys, func(ctx context.Context, tx TxRepository) error {
		var err error
		allocations, err = r.batches.ConsumeTx(ctx, tx.Batches(), tc, in)
		if err != nil {
			return err
		}
		_, err = r.costs.OnIssueTx(ctx, tx.Costs(), tc, in.ItemID, in.SiteID, batches.TotalQuantity(allocations))
		return err
	})
	return allocations, err
}

// ReturnStock reverses allocations and brings the units back into average cost.
func (r *Recorder) ReturnStock(ctx context.Context, tc shared.TenantContext, allocations []batches.Allocation) error {
	return r.run(ctx, tc, EventStockReturn, nil, func(ctx context.Context, tx TxRepository) error {
		type key struct{ item, site int64 }
		type acc struct{ qty, value decimal.Decimal }
		totals := map[key]acc{}
		var order []key
		for _, a := range allocations {
			batch, err := tx.Batches().GetBatch(ctx, tc.TenantID, a.BatchID)
			if err != nil {
				return err
			}
			k := key{batch.ItemID, batch.SiteID}
			cur, ok := totals[k]
			if !ok {
				order = append(order, k)
				cur = acc{qty: decimal.Zero, value: decimal.Zero}
			}
			totals[k] = acc{qty: cur.qty.Add(a.Quantity), value: cur.value.Add(a.CostConsumed)}
		}
		if err := r.batches.ReturnTx(ctx, tx.Batches(), tc, allocations); err != nil {
			return err
		}
		for _, k := range order {
			t := totals[k]
			if _, err := r.costs.OnReturnTx(ctx, tx.Costs(), tc, k.item, k.site, t.qty, t.value); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteOffInput retires stock from one batch. A nil Quantity writes off everything remaining
// and marks the batch expired; otherwise the units are recorded as damaged. With a Source the
// loss is posted as Dr Stock-Loss / Cr Inventory / Cr Input-Tax-Credit on Date.
type WriteOffInput struct {
	BatchID  int64 `validate:"required,gt=0"`
	Quantity *decimal.Decimal
	Source   ledger.SourceRef `validate:"-"`
	Date     time.Time
}

func (in WriteOffInput) posts() bool {
	return in.Source != (ledger.SourceRef{})
}

// WriteOffStock forfeits the batch's stock and matching ITC and lowers on-hand quantity.
func (r *Recorder) WriteOffStock(ctx context.Context, tc shared.TenantContext, in WriteOffInput) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	if in.posts() {
		if err := shared.ValidateStruct(in.Source); err != nil {
			return Result{}, err
		}
		if in.Date.IsZero() {
			return Result{}, shared.Invalid("date", "required when the write-off is posted")
		}
	}
	final := batches.StatusExpired
	if in.Quantity != nil {
		final = batches.StatusDamaged
	}
	var res Result
	var written batches.WriteOff
	err := r.run(ctx, tc, EventStockWriteOff, nil, func(ctx context.Context, tx TxRepository) error {
		res = Result{}
		batch, out, err := r.batches.WriteOffTx(ctx, tx.Batches(), tc, in.BatchID, in.Quantity, final)
		if err != nil {
			return err
		}
		written = out
		res.Batches = []batches.Batch{batch}
		if !out.Quantity.IsPositive() {
			return nil
		}
		cost, err := r.costs.OnIssueTx(ctx, tx.Costs(), tc, batch.ItemID, batch.SiteID, out.Quantity)
		if err != nil {
			return err
		}
		res.Costs = []costing.ItemCost{cost}
		if !in.posts() {
			return nil
		}
		tpl := StockWriteOffTemplate{Cost: out.Cost, ITC: out.ITCForfeited}
		res.Voucher, err = r.post(ctx, tx, tc, in.Date, in.Source, fmt.Sprintf("Write-off of batch %d", batch.ID), tpl)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	batch := res.Batches[0]
	r.record(ctx, tc, EventStockWriteOff, idString(batch.ID), map[string]any{
		"quantity":     written.Quantity.String(),
		"status":       string(batch.Status),
		"itc_reversed": written.ITCForfeited.StringFixed(shared.MoneyPlaces),
		"voucher_id":   res.Voucher.ID,
	})
	return res, nil
}

// ItemCost exposes the valuator's state for reporting.
func (r *Recorder) ItemCost(ctx context.Context, tc shared.TenantContext, itemID, siteID int64) (costing.ItemCost, error) {
	return r.costs.ItemCost(ctx, tc, itemID, siteID)
}

func narrationOr(narration, format string, args ...any) string {
	if narration != "" {
		return narration
	}
	return fmt.Sprintf(format, args...)
}
