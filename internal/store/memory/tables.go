package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/accounts"
	"github.com/odyssey-erp/stockledger/internal/batches"
	"github.com/odyssey-erp/stockledger/internal/costing"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/recorder"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// accounts

func (t *tx) InsertAccount(_ context.Context, account accounts.Account) (accounts.Account, error) {
	for _, a := range t.st.accounts {
		if a.TenantID == account.TenantID && a.Code == account.Code {
			return accounts.Account{}, &shared.DuplicateCodeError{Code: account.Code}
		}
	}
	account.ID = t.st.next("accounts")
	t.st.accounts[account.ID] = account
	return account, nil
}

func (t *tx) GetAccount(_ context.Context, tenantID, id int64) (accounts.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok || a.TenantID != tenantID {
		return accounts.Account{}, shared.NotFound("account", id)
	}
	return a, nil
}

func (t *tx) GetAccountByCode(_ context.Context, tenantID int64, code string) (accounts.Account, error) {
	for _, a := range t.st.accounts {
		if a.TenantID == tenantID && a.Code == code {
			return a, nil
		}
	}
	return accounts.Account{}, &shared.NotFoundError{Kind: "account", Key: code}
}

func (t *tx) ListAccounts(_ context.Context, tenantID int64) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range t.st.accounts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b accounts.Account) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

func (t *tx) SetAccountActive(_ context.Context, tenantID, id int64, active bool) error {
	a, ok := t.st.accounts[id]
	if !ok || a.TenantID != tenantID {
		return shared.NotFound("account", id)
	}
	a.IsActive = active
	t.st.accounts[id] = a
	return nil
}

func (t *tx) ListTenants(_ context.Context) ([]int64, error) {
	seen := make(map[int64]struct{})
	var out []int64
	for _, a := range t.st.accounts {
		if _, ok := seen[a.TenantID]; !ok {
			seen[a.TenantID] = struct{}{}
			out = append(out, a.TenantID)
		}
	}
	slices.Sort(out)
	return out, nil
}

// ledger

func (t *tx) InsertVoucher(_ context.Context, voucher ledger.Voucher) (ledger.Voucher, error) {
	for _, v := range t.st.vouchers {
		if v.TenantID != voucher.TenantID {
			continue
		}
		if v.Source == voucher.Source {
			return ledger.Voucher{}, shared.ErrSourceAlreadyPosted
		}
		if voucher.ReversesID != nil && v.ReversesID != nil && *v.ReversesID == *voucher.ReversesID {
			return ledger.Voucher{}, shared.ErrAlreadyReversed
		}
	}
	voucher.ID = t.st.next("vouchers")
	legs := make([]ledger.Leg, len(voucher.Legs))
	for i, leg := range voucher.Legs {
		leg.VoucherID = voucher.ID
		leg.Seq = t.st.next("voucher_legs")
		legs[i] = leg
	}
	voucher.Legs = legs
	t.st.vouchers[voucher.ID] = voucher
	return voucher, nil
}

func (t *tx) GetVoucher(_ context.Context, tenantID, id int64) (ledger.Voucher, error) {
	v, ok := t.st.vouchers[id]
	if !ok || v.TenantID != tenantID {
		return ledger.Voucher{}, shared.NotFound("voucher", id)
	}
	return v, nil
}

func (t *tx) GetVoucherBySource(_ context.Context, tenantID int64, source ledger.SourceRef) (ledger.Voucher, error) {
	for _, v := range t.st.vouchers {
		if v.TenantID == tenantID && v.Source == source {
			return v, nil
		}
	}
	return ledger.Voucher{}, &shared.NotFoundError{Kind: "voucher", Key: source.String()}
}

func (t *tx) FindReversal(_ context.Context, tenantID, id int64) (ledger.Voucher, bool, error) {
	for _, v := range t.st.vouchers {
		if v.TenantID == tenantID && v.ReversesID != nil && *v.ReversesID == id {
			return v, true, nil
		}
	}
	return ledger.Voucher{}, false, nil
}

func (t *tx) ListVouchersBySourceType(_ context.Context, tenantID int64, sourceType string) ([]ledger.Voucher, error) {
	var out []ledger.Voucher
	for _, v := range t.st.vouchers {
		if v.TenantID == tenantID && v.Source.Type == sourceType {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b ledger.Voucher) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *tx) legs(tenantID int64, asOf time.Time, keep func(ledger.Leg) bool) []ledger.Leg {
	var out []ledger.Leg
	for _, v := range t.st.vouchers {
		if v.TenantID != tenantID {
			continue
		}
		for _, leg := range v.Legs {
			if !asOf.IsZero() && leg.Date.After(asOf) {
				continue
			}
			if keep(leg) {
				out = append(out, leg)
			}
		}
	}
	slices.SortFunc(out, func(a, b ledger.Leg) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}

func (t *tx) ListAccountLegs(_ context.Context, tenantID, accountID int64, asOf time.Time) ([]ledger.Leg, error) {
	return t.legs(tenantID, asOf, func(l ledger.Leg) bool { return l.AccountID == accountID }), nil
}

func (t *tx) AccountTotals(_ context.Context, tenantID int64, asOf time.Time) ([]ledger.AccountTotal, error) {
	byAccount := make(map[int64]*ledger.AccountTotal)
	for _, leg := range t.legs(tenantID, asOf, func(ledger.Leg) bool { return true }) {
		total, ok := byAccount[leg.AccountID]
		if !ok {
			total = &ledger.AccountTotal{Account: t.st.accounts[leg.AccountID], Debit: decimal.Zero, Credit: decimal.Zero}
			byAccount[leg.AccountID] = total
		}
		total.Debit = total.Debit.Add(leg.Debit)
		total.Credit = total.Credit.Add(leg.Credit)
	}
	out := make([]ledger.AccountTotal, 0, len(byAccount))
	for _, total := range byAccount {
		out = append(out, *total)
	}
	slices.SortFunc(out, func(a, b ledger.AccountTotal) int { return cmp.Compare(a.Account.Code, b.Account.Code) })
	return out, nil
}

// batches

func (t *tx) InsertBatch(_ context.Context, b batches.Batch) (batches.Batch, error) {
	b.ID = t.st.next("stock_batches")
	t.st.batches[b.ID] = b
	return b, nil
}

func (t *tx) GetBatch(_ context.Context, tenantID, id int64) (batches.Batch, error) {
	b, ok := t.st.batches[id]
	if !ok || b.TenantID != tenantID {
		return batches.Batch{}, shared.NotFound("batch", id)
	}
	return b, nil
}

func (t *tx) GetBatchForUpdate(ctx context.Context, tenantID, id int64) (batches.Batch, error) {
	return t.GetBatch(ctx, tenantID, id)
}

func (t *tx) LockAllocatableBatches(_ context.Context, tenantID, itemID, siteID int64) ([]batches.Batch, error) {
	var out []batches.Batch
	for _, b := range t.st.batches {
		if b.TenantID == tenantID && b.ItemID == itemID && b.SiteID == siteID && b.Allocatable() {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b batches.Batch) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *tx) UpdateBatch(_ context.Context, b batches.Batch) error {
	current, ok := t.st.batches[b.ID]
	if !ok || current.TenantID != b.TenantID {
		return shared.NotFound("batch", b.ID)
	}
	t.st.batches[b.ID] = b
	return nil
}

func (t *tx) ListBatches(_ context.Context, tenantID int64, filter batches.Filter) ([]batches.Batch, error) {
	var out []batches.Batch
	for _, b := range t.st.batches {
		switch {
		case b.TenantID != tenantID:
		case filter.ItemID != 0 && b.ItemID != filter.ItemID:
		case filter.SiteID != 0 && b.SiteID != filter.SiteID:
		case filter.Status != "" && b.Status != filter.Status:
		default:
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b batches.Batch) int {
		if c := a.PurchaseDate.Compare(b.PurchaseDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *tx) InsertAllocation(_ context.Context, a batches.Allocation) (batches.Allocation, error) {
	a.ID = t.st.next("consumption_allocations")
	t.st.allocations[a.ID] = a
	return a, nil
}

func (t *tx) GetAllocationForUpdate(_ context.Context, tenantID, id int64) (batches.Allocation, error) {
	a, ok := t.st.allocations[id]
	if !ok || a.TenantID != tenantID {
		return batches.Allocation{}, shared.NotFound("allocation", id)
	}
	return a, nil
}

func (t *tx) UpdateAllocationReturn(_ context.Context, a batches.Allocation) error {
	current, ok := t.st.allocations[a.ID]
	if !ok || current.TenantID != a.TenantID {
		return shared.NotFound("allocation", a.ID)
	}
	current.QuantityReturned = a.QuantityReturned
	current.CostReturned = a.CostReturned
	current.ITCReturned = a.ITCReturned
	t.st.allocations[a.ID] = current
	return nil
}

func (t *tx) ListAllocations(_ context.Context, tenantID int64, consumingRef string) ([]batches.Allocation, error) {
	var out []batches.Allocation
	for _, a := range t.st.allocations {
		if a.TenantID == tenantID && a.ConsumingRef == consumingRef {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b batches.Allocation) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// item costs

func (t *tx) GetItemCostForUpdate(_ context.Context, tenantID, itemID, siteID int64) (costing.ItemCost, error) {
	if c, ok := t.st.costs[costKey{tenantID, itemID, siteID}]; ok {
		return c, nil
	}
	return costing.ItemCost{TenantID: tenantID, ItemID: itemID, SiteID: siteID, AverageCost: decimal.Zero, OnHand: decimal.Zero}, nil
}

func (t *tx) UpsertItemCost(_ context.Context, c costing.ItemCost) error {
	t.st.costs[costKey{c.TenantID, c.ItemID, c.SiteID}] = c
	return nil
}

func (t *tx) ListItemCosts(_ context.Context, tenantID int64) ([]costing.ItemCost, error) {
	var out []costing.ItemCost
	for k, c := range t.st.costs {
		if k.tenantID == tenantID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b costing.ItemCost) int {
		if c := cmp.Compare(a.ItemID, b.ItemID); c != 0 {
			return c
		}
		return cmp.Compare(a.SiteID, b.SiteID)
	})
	return out, nil
}

// documents

func (t *tx) InsertSale(_ context.Context, sale recorder.SaleDocument) (recorder.SaleDocument, error) {
	for _, s := range t.st.sales {
		if s.TenantID == sale.TenantID && s.Source == sale.Source {
			return recorder.SaleDocument{}, shared.ErrSourceAlreadyPosted
		}
	}
	sale.ID = t.st.next("sale_documents")
	lines := make([]recorder.SaleDocumentLine, len(sale.Lines))
	for i, line := range sale.Lines {
		line.ID = t.st.next("sale_lines")
		line.SaleID = sale.ID
		t.st.saleLines[line.ID] = line
		lines[i] = line
	}
	header := sale
	header.Lines = nil
	t.st.sales[sale.ID] = header
	sale.Lines = lines
	return sale, nil
}

func (t *tx) GetSaleBySourceForUpdate(_ context.Context, tenantID int64, source ledger.SourceRef) (recorder.SaleDocument, error) {
	for _, s := range t.st.sales {
		if s.TenantID != tenantID || s.Source != source {
			continue
		}
		for _, line := range t.st.saleLines {
			if line.SaleID == s.ID {
				s.Lines = append(s.Lines, line)
			}
		}
		slices.SortFunc(s.Lines, func(a, b recorder.SaleDocumentLine) int { return cmp.Compare(a.LineNo, b.LineNo) })
		return s, nil
	}
	return recorder.SaleDocument{}, &shared.NotFoundError{Kind: "sale", Key: source.String()}
}

func (t *tx) UpdateSaleLineReturn(_ context.Context, line recorder.SaleDocumentLine) error {
	current, ok := t.st.saleLines[line.ID]
	if !ok {
		return shared.NotFound("sale line", line.ID)
	}
	current.QuantityReturned = line.QuantityReturned
	current.NetReturned = line.NetReturned
	current.TaxReturned = line.TaxReturned
	t.st.saleLines[line.ID] = current
	return nil
}

func (t *tx) InsertCommissionNote(_ context.Context, note recorder.CommissionNote) (recorder.CommissionNote, error) {
	if note.SaleID != nil {
		for _, n := range t.st.notes {
			if n.TenantID == note.TenantID && n.AgentID == note.AgentID && n.SaleID != nil && *n.SaleID == *note.SaleID {
				return recorder.CommissionNote{}, shared.ErrSourceAlreadyPosted
			}
		}
	}
	note.ID = t.st.next("commission_notes")
	t.st.notes[note.ID] = note
	return note, nil
}

func (t *tx) GetCommissionNoteForUpdate(_ context.Context, tenantID, id int64) (recorder.CommissionNote, error) {
	n, ok := t.st.notes[id]
	if !ok || n.TenantID != tenantID {
		return recorder.CommissionNote{}, shared.NotFound("commission note", id)
	}
	return n, nil
}

func (t *tx) ListCommissionNotesBySale(_ context.Context, tenantID, saleID int64) ([]recorder.CommissionNote, error) {
	var out []recorder.CommissionNote
	for _, n := range t.st.notes {
		if n.TenantID == tenantID && n.SaleID != nil && *n.SaleID == saleID {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b recorder.CommissionNote) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *tx) UpdateCommissionNoteReversed(_ context.Context, note recorder.CommissionNote) error {
	current, ok := t.st.notes[note.ID]
	if !ok || current.TenantID != note.TenantID {
		return shared.NotFound("commission note", note.ID)
	}
	current.ReversedAmount = note.ReversedAmount
	t.st.notes[note.ID] = current
	return nil
}

func (t *tx) InsertCommissionReversal(_ context.Context, reversal recorder.CommissionReversal) (recorder.CommissionReversal, error) {
	for _, r := range t.st.reversals {
		if r.NoteID == reversal.NoteID && r.SourceRef == reversal.SourceRef {
			return recorder.CommissionReversal{}, shared.ErrSourceAlreadyPosted
		}
	}
	reversal.ID = t.st.next("commission_reversals")
	t.st.reversals[reversal.ID] = reversal
	return reversal, nil
}

func (t *tx) InsertCommissionPayment(_ context.Context, payment recorder.CommissionPayment) (recorder.CommissionPayment, error) {
	payment.ID = t.st.next("commission_payments")
	t.st.payments[payment.ID] = payment
	return payment, nil
}

func (t *tx) AgentBalance(_ context.Context, tenantID, agentID int64) (recorder.AgentBalance, error) {
	balance := recorder.AgentBalance{AgentID: agentID, Earned: decimal.Zero, Reversed: decimal.Zero, Paid: decimal.Zero}
	for _, n := range t.st.notes {
		if n.TenantID == tenantID && n.AgentID == agentID {
			balance.Earned = balance.Earned.Add(n.Amount)
			balance.Reversed = balance.Reversed.Add(n.ReversedAmount)
		}
	}
	for _, p := range t.st.payments {
		if p.TenantID == tenantID && p.AgentID == agentID {
			balance.Paid = balance.Paid.Add(p.Amount)
		}
	}
	return balance, nil
}
