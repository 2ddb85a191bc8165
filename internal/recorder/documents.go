package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/ledger"
)

// SaleDocument remembers what a finalized sale consumed so returns can mirror it.
type SaleDocument struct {
	ID         int64
	TenantID   int64
	Source     ledger.SourceRef
	Settlement Settlement
	Taxable    bool
	VoucherID  int64
	CreatedAt  time.Time
	Lines      []SaleDocumentLine
}

// Total is the invoiced amount before round-off.
func (d SaleDocument) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range d.Lines {
		total = total.Add(line.NetAmount).Add(line.TaxAmount)
	}
	return total
}

// FullyReturned reports whether every line came back.
func (d SaleDocument) FullyReturned() bool {
	for _, line := range d.Lines {
		if line.Outstanding().IsPositive() {
			return false
		}
	}
	return true
}

// SaleDocumentLine is one invoiced item and the allocation reference it consumed under.
type SaleDocumentLine struct {
	ID               int64
	SaleID           int64
	LineNo           int
	ItemID           int64
	SiteID           int64
	Quantity         decimal.Decimal
	NetAmount        decimal.Decimal
	TaxAmount        decimal.Decimal
	QuantityReturned decimal.Decimal
	NetReturned      decimal.Decimal
	TaxReturned      decimal.Decimal
	ConsumingRef     string
}

// Outstanding is the quantity still returnable.
func (l SaleDocumentLine) Outstanding() decimal.Decimal {
	return l.Quantity.Sub(l.QuantityReturned)
}

// consumingRef names the allocations of one sale line.
func consumingRef(source ledger.SourceRef, lineNo int) string {
	return fmt.Sprintf("%s#%d", source.String(), lineNo)
}

// CommissionNote is an agent's pending commission on a sale. It never touches the cash ledger.
type CommissionNote struct {
	ID             int64
	TenantID       int64
	AgentID        int64
	SaleID         *int64
	InvoiceAmount  decimal.Decimal
	Percentage     decimal.Decimal
	Amount         decimal.Decimal
	ReversedAmount decimal.Decimal
	CreatedAt      time.Time
}

// Outstanding is the earned amount not yet reversed.
func (n CommissionNote) Outstanding() decimal.Decimal {
	return n.Amount.Sub(n.ReversedAmount)
}

// CommissionReversal reduces a note, linked by note id.
type CommissionReversal struct {
	ID        int64
	TenantID  int64
	NoteID    int64
	Amount    decimal.Decimal
	SourceRef string
	CreatedAt time.Time
}

// CommissionPayment is a settled commission backed by a voucher.
type CommissionPayment struct {
	ID        int64
	TenantID  int64
	AgentID   int64
	Amount    decimal.Decimal
	VoucherID int64
	PaidAt    time.Time
}

// AgentBalance summarises an agent's commission position.
type AgentBalance struct {
	AgentID  int64
	Earned   decimal.Decimal
	Reversed decimal.Decimal
	Paid     decimal.Decimal
}

// Pending is what the agent is still owed. Negative means the agent was overpaid.
func (b AgentBalance) Pending() decimal.Decimal {
	return b.Earned.Sub(b.Reversed).Sub(b.Paid)
}

// DocumentRepository persists sale documents and commission records.
type DocumentRepository interface {
	// InsertSale fails with shared.ErrSourceAlreadyPosted on a reused source.
	InsertSale(ctx context.Context, sale SaleDocument) (SaleDocument, error)
	// GetSaleBySourceForUpdate locks the sale lines for a return.
	GetSaleBySourceForUpdate(ctx context.Context, tenantID int64, source ledger.SourceRef) (SaleDocument, error)
	UpdateSaleLineReturn(ctx context.Context, line SaleDocumentLine) error

	// InsertCommissionNote fails with shared.ErrSourceAlreadyPosted when the agent already has a note on the sale.
	InsertCommissionNote(ctx context.Context, note CommissionNote) (CommissionNote, error)
	GetCommissionNoteForUpdate(ctx context.Context, tenantID, id int64) (CommissionNote, error)
	ListCommissionNotesBySale(ctx context.Context, tenantID, saleID int64) ([]CommissionNote, error)
	UpdateCommissionNoteReversed(ctx context.Context, note CommissionNote) error
	// InsertCommissionReversal fails with shared.ErrSourceAlreadyPosted when the source already reversed the note.
	InsertCommissionReversal(ctx context.Context, reversal CommissionReversal) (CommissionReversal, error)
	InsertCommissionPayment(ctx context.Context, payment CommissionPayment) (CommissionPayment, error)
	AgentBalance(ctx context.Context, tenantID, agentID int64) (AgentBalance, error)
}
