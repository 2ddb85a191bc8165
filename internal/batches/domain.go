package batches

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Status describes the lifecycle of a batch. Batches are never deleted.
type Status string

const (
	StatusActive   Status = "active"
	StatusDepleted Status = "depleted"
	StatusExpired  Status = "expired"
	StatusDamaged  Status = "damaged"
)

// Batch is one purchased lot of an item at a site.
type Batch struct {
	ID                int64
	TenantID          int64
	ItemID            int64
	SiteID            int64
	BatchNumber       string
	PurchaseDate      time.Time
	ExpiryDate        *time.Time
	VendorRef         string
	PurchaseRef       string
	QuantityPurchased decimal.Decimal
	QuantityRemaining decimal.Decimal
	QuantitySold      decimal.Decimal
	// QuantityAdjusted is signed: write-offs are negative.
	QuantityAdjusted  decimal.Decimal
	PurchasedWithGST  bool
	BaseCostPerUnit   decimal.Decimal
	GSTRate           decimal.Decimal
	ITCPerUnit        decimal.Decimal
	ITCTotalAvailable decimal.Decimal
	ITCClaimed        decimal.Decimal
	ITCRemaining      decimal.Decimal
	// ITCReversed is the credit forfeited by write-offs, already removed from ITCTotalAvailable.
	ITCReversed decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Retired reports whether the batch was written off as expired or damaged.
func (b Batch) Retired() bool {
	return b.Status == StatusExpired || b.Status == StatusDamaged
}

// Allocatable reports whether consume may draw from the batch.
func (b Batch) Allocatable() bool {
	return b.Status == StatusActive && b.QuantityRemaining.IsPositive()
}

// Value is the cost of the remaining units.
func (b Batch) Value() decimal.Decimal {
	return shared.RoundMoney(b.QuantityRemaining.Mul(b.BaseCostPerUnit))
}

// CheckInvariants verifies the quantity and ITC identities of the batch.
func (b Batch) CheckInvariants() error {
	if b.QuantityRemaining.IsNegative() {
		return fmt.Errorf("batch %d: negative remaining %s", b.ID, b.QuantityRemaining)
	}
	if got := b.QuantityRemaining.Add(b.QuantitySold).Sub(b.QuantityAdjusted); !got.Equal(b.QuantityPurchased) {
		return fmt.Errorf("batch %d: remaining+sold-adjusted=%s, purchased=%s", b.ID, got, b.QuantityPurchased)
	}
	if got := b.ITCClaimed.Add(b.ITCRemaining); !got.Equal(b.ITCTotalAvailable) {
		return fmt.Errorf("batch %d: itc claimed+remaining=%s, available=%s", b.ID, got, b.ITCTotalAvailable)
	}
	return nil
}

// ReceiveInput describes a purchased lot.
type ReceiveInput struct {
	ItemID           int64     `validate:"required,gt=0"`
	SiteID           int64     `validate:"required,gt=0"`
	PurchaseDate     time.Time `validate:"required"`
	Quantity         decimal.Decimal
	UnitCost         decimal.Decimal
	PurchasedWithGST bool
	GSTRate          decimal.Decimal
	VendorRef        string `validate:"max=128"`
	PurchaseRef      string `validate:"max=128"`
	BatchNumber      string `validate:"max=64"`
	ExpiryDate       *time.Time
}

var hundred = decimal.NewFromInt(100)

// Validate checks the receive payload.
func (in ReceiveInput) Validate() error {
	if err := shared.ValidateStruct(in); err != nil {
		return err
	}
	if err := shared.RequirePositive("quantity", shared.RoundQuantity(in.Quantity)); err != nil {
		return err
	}
	if err := shared.RequireNonNegative("unit_cost", in.UnitCost); err != nil {
		return err
	}
	if in.GSTRate.IsNegative() || in.GSTRate.GreaterThan(hundred) {
		return shared.Invalid("gst_rate", "must be between 0 and 100, got %s", in.GSTRate)
	}
	if in.PurchasedWithGST && !in.GSTRate.IsPositive() {
		return shared.Invalid("gst_rate", "gst-backed purchase needs a positive rate")
	}
	if in.ExpiryDate != nil && in.ExpiryDate.Before(in.PurchaseDate) {
		return shared.Invalid("expiry_date", "before purchase date")
	}
	return nil
}

// ConsumeInput requests stock for one sale line.
type ConsumeInput struct {
	ItemID           int64  `validate:"required,gt=0"`
	SiteID           int64  `validate:"required,gt=0"`
	ConsumingRef     string `validate:"required,max=128"`
	Quantity         decimal.Decimal
	RequireGSTBacked bool
	// PreferNonGST draws non-GST batches before GST-backed ones when GST backing is not required.
	PreferNonGST bool
}

// Validate checks the consume payload.
func (in ConsumeInput) Validate() error {
	if err := shared.ValidateStruct(in); err != nil {
		return err
	}
	return shared.RequirePositive("quantity", shared.RoundQuantity(in.Quantity))
}

// Allocation records which batch fed a consumption and at what cost.
type Allocation struct {
	ID               int64
	TenantID         int64
	BatchID          int64
	ConsumingRef     string
	Quantity         decimal.Decimal
	UnitCost         decimal.Decimal
	CostConsumed     decimal.Decimal
	ITCConsumed      decimal.Decimal
	QuantityReturned decimal.Decimal
	CostReturned     decimal.Decimal
	ITCReturned      decimal.Decimal
	CreatedAt        time.Time
}

// Outstanding is the quantity not yet returned.
func (a Allocation) Outstanding() decimal.Decimal {
	return a.Quantity.Sub(a.QuantityReturned)
}

// Portion returns an allocation carrying qty units of a with matching cost and ITC.
// Taking the whole outstanding quantity yields exactly the unreturned cost and ITC.
func (a Allocation) Portion(qty decimal.Decimal) Allocation {
	part := a
	part.Quantity = qty
	part.QuantityReturned = decimal.Zero
	part.CostReturned = decimal.Zero
	part.ITCReturned = decimal.Zero
	if qty.Equal(a.Outstanding()) {
		part.CostConsumed = a.CostConsumed.Sub(a.CostReturned)
		part.ITCConsumed = a.ITCConsumed.Sub(a.ITCReturned)
		return part
	}
	part.CostConsumed = shared.RoundMoney(a.CostConsumed.Mul(qty).Div(a.Quantity))
	part.ITCConsumed = shared.RoundMoney(a.ITCConsumed.Mul(qty).Div(a.Quantity))
	return part
}

// TotalCost sums the consumed cost of allocations.
func TotalCost(allocations []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.CostConsumed)
	}
	return total
}

// TotalITC sums the ITC carried by allocations.
func TotalITC(allocations []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.ITCConsumed)
	}
	return total
}

// TotalQuantity sums the allocated quantity.
func TotalQuantity(allocations []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Quantity)
	}
	return total
}

// WriteOff is what a write-off removed from a batch.
type WriteOff struct {
	Quantity decimal.Decimal
	// Cost is the book value of the written-off units.
	Cost decimal.Decimal
	// ITCForfeited is the input credit dropped from the batch.
	ITCForfeited decimal.Decimal
}

// Availability splits allocatable stock by GST backing.
type Availability struct {
	Total     decimal.Decimal
	GSTBacked decimal.Decimal
	NonGST    decimal.Decimal
}

// Summary values the stock of a tenant, optionally limited to one item.
type Summary struct {
	GSTQuantity    decimal.Decimal
	NonGSTQuantity decimal.Decimal
	GSTValue       decimal.Decimal
	NonGSTValue    decimal.Decimal
	ITCAvailable   decimal.Decimal
	ActiveBatches  int
	TotalBatches   int
}

// Filter narrows batch listings. Zero fields match everything.
type Filter struct {
	ItemID int64
	SiteID int64
	Status Status
}
