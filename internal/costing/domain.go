package costing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ItemCost is the running weighted-average cost of an item at a site.
type ItemCost struct {
	TenantID    int64
	ItemID      int64
	SiteID      int64
	AverageCost decimal.Decimal
	OnHand      decimal.Decimal
	UpdatedAt   time.Time
}

// Value is the on-hand quantity valued at the average cost.
func (c ItemCost) Value() decimal.Decimal {
	return shared.RoundMoney(c.OnHand.Mul(c.AverageCost))
}

// WeightedAverage blends an incoming quantity into the current average.
// With nothing on hand the incoming unit cost becomes the average.
func WeightedAverage(oldQty, oldAvg, qty, unitCost decimal.Decimal) (decimal.Decimal, error) {
	if err := shared.RequireNonNegative("on_hand", oldQty); err != nil {
		return decimal.Zero, err
	}
	if err := shared.RequireNonNegative("average_cost", oldAvg); err != nil {
		return decimal.Zero, err
	}
	if err := shared.RequireNonNegative("quantity", qty); err != nil {
		return decimal.Zero, err
	}
	if err := shared.RequireNonNegative("unit_cost", unitCost); err != nil {
		return decimal.Zero, err
	}
	total := oldQty.Add(qty)
	if oldQty.IsZero() || total.IsZero() {
		if qty.IsZero() {
			return oldAvg, nil
		}
		return shared.RoundRate(unitCost), nil
	}
	value := oldQty.Mul(oldAvg).Add(qty.Mul(unitCost))
	return shared.RoundRate(value.Div(total)), nil
}
