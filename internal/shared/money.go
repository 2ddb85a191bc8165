package shared

import "github.com/shopspring/decimal"

const (
	// MoneyPlaces is the number of minor-unit digits kept for amounts.
	MoneyPlaces = 2
	// QuantityPlaces is the precision kept for stock quantities.
	QuantityPlaces = 3
	// RatePlaces is the precision kept for per-unit costs and tax amounts.
	RatePlaces = 4
)

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half away from zero to minor units.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// RoundQuantity rounds a stock quantity to its stored precision.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityPlaces)
}

// RoundRate rounds a per-unit value to its stored precision.
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RatePlaces)
}

// Percent returns value * pct / 100 without rounding.
func Percent(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(pct).Div(hundred)
}

// SumMoney adds amounts.
func SumMoney(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
