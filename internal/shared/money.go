package shared

import "github.com/shopspring/decimal"

const (
	// QuantityScale is the persisted precision of stock quantities.
	QuantityScale int32 = 4
	// CostScale is the precision of unit costs.
	CostScale int32 = 6
	// LedgerScale is the maximum precision accepted on journal amounts.
	LedgerScale int32 = 4
	// MoneyScale is the presentation and posting precision of monetary totals.
	MoneyScale int32 = 2
)

// RoundCost rounds a unit cost to CostScale.
func RoundCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(CostScale)
}

// RoundMoney rounds a monetary total to MoneyScale (half away from zero).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// HasScale reports whether d carries no more than scale fractional digits.
func HasScale(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
