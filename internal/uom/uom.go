// Package uom converts quantities between an item's stock unit and the unit
// used on a transaction line.
package uom

import "github.com/shopspring/decimal"

// Conversion relates a transaction unit to the stock unit of an item.
type Conversion struct {
	// Factor is the number of stock units in one transaction unit.
	// Zero means no conversion.
	Factor decimal.Decimal
	// MustBeWholeNumber is set when the transaction unit cannot be fractional.
	MustBeWholeNumber bool
}

// NormalizeFactor returns factor, or one when factor is zero.
func NormalizeFactor(factor decimal.Decimal) decimal.Decimal {
	if factor.IsZero() {
		return decimal.NewFromInt(1)
	}
	return factor
}

// ToStockQty converts a transaction quantity into stock units.
func ToStockQty(qty, factor decimal.Decimal) decimal.Decimal {
	return qty.Mul(NormalizeFactor(factor))
}

// ToTransactionQty converts a stock quantity into transaction units.
func ToTransactionQty(stockQty, factor decimal.Decimal) decimal.Decimal {
	return stockQty.Div(NormalizeFactor(factor))
}

// Fit converts stockQty into the transaction unit honouring the whole number
// policy. When the unit must be whole, the transaction quantity is floored and
// the stock quantity recomputed from it, so the returned pair never carries a
// fractional transaction unit. A zero stock result means nothing fits.
func (c Conversion) Fit(stockQty decimal.Decimal) (qty, fitted decimal.Decimal) {
	qty = ToTransactionQty(stockQty, c.Factor)
	if !c.MustBeWholeNumber {
		return qty, stockQty
	}
	qty = qty.Floor()
	return qty, ToStockQty(qty, c.Factor)
}
