package cart

import (
	"github.com/shopspring/decimal"
)

// BulkQuantity is the line quantity that grants the bulk bonus to every line
// of the cart.
const BulkQuantity = 10

var (
	// BulkBonus is added to every line rate while the cart holds a bulk line.
	BulkBonus = decimal.RequireFromString("0.05")
	// MaxRate caps the effective rate of any line.
	MaxRate = decimal.RequireFromString("0.5")
)

// HasBulkLine reports whether any line of c reaches BulkQuantity.
func (c Cart) HasBulkLine() bool {
	for _, l := range c.Lines {
		if l.Quantity >= BulkQuantity {
			return true
		}
	}
	return false
}

// MaxApplicableDiscount returns the effective discount rate of line within c:
// the best tier the line quantity qualifies for, plus BulkBonus when any line
// of c (line itself included) is a bulk line, capped at MaxRate.
func MaxApplicableDiscount(line Line, c Cart) decimal.Decimal {
	rate := decimal.Zero
	for _, tier := range line.Product.Discounts {
		if line.Quantity >= tier.MinQuantity && tier.Rate.GreaterThan(rate) {
			rate = tier.Rate
		}
	}
	if c.HasBulkLine() {
		rate = rate.Add(BulkBonus)
	}
	return decimal.Min(rate, MaxRate)
}

// LineTotal returns the discounted amount of line, rounded half-up to a whole
// currency unit.
func LineTotal(line Line, c Cart) int64 {
	rate := MaxApplicableDiscount(line, c)
	return line.Product.Price.
		Mul(decimal.NewFromInt(int64(line.Quantity))).
		Mul(decimal.NewFromInt(1).Sub(rate)).
		Round(0).
		IntPart()
}
