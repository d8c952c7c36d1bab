package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
)

// Totals are the derived cart amounts. They are recomputed on demand and
// never stored.
type Totals struct {
	BeforeDiscount int64
	AfterDiscount  int64
}

// CalculateTotals prices c. BeforeDiscount ignores every discount;
// AfterDiscount sums the discounted line totals and then applies selected,
// if any.
func CalculateTotals(c Cart, selected *coupon.Coupon) Totals {
	before := decimal.Zero
	var after int64
	for _, l := range c.Lines {
		before = before.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		after += LineTotal(l, c)
	}
	if selected != nil {
		after = selected.ApplyTo(after)
	}
	return Totals{
		BeforeDiscount: before.Round(0).IntPart(),
		AfterDiscount:  after,
	}
}

// Savings returns the total discount granted.
func (t Totals) Savings() int64 {
	return t.BeforeDiscount - t.AfterDiscount
}
