package session

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-pricing/internal/domain/cart"
	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/outcome"
	"github.com/xenking/kart-pricing/internal/domain/product"
)

// LineView is a cart line with its derived pricing.
type LineView struct {
	Line           cart.Line
	Rate           decimal.Decimal
	Total          int64
	RemainingStock int
}

// View is the priced state of one session. It is rebuilt on every call.
type View struct {
	Lines  []LineView
	Totals cart.Totals
	Coupon *coupon.Coupon
}

// Outcome is what every session operation reports: the engine result, any
// notices raised while loading the session, and the resulting view.
type Outcome struct {
	outcome.Result
	Notices []outcome.Result
	View    View
	// OrderID is set by a successful Checkout.
	OrderID string
}

// CouponOutcome reports an admin operation on the coupon catalog. Coupon
// holds the submitted coupon with its value corrected into range.
type CouponOutcome struct {
	outcome.Result
	Coupon  coupon.Coupon
	Coupons []coupon.Coupon
}

func buildView(c cart.Cart, selected *coupon.Coupon, catalog []product.Product) View {
	v := View{
		Lines:  make([]LineView, 0, len(c.Lines)),
		Totals: cart.CalculateTotals(c, selected),
		Coupon: selected,
	}
	for _, l := range c.Lines {
		stockOf := l.Product
		if p, ok := product.Find(catalog, l.Product.ID); ok {
			stockOf = p
		}
		v.Lines = append(v.Lines, LineView{
			Line:           l,
			Rate:           cart.MaxApplicableDiscount(l, c),
			Total:          cart.LineTotal(l, c),
			RemainingStock: cart.RemainingStock(stockOf, c),
		})
	}
	return v
}
