package cart

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/order"
	"github.com/xenking/kart-pricing/internal/domain/outcome"
	"github.com/xenking/kart-pricing/internal/domain/product"
)

// ErrNotInCart is returned when a quantity is set for a product that has no
// line in the cart.
var ErrNotInCart = errors.New("product not in cart")

// Receipt identifies a completed order and what it cost.
type Receipt struct {
	OrderID string
	Totals  Totals
}

// Engine applies validated mutations to carts and coupon selections. Every
// method returns the new state together with a result; on failure the
// returned state is the input state.
type Engine struct {
	newOrderID order.IDGenerator
}

// NewEngine creates an Engine. A nil generator falls back to order.NewID.
func NewEngine(newOrderID order.IDGenerator) *Engine {
	if newOrderID == nil {
		newOrderID = order.NewID
	}
	return &Engine{newOrderID: newOrderID}
}

// AddToCart adds one unit of p, creating the line if needed.
func (e *Engine) AddToCart(c Cart, p product.Product) (Cart, outcome.Result) {
	if err := CanAdd(p, c); err != nil {
		return c, stockFailure(err)
	}

	i := c.index(p.ID)
	if i < 0 {
		next := c.clone()
		next.Lines = append(next.Lines, Line{Product: p, Quantity: 1})
		return next, outcome.OK(fmt.Sprintf("Added %s to cart.", p.Name))
	}

	if err := CanIncrement(p, c.Lines[i].Quantity); err != nil {
		return c, stockFailure(err)
	}
	next := c.clone()
	next.Lines[i].Quantity++
	return next, outcome.OK(fmt.Sprintf("Added %s to cart.", p.Name))
}

// RemoveFromCart drops the line of productID. Removing an absent line is a
// no-op.
func (e *Engine) RemoveFromCart(c Cart, productID string) (Cart, outcome.Result) {
	return c.without(productID), outcome.OK("Removed from cart.")
}

// SetQuantity sets the line of productID to n units. Stock is checked against
// the product in catalog, not against the line snapshot.
func (e *Engine) SetQuantity(c Cart, productID string, n int, catalog []product.Product) (Cart, outcome.Result) {
	if n <= 0 {
		return e.RemoveFromCart(c, productID)
	}

	p, ok := product.Find(catalog, productID)
	if !ok {
		err := errors.Wrap(product.ErrNotFound, productID)
		return c, outcome.Fail(err, "Product not found.")
	}
	i := c.index(productID)
	if i < 0 {
		err := errors.Wrap(ErrNotInCart, productID)
		return c, outcome.Fail(err, "Product is not in the cart.")
	}
	if _, err := CanSetQuantity(p, n); err != nil {
		return c, stockFailure(err)
	}

	next := c.clone()
	next.Lines[i].Quantity = n
	return next, outcome.OK("Quantity updated.")
}

// ApplyCoupon selects cp in place of current.
func (e *Engine) ApplyCoupon(c Cart, cp coupon.Coupon, current *coupon.Coupon) (*coupon.Coupon, outcome.Result) {
	if err := CanApplyCoupon(cp, c, current); err != nil {
		return current, outcome.Fail(err, fmt.Sprintf(
			"Percentage coupons require an order total of at least %d.", coupon.MinPercentageTotal,
		))
	}
	return &cp, outcome.OK(fmt.Sprintf("Coupon %s applied.", cp.Code))
}

// ClearCoupon drops the current selection.
func (e *Engine) ClearCoupon(current *coupon.Coupon) (*coupon.Coupon, outcome.Result) {
	if current == nil {
		return nil, outcome.OK("No coupon selected.")
	}
	return nil, outcome.OK("Coupon removed.")
}

// CompleteOrder prices c under selected and issues an order id. It always
// succeeds; the caller clears the cart and the selection.
func (e *Engine) CompleteOrder(c Cart, selected *coupon.Coupon) (Receipt, outcome.Result) {
	r := Receipt{
		OrderID: e.newOrderID(),
		Totals:  CalculateTotals(c, selected),
	}
	return r, outcome.OK(fmt.Sprintf("Order completed. Order number: %s", r.OrderID))
}

// RevalidateCoupon clears selected when its code is no longer in catalog.
func (e *Engine) RevalidateCoupon(selected *coupon.Coupon, catalog []coupon.Coupon) (*coupon.Coupon, outcome.Result) {
	if coupon.IsStillValid(selected, catalog) {
		return selected, outcome.OK("")
	}
	err := errors.Wrap(coupon.ErrNoLongerValid, selected.Code)
	return nil, outcome.Warn(err, fmt.Sprintf("Coupon %s is no longer available and was removed.", selected.Code))
}

func stockFailure(err error) outcome.Result {
	var se *StockError
	if errors.As(err, &se) && se.Code == outcome.CodeStockExceeded {
		return outcome.Fail(err, fmt.Sprintf("Only %d in stock.", se.Max))
	}
	return outcome.Fail(err, "Out of stock!")
}
