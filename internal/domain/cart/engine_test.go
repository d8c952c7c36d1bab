package cart

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/outcome"
	"github.com/xenking/kart-pricing/internal/domain/product"
)

func fixedID(id string) func() string {
	return func() string { return id }
}

func TestEngine_AddToCart(t *testing.T) {
	e := NewEngine(fixedID("ORD-1"))
	p := newProduct("p1", 1000, 2)

	c, res := e.AddToCart(Cart{}, p)
	require.True(t, res.Success)
	assert.Equal(t, outcome.KindSuccess, res.Kind)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 1, c.Lines[0].Quantity)

	c, res = e.AddToCart(c, p)
	require.True(t, res.Success)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)

	before := c
	c, res = e.AddToCart(c, p)
	require.False(t, res.Success)
	assert.Equal(t, outcome.KindError, res.Kind)
	assert.Equal(t, outcome.CodeOutOfStock, res.Code())
	assert.Equal(t, "Out of stock!", res.Message)
	assert.Equal(t, before, c)
}

func TestEngine_AddToCart_StockDroppedBelowLine(t *testing.T) {
	e := NewEngine(nil)
	snapshot := newProduct("p1", 1000, 10)
	c := cartOf(Line{Product: snapshot, Quantity: 2})

	fresh := snapshot
	fresh.Stock = 1

	got, res := e.AddToCart(c, fresh)
	require.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, ErrInsufficientStock))
	assert.Equal(t, c, got)
}

func TestEngine_AddToCart_DoesNotMutateInput(t *testing.T) {
	e := NewEngine(nil)
	p := newProduct("p1", 1000, 5)
	c := cartOf(Line{Product: p, Quantity: 1})

	next, res := e.AddToCart(c, p)
	require.True(t, res.Success)
	assert.Equal(t, 1, c.Lines[0].Quantity)
	assert.Equal(t, 2, next.Lines[0].Quantity)
}

func TestEngine_RemoveFromCart(t *testing.T) {
	e := NewEngine(nil)
	a := newProduct("a", 100, 5)
	b := newProduct("b", 100, 5)
	c := cartOf(Line{Product: a, Quantity: 1}, Line{Product: b, Quantity: 2})

	got, res := e.RemoveFromCart(c, "a")
	require.True(t, res.Success)
	assert.Equal(t, cartOf(Line{Product: b, Quantity: 2}), got)
	assert.Len(t, c.Lines, 2)

	got, res = e.RemoveFromCart(got, "missing")
	require.True(t, res.Success)
	assert.Equal(t, cartOf(Line{Product: b, Quantity: 2}), got)

	got, _ = e.RemoveFromCart(got, "b")
	assert.True(t, got.Empty())
}

func TestEngine_SetQuantity(t *testing.T) {
	snapshot := newProduct("p1", 1000, 10)
	fresh := snapshot
	fresh.Stock = 4
	catalog := []product.Product{fresh}
	start := cartOf(Line{Product: snapshot, Quantity: 2})

	tests := []struct {
		name      string
		productID string
		n         int
		catalog   []product.Product
		wantOK    bool
		wantQty   int
		wantCode  outcome.Code
		wantErr   error
	}{
		{name: "update within fresh stock", productID: "p1", n: 4, catalog: catalog, wantOK: true, wantQty: 4},
		{name: "fresh stock wins over snapshot", productID: "p1", n: 5, catalog: catalog, wantCode: outcome.CodeStockExceeded, wantErr: ErrInsufficientStock},
		{name: "zero removes", productID: "p1", n: 0, catalog: catalog, wantOK: true},
		{name: "negative removes", productID: "p1", n: -1, catalog: nil, wantOK: true},
		{name: "product left catalog", productID: "p1", n: 1, catalog: nil, wantCode: outcome.CodeProductNotFound, wantErr: product.ErrNotFound},
		{name: "line not in cart", productID: "p1", n: 1, catalog: catalog, wantErr: ErrNotInCart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(nil)
			c := start
			if tt.wantErr == ErrNotInCart {
				c = Cart{}
			}

			got, res := e.SetQuantity(c, tt.productID, tt.n, tt.catalog)
			if !tt.wantOK {
				require.False(t, res.Success)
				require.ErrorIs(t, res.Err, tt.wantErr)
				assert.Equal(t, tt.wantCode, res.Code())
				assert.Equal(t, c, got)
				return
			}

			require.True(t, res.Success)
			assert.Equal(t, tt.wantQty, got.Quantity(tt.productID))
		})
	}
}

func TestEngine_SetQuantity_ExceededMessageCarriesMax(t *testing.T) {
	p := newProduct("p1", 1000, 3)
	c := cartOf(Line{Product: p, Quantity: 1})

	_, res := NewEngine(nil).SetQuantity(c, "p1", 7, []product.Product{p})
	require.False(t, res.Success)
	assert.Equal(t, "Only 3 in stock.", res.Message)

	var se *StockError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, 3, se.Max)
}

func TestEngine_ApplyCoupon(t *testing.T) {
	e := NewEngine(nil)
	big := cartOf(Line{Product: newProduct("p", 20000, 5), Quantity: 1})
	small := cartOf(Line{Product: newProduct("p", 8000, 5), Quantity: 1})

	t.Run("percentage on eligible cart", func(t *testing.T) {
		sel, res := e.ApplyCoupon(big, *percentCoupon("P10", 10), nil)
		require.True(t, res.Success)
		require.NotNil(t, sel)
		assert.Equal(t, "P10", sel.Code)
	})

	t.Run("percentage below minimum keeps selection", func(t *testing.T) {
		current := amountCoupon("A1", 100)
		sel, res := e.ApplyCoupon(small, *percentCoupon("P10", 10), current)
		require.False(t, res.Success)
		require.ErrorIs(t, res.Err, coupon.ErrBelowMinimum)
		assert.Equal(t, outcome.CodeBelowMinimum, res.Code())
		assert.Same(t, current, sel)
	})

	t.Run("minimum evaluated under current coupon", func(t *testing.T) {
		// 20000 - 15000 = 5000 under the current coupon.
		current := amountCoupon("A15000", 15000)
		sel, res := e.ApplyCoupon(big, *percentCoupon("P10", 10), current)
		require.False(t, res.Success)
		assert.Same(t, current, sel)
	})

	t.Run("amount has no minimum", func(t *testing.T) {
		sel, res := e.ApplyCoupon(small, *amountCoupon("A5000", 5000), nil)
		require.True(t, res.Success)
		assert.Equal(t, "A5000", sel.Code)
	})
}

func TestEngine_ClearCoupon(t *testing.T) {
	e := NewEngine(nil)

	sel, res := e.ClearCoupon(amountCoupon("A", 1))
	assert.Nil(t, sel)
	assert.True(t, res.Success)

	sel, res = e.ClearCoupon(nil)
	assert.Nil(t, sel)
	assert.True(t, res.Success)
}

func TestEngine_CompleteOrder(t *testing.T) {
	e := NewEngine(fixedID("ORD-42"))
	c := cartOf(Line{Product: newProduct("p", 50000, 5), Quantity: 1})

	r, res := e.CompleteOrder(c, amountCoupon("A5000", 5000))
	require.True(t, res.Success)
	assert.Equal(t, "ORD-42", r.OrderID)
	assert.Equal(t, Totals{BeforeDiscount: 50000, AfterDiscount: 45000}, r.Totals)
	assert.Contains(t, res.Message, "ORD-42")
}

func TestEngine_RevalidateCoupon(t *testing.T) {
	e := NewEngine(nil)
	catalog := coupon.Defaults()

	sel, res := e.RevalidateCoupon(nil, catalog)
	assert.Nil(t, sel)
	assert.True(t, res.Success)
	assert.NoError(t, res.Err)

	kept := catalog[0]
	sel, res = e.RevalidateCoupon(&kept, catalog)
	assert.Same(t, &kept, sel)
	assert.NoError(t, res.Err)

	gone := coupon.Coupon{Code: "GONE", DiscountType: coupon.DiscountAmount}
	sel, res = e.RevalidateCoupon(&gone, catalog)
	assert.Nil(t, sel)
	assert.True(t, res.Success)
	assert.Equal(t, outcome.KindWarning, res.Kind)
	assert.Equal(t, outcome.CodeCouponNoLongerValid, res.Code())
}
