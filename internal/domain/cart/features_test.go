package cart

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/outcome"
	"github.com/xenking/kart-pricing/internal/domain/product"
)

type cartTestContext struct {
	engine   *Engine
	catalog  []product.Product
	cart     Cart
	selected *coupon.Coupon
	result   outcome.Result
}

func (c *cartTestContext) reset() {
	c.engine = NewEngine(func() string { return "ORD-TEST" })
	c.catalog = nil
	c.cart = Cart{}
	c.selected = nil
	c.result = outcome.Result{}
}

func (c *cartTestContext) lookup(id string) (product.Product, error) {
	p, ok := product.Find(c.catalog, id)
	if !ok {
		return product.Product{}, fmt.Errorf("unknown product %q", id)
	}
	return p, nil
}

func (c *cartTestContext) aProductPricedWithStock(id string, price, stock int) error {
	c.catalog = append(c.catalog, product.Product{
		ID:    id,
		Name:  id,
		Price: decimal.NewFromInt(int64(price)),
		Stock: stock,
	})
	return nil
}

func (c *cartTestContext) aProductPricedWithStockAndTier(id string, price, stock, minQty int, rate string) error {
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return err
	}
	c.catalog = append(c.catalog, product.Product{
		ID:        id,
		Name:      id,
		Price:     decimal.NewFromInt(int64(price)),
		Stock:     stock,
		Discounts: []product.DiscountTier{{MinQuantity: minQty, Rate: r}},
	})
	return nil
}

func (c *cartTestContext) theCartHolds(qty int, id string) error {
	p, err := c.lookup(id)
	if err != nil {
		return err
	}
	if i := c.cart.index(id); i >= 0 {
		c.cart.Lines[i].Quantity = qty
		return nil
	}
	c.cart.Lines = append(c.cart.Lines, Line{Product: p, Quantity: qty})
	return nil
}

func (c *cartTestContext) theRateOfIs(id, want string) error {
	i := c.cart.index(id)
	if i < 0 {
		return fmt.Errorf("no line for %q", id)
	}
	got := MaxApplicableDiscount(c.cart.Lines[i], c.cart)
	if !got.Equal(decimal.RequireFromString(want)) {
		return fmt.Errorf("expected rate %s, got %s", want, got)
	}
	return nil
}

func (c *cartTestContext) theLineTotalOfIs(id string, want int) error {
	i := c.cart.index(id)
	if i < 0 {
		return fmt.Errorf("no line for %q", id)
	}
	if got := LineTotal(c.cart.Lines[i], c.cart); got != int64(want) {
		return fmt.Errorf("expected line total %d, got %d", want, got)
	}
	return nil
}

func (c *cartTestContext) iApplyACouponWorth(typ, code string, value int) error {
	cp := coupon.Coupon{
		Code:          code,
		Name:          code,
		DiscountType:  coupon.DiscountType(typ),
		DiscountValue: decimal.NewFromInt(int64(value)),
	}
	c.selected, c.result = c.engine.ApplyCoupon(c.cart, cp, c.selected)
	return nil
}

func (c *cartTestContext) iAddToTheCart(id string) error {
	p, err := c.lookup(id)
	if err != nil {
		return err
	}
	c.cart, c.result = c.engine.AddToCart(c.cart, p)
	return nil
}

func (c *cartTestContext) iSetTheQuantityOfTo(id string, n int) error {
	c.cart, c.result = c.engine.SetQuantity(c.cart, id, n, c.catalog)
	return nil
}

func (c *cartTestContext) theOperationSucceeds() error {
	if !c.result.Success {
		return fmt.Errorf("expected success, got %q", c.result.Message)
	}
	return nil
}

func (c *cartTestContext) theOperationFailsWith(code string) error {
	if c.result.Success {
		return errors.New("expected failure, got success")
	}
	if got := c.result.Code(); got != outcome.Code(code) {
		return fmt.Errorf("expected code %s, got %s", code, got)
	}
	return nil
}

func (c *cartTestContext) noCouponIsSelected() error {
	if c.selected != nil {
		return fmt.Errorf("expected no coupon, got %s", c.selected.Code)
	}
	return nil
}

func (c *cartTestContext) theTotalAfterDiscountIs(want int) error {
	if got := CalculateTotals(c.cart, c.selected).AfterDiscount; got != int64(want) {
		return fmt.Errorf("expected total %d, got %d", want, got)
	}
	return nil
}

func (c *cartTestContext) theCartHoldsExactly(qty int, id string) error {
	if got := c.cart.Quantity(id); got != qty {
		return fmt.Errorf("expected %d of %s, got %d", qty, id, got)
	}
	return nil
}

func (c *cartTestContext) theCartHasNoLineFor(id string) error {
	if c.cart.index(id) >= 0 {
		return fmt.Errorf("unexpected line for %s", id)
	}
	return nil
}

func (c *cartTestContext) theReportedMaximumIs(want int) error {
	var se *StockError
	if !errors.As(c.result.Err, &se) {
		return fmt.Errorf("expected stock error, got %v", c.result.Err)
	}
	if se.Max != want {
		return fmt.Errorf("expected max %d, got %d", want, se.Max)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &cartTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a product "([^"]*)" priced (\d+) with stock (\d+)$`, tc.aProductPricedWithStock)
	ctx.Step(`^a product "([^"]*)" priced (\d+) with stock (\d+) and tier (\d+) at "([^"]*)"$`, tc.aProductPricedWithStockAndTier)
	ctx.Step(`^the cart holds (\d+) of "([^"]*)"$`, tc.theCartHolds)

	// When steps
	ctx.Step(`^I apply a "([^"]*)" coupon "([^"]*)" worth (\d+)$`, tc.iApplyACouponWorth)
	ctx.Step(`^I add "([^"]*)" to the cart$`, tc.iAddToTheCart)
	ctx.Step(`^I set the quantity of "([^"]*)" to (-?\d+)$`, tc.iSetTheQuantityOfTo)

	// Then steps
	ctx.Step(`^the rate of "([^"]*)" is "([^"]*)"$`, tc.theRateOfIs)
	ctx.Step(`^the line total of "([^"]*)" is (\d+)$`, tc.theLineTotalOfIs)
	ctx.Step(`^the operation succeeds$`, tc.theOperationSucceeds)
	ctx.Step(`^the operation fails with "([^"]*)"$`, tc.theOperationFailsWith)
	ctx.Step(`^no coupon is selected$`, tc.noCouponIsSelected)
	ctx.Step(`^the total after discount is (\d+)$`, tc.theTotalAfterDiscountIs)
	ctx.Step(`^the cart holds (\d+) of "([^"]*)" exactly$`, tc.theCartHoldsExactly)
	ctx.Step(`^the cart has no line for "([^"]*)"$`, tc.theCartHasNoLineFor)
	ctx.Step(`^the reported maximum is (\d+)$`, tc.theReportedMaximumIs)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
