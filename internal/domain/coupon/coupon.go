package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-pricing/internal/domain/outcome"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountAmount subtracts a fixed currency amount from the cart total.
	DiscountAmount DiscountType = "amount"
	// DiscountPercentage takes a percentage (0-100) off the cart total.
	DiscountPercentage DiscountType = "percentage"
)

var (
	// ErrNotFound is returned when no coupon with the requested code exists.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when creating a coupon whose code is taken.
	ErrDuplicateCode = outcome.NewError(outcome.CodeDuplicateCouponCode, "coupon code already exists")
	// ErrBelowMinimum is returned when a percentage coupon is applied to a
	// cart whose current total is below MinPercentageTotal.
	ErrBelowMinimum = outcome.NewError(outcome.CodeBelowMinimum, "cart total below minimum for percentage coupon")
	// ErrNoLongerValid marks a selected coupon whose code left the catalog.
	ErrNoLongerValid = outcome.NewError(outcome.CodeCouponNoLongerValid, "selected coupon no longer exists")
)

// Coupon is a named, coded discount applied to a whole cart.
type Coupon struct {
	Code          string
	Name          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
}

// ApplyTo returns total after this coupon's discount. The result is never
// negative.
func (c Coupon) ApplyTo(total int64) int64 {
	t := decimal.NewFromInt(total)
	switch c.DiscountType {
	case DiscountAmount:
		t = t.Sub(c.DiscountValue)
	case DiscountPercentage:
		t = t.Mul(one.Sub(c.DiscountValue.Div(hundred)))
	default:
		return total
	}
	if t.IsNegative() {
		return 0
	}
	return t.Round(0).IntPart()
}

// Repository is the coupon side of the catalog provider.
type Repository interface {
	List(ctx context.Context) ([]Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c Coupon) error
	Delete(ctx context.Context, code string) error
}

// Defaults returns the initial coupon catalog used when none is stored.
func Defaults() []Coupon {
	return []Coupon{
		{
			Code:          "AMOUNT5000",
			Name:          "5000 off",
			DiscountType:  DiscountAmount,
			DiscountValue: decimal.NewFromInt(5000),
		},
		{
			Code:          "PERCENT10",
			Name:          "10% off",
			DiscountType:  DiscountPercentage,
			DiscountValue: decimal.NewFromInt(10),
		},
	}
}
