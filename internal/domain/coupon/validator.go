package coupon

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-pricing/internal/domain/outcome"
)

// MinPercentageTotal is the smallest post-discount cart total a percentage
// coupon may be applied to.
const MinPercentageTotal = 10000

var (
	zero    = decimal.Zero
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)

	// MaxAmount caps the value of an amount coupon.
	MaxAmount = decimal.NewFromInt(100000)
)

// InvalidValueError reports a discount value outside the range allowed for
// its discount type. Corrected holds the value clamped to the nearest bound.
type InvalidValueError struct {
	Type      DiscountType
	Value     decimal.Decimal
	Corrected decimal.Decimal
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s discount value %s (corrected to %s)", e.Type, e.Value, e.Corrected)
}

// ErrorCode implements outcome.Coder.
func (e *InvalidValueError) ErrorCode() outcome.Code {
	return outcome.CodeInvalidDiscountValue
}

// ValidateDiscountValue checks v against the range of t: [0,100] for
// percentages and [0,MaxAmount] for amounts. It always returns the value the
// admin form should hold afterwards, together with an *InvalidValueError when
// v had to be clamped.
func ValidateDiscountValue(t DiscountType, v decimal.Decimal) (decimal.Decimal, error) {
	upper := MaxAmount
	if t == DiscountPercentage {
		upper = hundred
	}

	switch {
	case v.IsNegative():
		return zero, &InvalidValueError{Type: t, Value: v, Corrected: zero}
	case v.GreaterThan(upper):
		return upper, &InvalidValueError{Type: t, Value: v, Corrected: upper}
	default:
		return v, nil
	}
}

// CheckCodeAvailable returns ErrDuplicateCode when code is already used by a
// coupon in catalog. Codes compare case-insensitively.
func CheckCodeAvailable(code string, catalog []Coupon) error {
	for _, c := range catalog {
		if strings.EqualFold(c.Code, code) {
			return ErrDuplicateCode
		}
	}
	return nil
}

// CheckEligibility decides whether c may be applied to a cart whose current
// post-discount total is total. Only percentage coupons have a minimum.
func CheckEligibility(c Coupon, total int64) error {
	if c.DiscountType == DiscountPercentage && total < MinPercentageTotal {
		return ErrBelowMinimum
	}
	return nil
}

// IsStillValid reports whether the selected coupon still exists in catalog.
// A nil selection is trivially valid.
func IsStillValid(selected *Coupon, catalog []Coupon) bool {
	if selected == nil {
		return true
	}
	for _, c := range catalog {
		if strings.EqualFold(c.Code, selected.Code) {
			return true
		}
	}
	return false
}
