package cart

import (
	"github.com/xenking/kart-pricing/internal/domain/coupon"
)

// CanApplyCoupon decides whether cp may replace current on c. The minimum is
// evaluated against the total under current, not under cp.
func CanApplyCoupon(cp coupon.Coupon, c Cart, current *coupon.Coupon) error {
	total := CalculateTotals(c, current).AfterDiscount
	return coupon.CheckEligibility(cp, total)
}
