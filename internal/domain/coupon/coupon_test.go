package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCoupon_ApplyTo(t *testing.T) {
	tests := []struct {
		name   string
		coupon Coupon
		total  int64
		want   int64
	}{
		{
			name:   "amount 5000 off 50000",
			coupon: Coupon{Code: "A5000", DiscountType: DiscountAmount, DiscountValue: d("5000")},
			total:  50000,
			want:   45000,
		},
		{
			name:   "amount larger than total clamps to zero",
			coupon: Coupon{Code: "BIG", DiscountType: DiscountAmount, DiscountValue: d("90000")},
			total:  8000,
			want:   0,
		},
		{
			name:   "amount equal to total",
			coupon: Coupon{Code: "EQ", DiscountType: DiscountAmount, DiscountValue: d("8000")},
			total:  8000,
			want:   0,
		},
		{
			name:   "percentage 10",
			coupon: Coupon{Code: "P10", DiscountType: DiscountPercentage, DiscountValue: d("10")},
			total:  50000,
			want:   45000,
		},
		{
			name:   "percentage rounds half up",
			coupon: Coupon{Code: "P15", DiscountType: DiscountPercentage, DiscountValue: d("15")},
			total:  12345,
			// 12345 * 0.85 = 10493.25
			want: 10493,
		},
		{
			name:   "percentage exact half rounds up",
			coupon: Coupon{Code: "P50", DiscountType: DiscountPercentage, DiscountValue: d("50")},
			total:  10001,
			want:   5001,
		},
		{
			name:   "percentage 100 is free",
			coupon: Coupon{Code: "FREE", DiscountType: DiscountPercentage, DiscountValue: d("100")},
			total:  30000,
			want:   0,
		},
		{
			name:   "unknown type leaves total",
			coupon: Coupon{Code: "BOGUS", DiscountType: DiscountType("bogus"), DiscountValue: d("10")},
			total:  30000,
			want:   30000,
		},
		{
			name:   "empty cart",
			coupon: Coupon{Code: "A5000", DiscountType: DiscountAmount, DiscountValue: d("5000")},
			total:  0,
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coupon.ApplyTo(tt.total))
		})
	}
}

func TestDefaults(t *testing.T) {
	defaults := Defaults()
	for _, c := range defaults {
		_, err := ValidateDiscountValue(c.DiscountType, c.DiscountValue)
		assert.NoError(t, err, c.Code)
	}
	assert.True(t, IsStillValid(&defaults[0], defaults))
}
