package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/product"
)

func rate(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newProduct(id string, price int64, stock int, tiers ...product.DiscountTier) product.Product {
	return product.Product{
		ID:        id,
		Name:      "Product " + id,
		Price:     decimal.NewFromInt(price),
		Stock:     stock,
		Discounts: tiers,
	}
}

func tier(minQty int, r string) product.DiscountTier {
	return product.DiscountTier{MinQuantity: minQty, Rate: rate(r)}
}

func cartOf(lines ...Line) Cart {
	return Cart{Lines: lines}
}

func amountCoupon(code string, v int64) *coupon.Coupon {
	return &coupon.Coupon{Code: code, Name: code, DiscountType: coupon.DiscountAmount, DiscountValue: decimal.NewFromInt(v)}
}

func percentCoupon(code string, v int64) *coupon.Coupon {
	return &coupon.Coupon{Code: code, Name: code, DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(v)}
}
