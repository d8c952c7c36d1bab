package redis

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-pricing/internal/domain/cart"
	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/order"
	"github.com/xenking/kart-pricing/internal/domain/product"
)

type tierRecord struct {
	MinQuantity int             `json:"minQuantity"`
	Rate        decimal.Decimal `json:"rate"`
}

type productRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Discounts []tierRecord    `json:"discounts"`
}

func toProductRecord(p product.Product) productRecord {
	r := productRecord{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock}
	for _, t := range p.Discounts {
		r.Discounts = append(r.Discounts, tierRecord{MinQuantity: t.MinQuantity, Rate: t.Rate})
	}
	return r
}

func (r productRecord) valid() bool {
	return r.ID != "" && r.Stock >= 0
}

func (r productRecord) product() product.Product {
	p := product.Product{ID: r.ID, Name: r.Name, Price: r.Price, Stock: r.Stock}
	for _, t := range r.Discounts {
		p.Discounts = append(p.Discounts, product.DiscountTier{MinQuantity: t.MinQuantity, Rate: t.Rate})
	}
	return p
}

type couponRecord struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	DiscountType  string          `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
}

func toCouponRecord(c coupon.Coupon) couponRecord {
	return couponRecord{
		Code:          c.Code,
		Name:          c.Name,
		DiscountType:  string(c.DiscountType),
		DiscountValue: c.DiscountValue,
	}
}

func (r couponRecord) valid() bool {
	t := coupon.DiscountType(r.DiscountType)
	return r.Code != "" && (t == coupon.DiscountAmount || t == coupon.DiscountPercentage)
}

func (r couponRecord) coupon() coupon.Coupon {
	return coupon.Coupon{
		Code:          r.Code,
		Name:          r.Name,
		DiscountType:  coupon.DiscountType(r.DiscountType),
		DiscountValue: r.DiscountValue,
	}
}

type lineRecord struct {
	Product  productRecord `json:"product"`
	Quantity int           `json:"quantity"`
}

type orderRecord struct {
	ID                  string       `json:"id"`
	Items               []order.Item `json:"items"`
	TotalBeforeDiscount int64        `json:"totalBeforeDiscount"`
	TotalAfterDiscount  int64        `json:"totalAfterDiscount"`
	CouponCode          string       `json:"couponCode,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
}

func toLineRecords(c cart.Cart) []lineRecord {
	out := make([]lineRecord, 0, len(c.Lines))
	for _, l := range c.Lines {
		out = append(out, lineRecord{Product: toProductRecord(l.Product), Quantity: l.Quantity})
	}
	return out
}
