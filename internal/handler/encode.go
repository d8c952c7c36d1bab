package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-pricing/internal/domain/cart"
	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/outcome"
	"github.com/xenking/kart-pricing/internal/domain/product"
	"github.com/xenking/kart-pricing/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

// decimalField writes d as a JSON number.
func decimalField(e *jx.Encoder, name string, d decimal.Decimal) {
	e.FieldStart(name)
	e.Raw([]byte(d.String()))
}

func encodeProductList(products []product.Product) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, p := range products {
		encodeProduct(&e, p)
	}
	e.ArrEnd()
	return e.Bytes()
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	decimalField(e, "price", p.Price)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("discounts")
	e.ArrStart()
	for _, t := range p.Discounts {
		e.ObjStart()
		e.FieldStart("minQuantity")
		e.Int(t.MinQuantity)
		decimalField(e, "rate", t.Rate)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeCouponList(coupons []coupon.Coupon) []byte {
	var e jx.Encoder
	encodeCoupons(&e, coupons)
	return e.Bytes()
}

func encodeCoupons(e *jx.Encoder, coupons []coupon.Coupon) {
	e.ArrStart()
	for _, c := range coupons {
		encodeCoupon(e, c)
	}
	e.ArrEnd()
}

func encodeCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("discountType")
	e.Str(string(c.DiscountType))
	decimalField(e, "discountValue", c.DiscountValue)
	e.ObjEnd()
}

// encodeResult writes the fields shared by every operation response. The
// object is left open.
func encodeResult(e *jx.Encoder, res outcome.Result) {
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(res.Success)
	e.FieldStart("message")
	e.Str(res.Message)
	e.FieldStart("kind")
	e.Str(string(res.Kind))
	if code := res.Code(); code != "" {
		e.FieldStart("code")
		e.Str(string(code))
	}
	var stockErr *cart.StockError
	if errors.As(res.Err, &stockErr) && stockErr.Code == outcome.CodeStockExceeded {
		e.FieldStart("max")
		e.Int(stockErr.Max)
	}
}

func encodeOutcome(out session.Outcome) []byte {
	var e jx.Encoder
	encodeResult(&e, out.Result)
	if out.OrderID != "" {
		e.FieldStart("orderId")
		e.Str(out.OrderID)
	}
	if len(out.Notices) > 0 {
		e.FieldStart("notices")
		e.ArrStart()
		for _, n := range out.Notices {
			encodeResult(&e, n)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.FieldStart("cart")
	encodeView(&e, out.View)
	e.ObjEnd()
	return e.Bytes()
}

func encodeView(e *jx.Encoder, v session.View) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range v.Lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.Line.Product.ID)
		e.FieldStart("name")
		e.Str(l.Line.Product.Name)
		decimalField(e, "price", l.Line.Product.Price)
		e.FieldStart("quantity")
		e.Int(l.Line.Quantity)
		decimalField(e, "discountRate", l.Rate)
		e.FieldStart("lineTotal")
		e.Int64(l.Total)
		e.FieldStart("remainingStock")
		e.Int(l.RemainingStock)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("totalBeforeDiscount")
	e.Int64(v.Totals.BeforeDiscount)
	e.FieldStart("totalAfterDiscount")
	e.Int64(v.Totals.AfterDiscount)
	e.FieldStart("savings")
	e.Int64(v.Totals.Savings())
	e.FieldStart("coupon")
	if v.Coupon == nil {
		e.Null()
	} else {
		encodeCoupon(e, *v.Coupon)
	}
	e.ObjEnd()
}

func encodeCouponOutcome(out session.CouponOutcome) []byte {
	var e jx.Encoder
	encodeResult(&e, out.Result)
	if out.Code() == outcome.CodeInvalidDiscountValue {
		decimalField(&e, "corrected", out.Coupon.DiscountValue)
	}
	if out.Success && out.Coupon.Code != "" {
		e.FieldStart("coupon")
		encodeCoupon(&e, out.Coupon)
	}
	e.FieldStart("coupons")
	encodeCoupons(&e, out.Coupons)
	e.ObjEnd()
	return e.Bytes()
}
