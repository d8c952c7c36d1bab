package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
)

type addItemRequest struct {
	ProductID string
}

type setQuantityRequest struct {
	Quantity int
}

type applyCouponRequest struct {
	Code string
}

// decodeBody walks the top-level object of the request body, calling field
// for every key. Unknown keys must be skipped by field.
func decodeBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	d := jx.Decode(body, 1024)
	if err := d.Obj(field); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

func decodeAddItem(w http.ResponseWriter, r *http.Request) (addItemRequest, error) {
	var req addItemRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "productId" {
			return d.Skip()
		}
		v, err := d.Str()
		req.ProductID = v
		return err
	})
	if err != nil {
		return req, err
	}
	if req.ProductID == "" {
		return req, errors.New("productId is required")
	}
	return req, nil
}

func decodeSetQuantity(w http.ResponseWriter, r *http.Request) (setQuantityRequest, error) {
	var (
		req  setQuantityRequest
		seen bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		req.Quantity, seen = v, true
		return err
	})
	if err != nil {
		return req, err
	}
	if !seen {
		return req, errors.New("quantity is required")
	}
	return req, nil
}

func decodeApplyCoupon(w http.ResponseWriter, r *http.Request) (applyCouponRequest, error) {
	var req applyCouponRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		v, err := d.Str()
		req.Code = strings.TrimSpace(v)
		return err
	})
	if err != nil {
		return req, err
	}
	if req.Code == "" {
		return req, errors.New("code is required")
	}
	return req, nil
}

func decodeCoupon(w http.ResponseWriter, r *http.Request) (coupon.Coupon, error) {
	var (
		c        coupon.Coupon
		hasValue bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "name":
			c.Name, err = d.Str()
		case "discountType":
			var t string
			t, err = d.Str()
			c.DiscountType = coupon.DiscountType(t)
		case "discountValue":
			c.DiscountValue, err = decodeDecimal(d)
			hasValue = err == nil
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return c, err
	}

	switch {
	case strings.TrimSpace(c.Code) == "":
		return c, errors.New("code is required")
	case c.DiscountType != coupon.DiscountAmount && c.DiscountType != coupon.DiscountPercentage:
		return c, errors.Errorf("discountType must be %q or %q", coupon.DiscountAmount, coupon.DiscountPercentage)
	case !hasValue:
		return c, errors.New("discountValue is required")
	}
	return c, nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		return decimal.Decimal{}, errors.New("discountValue must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "parse discountValue")
	}
	return v, nil
}
