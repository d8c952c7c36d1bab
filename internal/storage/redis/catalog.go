package redis

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/product"
)

var (
	_ product.Repository = (*Catalog)(nil)
	_ coupon.Repository  = (*CouponCatalog)(nil)
)

// Catalog keeps the product list under a single key. When the key is missing
// or holds malformed data the default catalog is served.
type Catalog struct {
	client *goredis.Client
	prefix string
}

// NewCatalog returns a Catalog under prefix.
func NewCatalog(client *goredis.Client, prefix string) *Catalog {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Catalog{client: client, prefix: prefix}
}

func (c *Catalog) key() string { return c.prefix + ":products" }

// Coupons returns the coupon side of the catalog.
func (c *Catalog) Coupons() *CouponCatalog {
	return &CouponCatalog{client: c.client, key: c.prefix + ":coupons"}
}

// List returns every product.
func (c *Catalog) List(ctx context.Context) ([]product.Product, error) {
	return listProducts(ctx, c.client, c.key())
}

// GetByID returns the product with the given id or product.ErrNotFound.
func (c *Catalog) GetByID(ctx context.Context, id string) (*product.Product, error) {
	products, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := product.Find(products, id)
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// SaveProducts replaces the stored product list. An empty list deletes the
// key, so the defaults are served again.
func (c *Catalog) SaveProducts(ctx context.Context, products []product.Product) error {
	records := make([]productRecord, 0, len(products))
	for _, p := range products {
		records = append(records, toProductRecord(p))
	}
	if err := putJSON(ctx, c.client, c.key(), records, len(records) == 0, 0); err != nil {
		return errors.Wrap(err, "save products")
	}
	return nil
}

func listProducts(ctx context.Context, client kv, key string) ([]product.Product, error) {
	var records []productRecord
	found, err := getJSON(ctx, client, key, &records)
	if err != nil && !isMalformed(err) {
		return nil, errors.Wrap(err, "list products")
	}
	if !found || len(records) == 0 {
		return product.Defaults(), nil
	}

	products := make([]product.Product, 0, len(records))
	for _, r := range records {
		if err == nil && !r.valid() {
			err = errors.Errorf("invalid product %q", r.ID)
		}
		products = append(products, r.product())
	}
	if err != nil {
		zctx.From(ctx).Warn("Serving default products", zap.String("key", key), zap.Error(err))
		return product.Defaults(), nil
	}
	return products, nil
}

// CouponCatalog keeps the coupon list under a single key. A missing key or
// malformed data serves the default coupons. An empty list is stored as
// such, so deleting every coupon leaves the catalog empty.
type CouponCatalog struct {
	client *goredis.Client
	key    string
}

// List returns every coupon.
func (c *CouponCatalog) List(ctx context.Context) ([]coupon.Coupon, error) {
	return listCoupons(ctx, c.client, c.key)
}

// FindByCode returns the coupon with the given code, compared
// case-insensitively, or coupon.ErrNotFound.
func (c *CouponCatalog) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	coupons, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, cp := range coupons {
		if strings.EqualFold(cp.Code, code) {
			return &cp, nil
		}
	}
	return nil, coupon.ErrNotFound
}

// Create appends cp. It returns coupon.ErrDuplicateCode when the code is
// taken.
func (c *CouponCatalog) Create(ctx context.Context, cp coupon.Coupon) error {
	return update(ctx, c.client, c.key, func(tx *goredis.Tx) error {
		coupons, err := listCoupons(ctx, tx, c.key)
		if err != nil {
			return err
		}
		if err := coupon.CheckCodeAvailable(cp.Code, coupons); err != nil {
			return err
		}
		coupons = append(coupons, cp)
		return c.write(ctx, tx, coupons)
	})
}

// Delete removes the coupon with the given code or returns
// coupon.ErrNotFound.
func (c *CouponCatalog) Delete(ctx context.Context, code string) error {
	return update(ctx, c.client, c.key, func(tx *goredis.Tx) error {
		coupons, err := listCoupons(ctx, tx, c.key)
		if err != nil {
			return err
		}
		rest := slices.DeleteFunc(coupons, func(cp coupon.Coupon) bool {
			return strings.EqualFold(cp.Code, code)
		})
		if len(rest) == len(coupons) {
			return coupon.ErrNotFound
		}
		return c.write(ctx, tx, rest)
	})
}

// SaveCoupons replaces the stored coupon list. An empty list is kept as an
// empty catalog.
func (c *CouponCatalog) SaveCoupons(ctx context.Context, coupons []coupon.Coupon) error {
	return c.write(ctx, c.client, coupons)
}

func (c *CouponCatalog) write(ctx context.Context, client kv, coupons []coupon.Coupon) error {
	records := make([]couponRecord, 0, len(coupons))
	for _, cp := range coupons {
		records = append(records, toCouponRecord(cp))
	}
	var err error
	if tx, ok := client.(*goredis.Tx); ok {
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return putJSON(ctx, pipe, c.key, records, false, 0)
		})
	} else {
		err = putJSON(ctx, client, c.key, records, false, 0)
	}
	if err != nil {
		return errors.Wrap(err, "save coupons")
	}
	return nil
}

func listCoupons(ctx context.Context, client kv, key string) ([]coupon.Coupon, error) {
	var records []couponRecord
	found, err := getJSON(ctx, client, key, &records)
	if err != nil && !isMalformed(err) {
		return nil, errors.Wrap(err, "list coupons")
	}
	if !found {
		return coupon.Defaults(), nil
	}

	coupons := make([]coupon.Coupon, 0, len(records))
	for _, r := range records {
		if err == nil && !r.valid() {
			err = errors.Errorf("invalid coupon %q", r.Code)
		}
		coupons = append(coupons, r.coupon())
	}
	if err != nil {
		zctx.From(ctx).Warn("Serving default coupons", zap.String("key", key), zap.Error(err))
		return coupon.Defaults(), nil
	}
	return coupons, nil
}

func isMalformed(err error) bool {
	var m *MalformedError
	return errors.As(err, &m)
}
