package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/product"
)

const (
	isSeededSQL   = `SELECT EXISTS (SELECT 1 FROM catalog_seeds WHERE name = $1)`
	markSeededSQL = `INSERT INTO catalog_seeds (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`

	hasProductsSQL = `SELECT EXISTS (SELECT 1 FROM products)`
	hasCouponsSQL  = `SELECT EXISTS (SELECT 1 FROM coupons)`
)

// seedDefaults fills an empty catalog with the default products and coupons
// once per database. Later runs leave the tables alone, so coupons an admin
// deleted stay deleted.
func seedDefaults(ctx context.Context, pool *pgxpool.Pool) error {
	products := NewProductRepository(pool)
	err := seedOnce(ctx, pool, "products", hasProductsSQL, func() error {
		for _, p := range product.Defaults() {
			if err := products.Upsert(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	coupons := NewCouponRepository(pool)
	return seedOnce(ctx, pool, "coupons", hasCouponsSQL, func() error {
		for _, c := range coupon.Defaults() {
			if err := coupons.Create(ctx, c); err != nil && !errors.Is(err, coupon.ErrDuplicateCode) {
				return err
			}
		}
		return nil
	})
}

// seedOnce runs seed when name was never seeded and the table probed by
// hasRowsSQL is empty, then marks name as seeded.
func seedOnce(ctx context.Context, pool *pgxpool.Pool, name, hasRowsSQL string, seed func() error) error {
	var seeded, hasRows bool
	if err := pool.QueryRow(ctx, isSeededSQL, name).Scan(&seeded); err != nil {
		return errors.Wrapf(err, "check %s seed", name)
	}
	if seeded {
		return nil
	}
	if err := pool.QueryRow(ctx, hasRowsSQL).Scan(&hasRows); err != nil {
		return errors.Wrapf(err, "count %s", name)
	}
	if !hasRows {
		if err := seed(); err != nil {
			return errors.Wrapf(err, "seed %s", name)
		}
	}
	if _, err := pool.Exec(ctx, markSeededSQL, name); err != nil {
		return errors.Wrapf(err, "mark %s seeded", name)
	}
	return nil
}
