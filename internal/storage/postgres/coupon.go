package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
)

const (
	listCouponsSQL = `SELECT code, name, discount_type, discount_value FROM coupons
		ORDER BY created_at, code`

	getCouponByCodeSQL = `SELECT code, name, discount_type, discount_value FROM coupons
		WHERE UPPER(code) = UPPER($1)`

	createCouponSQL = `INSERT INTO coupons (code, name, discount_type, discount_value)
		VALUES ($1, $2, $3, $4)`

	upsertCouponSQL = `INSERT INTO coupons (code, name, discount_type, discount_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name,
			discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value`

	deleteCouponSQL = `DELETE FROM coupons WHERE UPPER(code) = UPPER($1)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// List returns every coupon in creation order. RunMigrations seeds the
// defaults once, so an empty table is an empty catalog.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// FindByCode looks up a coupon by its code (case-insensitive).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &c, nil
}

// Create inserts c. A code taken in any letter case yields
// coupon.ErrDuplicateCode.
func (r *CouponRepository) Create(ctx context.Context, c coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, createCouponSQL, c.Code, c.Name, string(c.DiscountType), c.DiscountValue)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrapf(err, "create coupon %q", c.Code)
	}
	return nil
}

// Upsert inserts or replaces c, keyed by its exact code.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL, c.Code, c.Name, string(c.DiscountType), c.DiscountValue)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.Code)
	}
	return nil
}

// Delete removes the coupon with the given code.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return errors.Wrapf(err, "delete coupon %q", code)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(&c.Code, &c.Name, &discountType, &c.DiscountValue)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
