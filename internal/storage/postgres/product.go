package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-pricing/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, stock FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, stock FROM products WHERE id = $1`

	listDiscountsSQL = `SELECT product_id, min_quantity, rate FROM product_discounts
		ORDER BY product_id, min_quantity`

	getDiscountsSQL = `SELECT product_id, min_quantity, rate FROM product_discounts
		WHERE product_id = $1 ORDER BY min_quantity`

	upsertProductSQL = `INSERT INTO products (id, name, price, stock) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock`

	deleteDiscountsSQL = `DELETE FROM product_discounts WHERE product_id = $1`

	insertDiscountSQL = `INSERT INTO product_discounts (product_id, min_quantity, rate) VALUES ($1, $2, $3)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products with their discount tiers, ordered by ID. An
// empty table serves the default catalog.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	if len(products) == 0 {
		return product.Defaults(), nil
	}

	rows, err = r.pool.Query(ctx, listDiscountsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list discounts")
	}
	tiers, err := pgx.CollectRows(rows, scanTier)
	if err != nil {
		return nil, errors.Wrap(err, "list discounts")
	}

	byProduct := make(map[string][]product.DiscountTier, len(products))
	for _, t := range tiers {
		byProduct[t.productID] = append(byProduct[t.productID], t.DiscountTier)
	}
	for i := range products {
		products[i].Discounts = byProduct[products[i].ID]
	}
	return products, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.defaultByID(ctx, id)
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	rows, err = r.pool.Query(ctx, getDiscountsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get discounts of %q", id)
	}
	tiers, err := pgx.CollectRows(rows, scanTier)
	if err != nil {
		return nil, errors.Wrapf(err, "get discounts of %q", id)
	}
	for _, t := range tiers {
		p.Discounts = append(p.Discounts, t.DiscountTier)
	}
	return &p, nil
}

// Upsert inserts or replaces p together with its discount tiers.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Stock); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteDiscountsSQL, p.ID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, t := range p.Discounts {
			batch.Queue(insertDiscountSQL, p.ID, t.MinQuantity, t.Rate)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

// defaultByID looks id up in the default catalog while the table is empty.
func (r *ProductRepository) defaultByID(ctx context.Context, id string) (*product.Product, error) {
	var hasRows bool
	if err := r.pool.QueryRow(ctx, hasProductsSQL).Scan(&hasRows); err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	if p, ok := product.Find(product.Defaults(), id); ok && !hasRows {
		return &p, nil
	}
	return nil, product.ErrNotFound
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	return p, err
}

type tierRow struct {
	productID string
	product.DiscountTier
}

func scanTier(row pgx.CollectableRow) (tierRow, error) {
	var t tierRow
	err := row.Scan(&t.productID, &t.MinQuantity, &t.Rate)
	return t, err
}
