package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-pricing/internal/domain/outcome"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = outcome.NewError(outcome.CodeProductNotFound, "product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Stock     int
	Discounts []DiscountTier
}

// DiscountTier grants Rate off the line amount once the line quantity reaches
// MinQuantity. Tiers of a product are not sorted.
type DiscountTier struct {
	MinQuantity int
	Rate        decimal.Decimal
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}

// Find returns the product with the given id from a catalog snapshot.
func Find(products []Product, id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Defaults returns the initial catalog used when no stored catalog exists.
func Defaults() []Product {
	return []Product{
		{
			ID:    "p1",
			Name:  "Product 1",
			Price: decimal.NewFromInt(10000),
			Stock: 20,
			Discounts: []DiscountTier{
				{MinQuantity: 10, Rate: decimal.RequireFromString("0.1")},
				{MinQuantity: 20, Rate: decimal.RequireFromString("0.2")},
			},
		},
		{
			ID:    "p2",
			Name:  "Product 2",
			Price: decimal.NewFromInt(20000),
			Stock: 20,
			Discounts: []DiscountTier{
				{MinQuantity: 10, Rate: decimal.RequireFromString("0.15")},
			},
		},
		{
			ID:    "p3",
			Name:  "Product 3",
			Price: decimal.NewFromInt(30000),
			Stock: 20,
			Discounts: []DiscountTier{
				{MinQuantity: 10, Rate: decimal.RequireFromString("0.2")},
				{MinQuantity: 30, Rate: decimal.RequireFromString("0.25")},
			},
		},
	}
}
