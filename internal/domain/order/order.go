package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Order is a completed checkout. Items and totals are copied from the cart at
// completion time.
type Order struct {
	ID                  string
	Items               []Item
	TotalBeforeDiscount int64
	TotalAfterDiscount  int64
	CouponCode          string
	CreatedAt           time.Time
}

// Item is a single line of an order.
type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
}

// IDGenerator produces a human-readable unique order reference.
type IDGenerator func() string

// NewID returns an id of the form ORD-<unix millis>-<suffix>.
func NewID() string {
	return newID(time.Now(), uuid.New())
}

func newID(now time.Time, u uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:6])
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}
