package redis

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/kart-pricing/internal/domain/order"
)

var _ order.Repository = (*OrderLog)(nil)

// OrderLog appends completed orders to a Redis list.
type OrderLog struct {
	client *goredis.Client
	key    string
}

// NewOrderLog returns an OrderLog under prefix.
func NewOrderLog(client *goredis.Client, prefix string) *OrderLog {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &OrderLog{client: client, key: prefix + ":orders"}
}

// Create appends o to the log.
func (l *OrderLog) Create(ctx context.Context, o *order.Order) error {
	data, err := json.Marshal(orderRecord{
		ID:                  o.ID,
		Items:               o.Items,
		TotalBeforeDiscount: o.TotalBeforeDiscount,
		TotalAfterDiscount:  o.TotalAfterDiscount,
		CouponCode:          o.CouponCode,
		CreatedAt:           o.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshal order")
	}
	if err := l.client.RPush(ctx, l.key, data).Err(); err != nil {
		return errors.Wrapf(err, "append order %q", o.ID)
	}
	return nil
}
