package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-pricing/internal/domain/cart"
)

// CartStore persists one cart per session.
type CartStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewCartStore returns a CartStore keeping carts for ttl after the last
// write. A zero ttl keeps them forever.
func NewCartStore(client *goredis.Client, prefix string, ttl time.Duration) *CartStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CartStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *CartStore) key(sessionID string) string {
	return sessionKey(s.prefix, sessionID, "cart")
}

// Load returns the cart of sessionID. Missing or malformed data yields an
// empty cart.
func (s *CartStore) Load(ctx context.Context, sessionID string) (cart.Cart, error) {
	return s.load(ctx, s.client, sessionID)
}

func (s *CartStore) load(ctx context.Context, client kv, sessionID string) (cart.Cart, error) {
	var records []lineRecord
	found, err := getJSON(ctx, client, s.key(sessionID), &records)
	var malformed *MalformedError
	switch {
	case errors.As(err, &malformed):
		zctx.From(ctx).Warn("Discarding malformed cart",
			zap.String("session", sessionID),
			zap.Error(err),
		)
		return cart.Cart{}, nil
	case err != nil:
		return cart.Cart{}, errors.Wrap(err, "load cart")
	case !found:
		return cart.Cart{}, nil
	}

	var c cart.Cart
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.Product.ID]; dup || !r.Product.valid() || r.Quantity <= 0 {
			zctx.From(ctx).Warn("Discarding malformed cart",
				zap.String("session", sessionID),
				zap.String("product", r.Product.ID),
			)
			return cart.Cart{}, nil
		}
		seen[r.Product.ID] = struct{}{}
		c.Lines = append(c.Lines, cart.Line{Product: r.Product.product(), Quantity: r.Quantity})
	}
	return c, nil
}

// Save stores c for sessionID. An empty cart deletes the key.
func (s *CartStore) Save(ctx context.Context, sessionID string, c cart.Cart) error {
	if err := putJSON(ctx, s.client, s.key(sessionID), toLineRecords(c), c.Empty(), s.ttl); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

// Update passes the cart of sessionID to fn and stores the cart fn returns.
// When another client writes the cart before the result is stored, fn runs
// again on the fresh cart. An error from fn aborts without writing.
func (s *CartStore) Update(ctx context.Context, sessionID string, fn func(c cart.Cart) (cart.Cart, error)) error {
	key := s.key(sessionID)
	err := update(ctx, s.client, key, func(tx *goredis.Tx) error {
		current, err := s.load(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next.Equal(current) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return putJSON(ctx, pipe, key, toLineRecords(next), next.Empty(), s.ttl)
		})
		return err
	})
	if err != nil {
		return errors.Wrap(err, "update cart")
	}
	return nil
}
