package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/kart-pricing/pkg/httpmiddleware"
)

var _ httpmiddleware.Limiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window request counter shared by every server
// replica.
type RateLimiter struct {
	client *goredis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit requests per key in each window.
func NewRateLimiter(client *goredis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RateLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow counts one request for key.
func (l *RateLimiter) Allow(ctx context.Context, key string) (httpmiddleware.Decision, error) {
	now := l.now()
	start := now.Truncate(l.window)
	redisKey := l.prefix + ":ratelimit:" + key + ":" + start.Format("20060102T150405")

	var incr *goredis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return httpmiddleware.Decision{}, errors.Wrap(err, "count request")
	}

	count := int(incr.Val())
	return httpmiddleware.Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(l.limit-count, 0),
		ResetAt:   start.Add(l.window),
	}, nil
}
