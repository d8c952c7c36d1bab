package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/outcome"
)

// SelectionStore keeps the coupon selected by each session and the notices
// queued for its next request. Both live beside the cart key, never inside
// it, and expire after ttl like the cart.
type SelectionStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewSelectionStore returns a SelectionStore under prefix. A zero ttl keeps
// entries forever.
func NewSelectionStore(client *goredis.Client, prefix string, ttl time.Duration) *SelectionStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SelectionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *SelectionStore) couponKey(sessionID string) string {
	return sessionKey(s.prefix, sessionID, "coupon")
}

func (s *SelectionStore) noticesKey(sessionID string) string {
	return sessionKey(s.prefix, sessionID, "notices")
}

// Selected returns the coupon selected by sessionID, or nil.
func (s *SelectionStore) Selected(ctx context.Context, sessionID string) (*coupon.Coupon, error) {
	return s.selected(ctx, s.client, s.couponKey(sessionID))
}

func (s *SelectionStore) selected(ctx context.Context, client kv, key string) (*coupon.Coupon, error) {
	var rec couponRecord
	found, err := getJSON(ctx, client, key, &rec)
	switch {
	case isMalformed(err) || (found && !rec.valid()):
		zctx.From(ctx).Warn("Discarding malformed coupon selection", zap.String("key", key), zap.Error(err))
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "load selection")
	case !found:
		return nil, nil
	}
	c := rec.coupon()
	return &c, nil
}

// Select stores c as the selection of sessionID. A nil c clears it.
func (s *SelectionStore) Select(ctx context.Context, sessionID string, c *coupon.Coupon) error {
	var rec couponRecord
	if c != nil {
		rec = toCouponRecord(*c)
	}
	if err := putJSON(ctx, s.client, s.couponKey(sessionID), rec, c == nil, s.ttl); err != nil {
		return errors.Wrap(err, "save selection")
	}
	return nil
}

// Revoke clears every selection of code, compared case-insensitively, and
// returns the cleared coupons by session id.
func (s *SelectionStore) Revoke(ctx context.Context, code string) (map[string]coupon.Coupon, error) {
	head, tail := s.prefix+":session:", ":coupon"
	revoked := make(map[string]coupon.Coupon)

	iter := s.client.Scan(ctx, 0, head+"*"+tail, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		err := update(ctx, s.client, key, func(tx *goredis.Tx) error {
			c, err := s.selected(ctx, tx, key)
			if err != nil || c == nil || !strings.EqualFold(c.Code, code) {
				return err
			}
			if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				return pipe.Del(ctx, key).Err()
			}); err != nil {
				return err
			}
			revoked[strings.TrimSuffix(strings.TrimPrefix(key, head), tail)] = *c
			return nil
		})
		if err != nil {
			return revoked, errors.Wrapf(err, "revoke %s", key)
		}
	}
	if err := iter.Err(); err != nil {
		return revoked, errors.Wrap(err, "scan selections")
	}
	return revoked, nil
}

type noticeRecord struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Notify queues res for the next request of sessionID.
func (s *SelectionStore) Notify(ctx context.Context, sessionID string, res outcome.Result) error {
	data, err := json.Marshal(noticeRecord{
		Kind:    string(res.Kind),
		Code:    string(res.Code()),
		Message: res.Message,
	})
	if err != nil {
		return errors.Wrap(err, "marshal notice")
	}

	key := s.noticesKey(sessionID)
	if _, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "queue notice")
	}
	return nil
}

// Notices returns the notices queued for sessionID without removing them.
// Entries that cannot be decoded are skipped but still count towards
// AckNotices.
func (s *SelectionStore) Notices(ctx context.Context, sessionID string) ([]outcome.Result, int, error) {
	key := s.noticesKey(sessionID)
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, 0, errors.Wrap(err, "list notices")
	}

	var out []outcome.Result
	for _, item := range raw {
		var rec noticeRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			zctx.From(ctx).Warn("Skipping malformed notice", zap.String("key", key), zap.Error(err))
			continue
		}
		out = append(out, rec.result())
	}
	return out, len(raw), nil
}

// AckNotices drops the first n notices of sessionID.
func (s *SelectionStore) AckNotices(ctx context.Context, sessionID string, n int) error {
	if n <= 0 {
		return nil
	}
	if err := s.client.LTrim(ctx, s.noticesKey(sessionID), int64(n), -1).Err(); err != nil {
		return errors.Wrap(err, "ack notices")
	}
	return nil
}

func (r noticeRecord) result() outcome.Result {
	kind := outcome.Kind(r.Kind)
	res := outcome.Result{
		Success: kind != outcome.KindError,
		Message: r.Message,
		Kind:    kind,
	}
	if r.Code != "" {
		res.Err = outcome.NewError(outcome.Code(r.Code), r.Message)
	}
	return res
}
