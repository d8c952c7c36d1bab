// Package redis stores session state, the product and coupon catalog, and the
// order log in Redis.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "kart"

const maxTxRetries = 5

// sessionKey returns the key holding one part of a session's state. Parts
// live under separate keys so they expire and change independently.
func sessionKey(prefix, sessionID, part string) string {
	return prefix + ":session:" + sessionID + ":" + part
}

// NewClient parses a redis:// URL (or a bare host:port) and returns a client.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		opts = &goredis.Options{Addr: url}
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// kv is the subset of commands shared by clients, transactions and
// pipelines.
type kv interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// getJSON loads key into v. It reports found=false for a missing key.
func getJSON(ctx context.Context, client kv, key string, v any) (found bool, err error) {
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get %s", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, &MalformedError{Key: key, Err: err}
	}
	return true, nil
}

// putJSON writes v under key, or deletes key when empty is set.
func putJSON(ctx context.Context, pipe kv, key string, v any, empty bool, ttl time.Duration) error {
	if empty {
		return pipe.Del(ctx, key).Err()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	return pipe.Set(ctx, key, data, ttl).Err()
}

// MalformedError reports stored data that could not be decoded.
type MalformedError struct {
	Key string
	Err error
}

func (e *MalformedError) Error() string {
	return "malformed data under " + e.Key + ": " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error { return e.Err }

// update runs fn inside an optimistic WATCH transaction on key, retrying when
// another client changed key concurrently.
func update(ctx context.Context, client *goredis.Client, key string, fn func(tx *goredis.Tx) error) error {
	for range maxTxRetries {
		err := client.Watch(ctx, fn, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return errors.Errorf("update %s: too much contention", key)
}
