package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Decision is the verdict of a Limiter for one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimitConfig selects the keys a request is counted under.
type RateLimitConfig struct {
	// KeyHeader additionally limits each value of this header, such as a
	// session id. Requests are always counted against the client IP as well,
	// so rotating the header does not lift the limit.
	KeyHeader string
	// TrustProxy takes the client IP from X-Forwarded-For or X-Real-IP.
	// Enable it only behind a proxy that overwrites those headers.
	TrustProxy bool
}

// RateLimit rejects requests over the limit of any of their keys with 429.
// Limiter errors let the request through.
func RateLimit(l Limiter, cfg RateLimitConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := decide(r.Context(), l, requestKeys(r, cfg))
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if !d.Allowed {
				retry := max(int(time.Until(d.ResetAt).Seconds()+0.5), 1)
				h.Set("Retry-After", strconv.Itoa(retry))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"success":false,"message":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// decide counts the request under every key and returns the first denial,
// or the decision with the fewest requests left.
func decide(ctx context.Context, l Limiter, keys []string) (Decision, error) {
	var out Decision
	for i, key := range keys {
		d, err := l.Allow(ctx, key)
		if err != nil {
			return Decision{}, err
		}
		if !d.Allowed {
			return d, nil
		}
		if i == 0 || d.Remaining < out.Remaining {
			out = d
		}
	}
	return out, nil
}

func requestKeys(r *http.Request, cfg RateLimitConfig) []string {
	keys := []string{"ip:" + clientIP(r, cfg.TrustProxy)}
	if cfg.KeyHeader != "" {
		if v := r.Header.Get(cfg.KeyHeader); v != "" {
			keys = append(keys, cfg.KeyHeader+":"+v)
		}
	}
	return keys
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
