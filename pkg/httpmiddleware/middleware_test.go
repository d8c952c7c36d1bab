package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func TestWrap_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"internal error"}`, w.Body.String())
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when missing", "", false},
		{"kept when valid", "abc-123", true},
		{"replaced when not printable", "bad\x01id", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
			}
		})
	}
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	lg := zap.New(core)

	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		zctx.From(r.Context()).Info("Inside")
		_, _ = w.Write([]byte("hello"))
	}), InjectLogger(lg), LogRequests())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/fail", nil))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "Inside", entries[0].Message)

	ok := entries[1]
	assert.Equal(t, "Request", ok.Message)
	assert.Equal(t, int64(http.StatusOK), ok.ContextMap()["status"])
	assert.Equal(t, int64(5), ok.ContextMap()["bytes"])

	fail := entries[2]
	assert.Equal(t, zap.ErrorLevel, fail.Level)
	assert.Equal(t, int64(http.StatusBadGateway), fail.ContextMap()["status"])
}

func TestCORS(t *testing.T) {
	cfg := CORSConfig{
		AllowOrigins:  []string{"https://shop.example"},
		AllowHeaders:  []string{"Content-Type", "X-Session-ID"},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        600,
	}
	h := CORS(cfg)(okHandler())

	t.Run("preflight allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
		req.Header.Set("Origin", "https://shop.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Content-Type, X-Session-ID", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("preflight denied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
		req.Header.Set("Origin", "https://evil.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("simple request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		req.Header.Set("Origin", "https://SHOP.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, "ok", w.Body.String())
		assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, RequestIDHeader, w.Header().Get("Access-Control-Expose-Headers"))
	})

	t.Run("wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://any.example")
		w := httptest.NewRecorder()
		CORS(CORSConfig{})(okHandler()).ServeHTTP(w, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

type limiterFunc func(ctx context.Context, key string) (Decision, error)

func (f limiterFunc) Allow(ctx context.Context, key string) (Decision, error) { return f(ctx, key) }

// countingLimiter allows limit requests per key.
func countingLimiter(limit int, keys *[]string) Limiter {
	counts := map[string]int{}
	return limiterFunc(func(_ context.Context, key string) (Decision, error) {
		*keys = append(*keys, key)
		counts[key]++
		return Decision{
			Allowed:   counts[key] <= limit,
			Limit:     limit,
			Remaining: max(limit-counts[key], 0),
			ResetAt:   time.Now().Add(30 * time.Second),
		}, nil
	})
}

func TestRateLimit(t *testing.T) {
	var keys []string
	h := RateLimit(countingLimiter(2, &keys), RateLimitConfig{KeyHeader: "X-Session-ID"})(okHandler())

	do := func(addr, session string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr + ":5555"
		if session != "" {
			req.Header.Set("X-Session-ID", session)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	w := do("10.0.0.1", "s1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2", "s1").Code)

	w = do("10.0.0.3", "s1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "session limit applies across addresses")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do("10.0.0.4", "").Code)

	assert.Equal(t, []string{
		"ip:10.0.0.1", "X-Session-ID:s1",
		"ip:10.0.0.2", "X-Session-ID:s1",
		"ip:10.0.0.3", "X-Session-ID:s1",
		"ip:10.0.0.4",
	}, keys)
}

func TestRateLimit_RotatingHeadersShareClientLimit(t *testing.T) {
	tests := []struct {
		name   string
		cfg    RateLimitConfig
		header string
	}{
		{name: "session id", cfg: RateLimitConfig{KeyHeader: "X-Session-ID"}, header: "X-Session-ID"},
		{name: "forwarded for", cfg: RateLimitConfig{KeyHeader: "X-Session-ID"}, header: "X-Forwarded-For"},
		{name: "real ip", cfg: RateLimitConfig{}, header: "X-Real-IP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var keys []string
			h := RateLimit(countingLimiter(2, &keys), tt.cfg)(okHandler())

			codes := make([]int, 0, 3)
			for i := range 3 {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = "10.0.0.1:5555"
				req.Header.Set(tt.header, "192.0.2."+strconv.Itoa(i+1))
				w := httptest.NewRecorder()
				h.ServeHTTP(w, req)
				codes = append(codes, w.Code)
			}
			assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
		})
	}
}

func TestRateLimit_TrustProxy(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.9"}, want: "ip:203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "203.0.113.8"}, want: "ip:203.0.113.8"},
		{name: "remote addr", want: "ip:10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var keys []string
			h := RateLimit(countingLimiter(5, &keys), RateLimitConfig{TrustProxy: true})(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, []string{tt.want}, keys)
		})
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	l := limiterFunc(func(context.Context, string) (Decision, error) {
		return Decision{}, errors.New("redis down")
	})
	w := httptest.NewRecorder()
	RateLimit(l, RateLimitConfig{})(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestInstrument_PassesThrough(t *testing.T) {
	w := httptest.NewRecorder()
	Instrument("cart", noopTelemetry{})(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
