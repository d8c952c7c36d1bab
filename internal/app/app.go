// Package app wires the cart server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-pricing/internal/domain/cart"
	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/order"
	"github.com/xenking/kart-pricing/internal/domain/product"
	"github.com/xenking/kart-pricing/internal/handler"
	"github.com/xenking/kart-pricing/internal/session"
	"github.com/xenking/kart-pricing/internal/storage/postgres"
	redisstore "github.com/xenking/kart-pricing/internal/storage/redis"
	"github.com/xenking/kart-pricing/pkg/health"
	"github.com/xenking/kart-pricing/pkg/httpmiddleware"
)

// stores are the repositories backing the session service.
type stores struct {
	products product.Repository
	coupons  coupon.Repository
	orders   order.Repository
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("catalog", cfg.Catalog.Backend),
	)

	rdb, err := redisstore.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = rdb.Close() }()

	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name:    "redis",
		Kind:    health.Readiness,
		Timeout: 2 * time.Second,
		Func:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	healthSvc.Register(health.Check{
		Name: "goroutines",
		Kind: health.Liveness,
		Func: health.GoroutineCountCheck(10000),
	})

	var st stores
	switch cfg.Catalog.Backend {
	case BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.Register(health.Check{
			Name:    "postgres",
			Kind:    health.Readiness,
			Timeout: 5 * time.Second,
			Func:    health.PingCheck("postgres", pool),
		})
		st = stores{
			products: postgres.NewProductRepository(pool),
			coupons:  postgres.NewCouponRepository(pool),
			orders:   postgres.NewOrderRepository(pool),
		}
	default:
		catalog := redisstore.NewCatalog(rdb, cfg.Redis.Prefix)
		st = stores{
			products: catalog,
			coupons:  catalog.Coupons(),
			orders:   redisstore.NewOrderLog(rdb, cfg.Redis.Prefix),
		}
	}

	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()

	svc, err := session.NewService(
		cart.NewEngine(order.NewID),
		st.products,
		st.coupons,
		redisstore.NewCartStore(rdb, cfg.Redis.Prefix, cfg.Redis.SessionTTL),
		redisstore.NewSelectionStore(rdb, cfg.Redis.Prefix, cfg.Redis.SessionTTL),
		st.orders,
		session.Options{
			MeterProvider:  m.MeterProvider(),
			TracerProvider: m.TracerProvider(),
		},
	)
	if err != nil {
		return errors.Wrap(err, "create session service")
	}

	router := handler.New(svc).Routes()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           httpmiddleware.Wrap(router, middlewares(ctx, cfg, rdb, m)...),
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	healthSvc.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func middlewares(ctx context.Context, cfg *Config, rdb *goredis.Client, m *app.Telemetry) []httpmiddleware.Middleware {
	mw := []httpmiddleware.Middleware{
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", handler.SessionHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument("cart-api", m),
		httpmiddleware.LogRequests(),
	}
	if cfg.RateLimit.Max > 0 {
		limiter := redisstore.NewRateLimiter(rdb, cfg.Redis.Prefix, cfg.RateLimit.Max, cfg.RateLimit.Window)
		mw = append(mw, httpmiddleware.RateLimit(limiter, httpmiddleware.RateLimitConfig{
			KeyHeader:  handler.SessionHeader,
			TrustProxy: cfg.RateLimit.TrustProxy,
		}))
	}
	return mw
}
