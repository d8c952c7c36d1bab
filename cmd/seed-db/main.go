package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/product"
	"github.com/xenking/kart-pricing/internal/storage/postgres"
	redisstore "github.com/xenking/kart-pricing/internal/storage/redis"
)

func main() {
	var (
		backend     string
		databaseURL string
		redisURL    string
		prefix      string
	)

	flag.StringVar(&backend, "backend", "postgres", "catalog backend to seed: postgres or redis")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisURL, "redis-url", "", "Redis URL (or REDIS_URL env)")
	flag.StringVar(&prefix, "prefix", redisstore.DefaultPrefix, "Redis key prefix")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var err error
	switch backend {
	case "postgres":
		err = seedPostgres(ctx, databaseURL)
	case "redis":
		err = seedRedis(ctx, redisURL, prefix)
	default:
		err = errors.Errorf("unknown backend %q", backend)
	}
	if err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully", slog.String("backend", backend))
}

func seedPostgres(ctx context.Context, databaseURL string) error {
	if databaseURL == "" {
		return errors.New("database URL is required: set --database-url or DATABASE_URL")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	for _, p := range product.Defaults() {
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("product seeded", slog.String("id", p.ID), slog.Int("tiers", len(p.Discounts)))
	}

	coupons := postgres.NewCouponRepository(pool)
	for _, c := range coupon.Defaults() {
		if err := coupons.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("coupon seeded", slog.String("code", c.Code))
	}
	return nil
}

func seedRedis(ctx context.Context, redisURL, prefix string) error {
	if redisURL == "" {
		return errors.New("redis URL is required: set --redis-url or REDIS_URL")
	}

	client, err := redisstore.NewClient(ctx, redisURL)
	if err != nil {
		return errors.Wrap(err, "connect to redis")
	}
	defer func() { _ = client.Close() }()

	catalog := redisstore.NewCatalog(client, prefix)
	if err := catalog.SaveProducts(ctx, product.Defaults()); err != nil {
		return errors.Wrap(err, "save products")
	}
	if err := catalog.Coupons().SaveCoupons(ctx, coupon.Defaults()); err != nil {
		return errors.Wrap(err, "save coupons")
	}
	slog.Info("catalog seeded",
		slog.Int("products", len(product.Defaults())),
		slog.Int("coupons", len(coupon.Defaults())),
	)
	return nil
}
