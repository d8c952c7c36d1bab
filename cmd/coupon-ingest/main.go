package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/storage/postgres"
	redisstore "github.com/xenking/kart-pricing/internal/storage/redis"
)

func main() {
	var (
		dataDir     string
		backend     string
		databaseURL string
		redisURL    string
		prefix      string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz coupon files")
	flag.StringVar(&backend, "backend", "postgres", "catalog backend: postgres or redis")
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

	if err := run(ctx, dataDir, backend, databaseURL, redisURL, prefix); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, dataDir, backend, databaseURL, redisURL, prefix string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list coupon files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz files in %s", dataDir)
	}

	var repo coupon.Repository
	switch backend {
	case "postgres":
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		repo = postgres.NewCouponRepository(pool)
	case "redis":
		if redisURL == "" {
			return errors.New("redis URL is required: set --redis-url or REDIS_URL")
		}
		client, err := redisstore.NewClient(ctx, redisURL)
		if err != nil {
			return errors.Wrap(err, "connect to redis")
		}
		defer func() { _ = client.Close() }()
		repo = redisstore.NewCatalog(client, prefix).Coupons()
	default:
		return errors.Errorf("unknown backend %q", backend)
	}

	ing, err := newIngester(ctx, repo, slog.Default())
	if err != nil {
		return err
	}
	stats, err := ing.run(ctx, files)
	if err != nil {
		return err
	}

	slog.Info("coupon ingest completed",
		slog.Int("files", len(files)),
		slog.Int64("created", stats.Created),
		slog.Int64("duplicates", stats.Duplicates),
		slog.Int64("clamped", stats.Clamped),
		slog.Int64("invalid", stats.Invalid),
	)
	return nil
}
