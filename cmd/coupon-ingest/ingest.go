package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	maxLineBytes  = 4096
)

// Stats counts the outcome of an ingest run.
type Stats struct {
	Created    int64
	Duplicates int64
	Clamped    int64
	Invalid    int64
}

// ingester imports coupons from gzip files. Files are read concurrently; the
// bloom filter answers "definitely new" without a repository read, and the
// repository's duplicate check stays the final word.
type ingester struct {
	repo coupon.Repository
	lg   *slog.Logger

	mu   sync.Mutex
	seen *bloom.BloomFilter

	created    atomic.Int64
	duplicates atomic.Int64
	clamped    atomic.Int64
	invalid    atomic.Int64
}

func newIngester(ctx context.Context, repo coupon.Repository, lg *slog.Logger) (*ingester, error) {
	existing, err := repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list existing coupons")
	}

	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	for _, c := range existing {
		seen.AddString(normalize(c.Code))
	}
	lg.Info("bloom filter seeded", slog.Int("existing", len(existing)))

	return &ingester{repo: repo, lg: lg, seen: seen}, nil
}

func (in *ingester) run(ctx context.Context, files []string) (Stats, error) {
	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error {
			return in.ingestFile(ctx, f)
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return Stats{
		Created:    in.created.Load(),
		Duplicates: in.duplicates.Load(),
		Clamped:    in.clamped.Load(),
		Invalid:    in.invalid.Load(),
	}, nil
}

func (in *ingester) ingestFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, maxLineBytes), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		c, err := parseLine(line)
		if err != nil {
			in.invalid.Add(1)
			in.lg.Warn("skipping invalid line",
				slog.String("file", path),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := in.ingest(ctx, c); err != nil {
			return errors.Wrapf(err, "%s:%d", path, lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	in.lg.Info("file ingested", slog.String("file", path), slog.Int("lines", lineNo))
	return nil
}

func (in *ingester) ingest(ctx context.Context, c coupon.Coupon) error {
	corrected, err := coupon.ValidateDiscountValue(c.DiscountType, c.DiscountValue)
	if err != nil {
		in.clamped.Add(1)
		in.lg.Warn("discount value clamped",
			slog.String("code", c.Code),
			slog.String("value", c.DiscountValue.String()),
			slog.String("corrected", corrected.String()),
		)
		c.DiscountValue = corrected
	}

	in.mu.Lock()
	maybeSeen := in.seen.TestAndAddString(normalize(c.Code))
	in.mu.Unlock()

	if maybeSeen {
		switch _, err := in.repo.FindByCode(ctx, c.Code); {
		case err == nil:
			in.duplicates.Add(1)
			return nil
		case !errors.Is(err, coupon.ErrNotFound):
			return errors.Wrapf(err, "find coupon %s", c.Code)
		}
	}

	switch err := in.repo.Create(ctx, c); {
	case errors.Is(err, coupon.ErrDuplicateCode):
		in.duplicates.Add(1)
		return nil
	case err != nil:
		return errors.Wrapf(err, "create coupon %s", c.Code)
	}
	in.created.Add(1)
	return nil
}

// parseLine reads "CODE,Name,type,value". The name may itself contain
// commas.
func parseLine(line string) (coupon.Coupon, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 4 {
		return coupon.Coupon{}, errors.Errorf("expected 4 fields, got %d", len(parts))
	}
	n := len(parts)
	c := coupon.Coupon{
		Code:         strings.TrimSpace(parts[0]),
		Name:         strings.TrimSpace(strings.Join(parts[1:n-2], ",")),
		DiscountType: coupon.DiscountType(strings.ToLower(strings.TrimSpace(parts[n-2]))),
	}
	if c.Code == "" {
		return coupon.Coupon{}, errors.New("empty code")
	}
	if c.DiscountType != coupon.DiscountAmount && c.DiscountType != coupon.DiscountPercentage {
		return coupon.Coupon{}, errors.Errorf("unknown discount type %q", c.DiscountType)
	}
	v, err := decimal.NewFromString(strings.TrimSpace(parts[n-1]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse value")
	}
	c.DiscountValue = v
	return c, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
