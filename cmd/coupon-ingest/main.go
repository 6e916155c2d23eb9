// Command coupon-ingest loads promo codes from large gzipped partner feeds.
// A code is accepted only when it appears in at least two of the feed files;
// accepted codes are upserted as active coupons using a rule template taken
// from flags.
//
// The feeds are too large to hold in memory, so ingestion runs in two passes:
// pass 1 builds a bloom filter per file, pass 2 re-streams each file and
// keeps codes that other files' filters also contain.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ornara/commerce-api/internal/domain/coupon"
	"github.com/ornara/commerce-api/internal/storage/postgres"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
)

// fileResult holds candidate codes found in a single file during pass 2.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
		kind        string
		value       string
		minOrder    string
		maxDiscount string
		perUser     int
		validDays   int
		description string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&kind, "kind", "percentage", "discount kind for ingested codes: percentage or fixed")
	flag.StringVar(&value, "value", "10", "discount value for ingested codes")
	flag.StringVar(&minOrder, "min-order-value", "0", "minimum order value, 0 disables")
	flag.StringVar(&maxDiscount, "max-discount", "0", "discount cap for percentage coupons, 0 disables")
	flag.IntVar(&perUser, "per-user-limit", 1, "per-user redemption limit, 0 for unlimited")
	flag.IntVar(&validDays, "valid-days", 90, "days until ingested codes expire, 0 for no expiry")
	flag.StringVar(&description, "description", "Partner promo code", "coupon description")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	tmpl, err := buildTemplate(kind, value, minOrder, maxDiscount, perUser, validDays, description)
	if err != nil {
		slog.Error("invalid rule template", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, tmpl); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

// buildTemplate validates the flag values and assembles the coupon every
// ingested code will be stamped from.
func buildTemplate(kind, value, minOrder, maxDiscount string, perUser, validDays int, description string) (coupon.Coupon, error) {
	k := coupon.DiscountKind(kind)
	if k != coupon.KindPercentage && k != coupon.KindFixed {
		return coupon.Coupon{}, errors.Errorf("unknown discount kind %q", kind)
	}

	v, err := decimal.NewFromString(value)
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse value")
	}
	if v.IsNegative() || (k == coupon.KindPercentage && v.GreaterThan(decimal.NewFromInt(100))) {
		return coupon.Coupon{}, errors.Errorf("discount value %s out of range", value)
	}

	mo, err := decimal.NewFromString(minOrder)
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse min order value")
	}
	md, err := decimal.NewFromString(maxDiscount)
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse max discount")
	}

	tmpl := coupon.Coupon{
		Kind:          k,
		Value:         v,
		MinOrderValue: mo,
		MaxDiscount:   md,
		PerUserLimit:  perUser,
		Description:   description,
		Active:        true,
	}
	if validDays > 0 {
		until := time.Now().AddDate(0, 0, validDays)
		tmpl.ValidUntil = &until
	}
	return tmpl, nil
}

func run(ctx context.Context, dataDir, databaseURL string, tmpl coupon.Coupon) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Find candidate codes appearing in 2+ files.
	slog.Info("pass 2: finding candidate codes")

	validCodes, err := findValidCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(validCodes)))

	if len(validCodes) == 0 {
		slog.Info("no valid codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeCoupons(ctx, postgres.NewCouponRepository(pool), validCodes, tmpl); err != nil {
		return errors.Wrap(err, "write coupons to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) >= minCodeLen && len(code) <= maxCodeLen {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("file", idx+1),
						slog.Uint64("codes", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findValidCodes re-streams each file and checks codes against OTHER files' bloom filters.
// A code is valid if it appears in 2 or more files.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all files.
	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	// Keep codes appearing in 2+ files.
	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}

	return valid, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("codes", count),
				)
			}

			// Check if this code appears in any OTHER file's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					candidates[code] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeCoupons upserts all valid coupon codes using the rule template. Codes
// that fail normalization are skipped, not fatal; feeds contain junk lines.
func writeCoupons(ctx context.Context, repo coupon.Repository, codes []string, tmpl coupon.Coupon) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)))

	var written, skipped int
	for _, code := range codes {
		normalized, err := coupon.NormalizeCode(code)
		if err != nil {
			skipped++
			continue
		}

		c := tmpl
		c.Code = normalized
		if err := repo.Create(ctx, &c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", normalized)
		}

		written++
		if written%100 == 0 || written == len(codes) {
			slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(codes)))
		}
	}

	slog.Info("write complete", slog.Int("written", written), slog.Int("skipped", skipped))
	return nil
}
