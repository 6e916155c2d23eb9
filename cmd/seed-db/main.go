// Command seed-db loads the product catalog and a set of demo coupons into
// the database. Safe to run repeatedly; everything is upserted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ornara/commerce-api/internal/domain/coupon"
	"github.com/ornara/commerce-api/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Stock    int             `json:"stock"`
	Image    struct {
		Thumbnail string `json:"thumbnail"`
		Full      string `json:"full"`
	} `json:"image"`
}

const upsertProductSQL = `INSERT INTO products (id, name, price, category, image_thumbnail, image_full, stock, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	ON CONFLICT (id) DO UPDATE
	SET name = EXCLUDED.name,
		price = EXCLUDED.price,
		category = EXCLUDED.category,
		image_thumbnail = EXCLUDED.image_thumbnail,
		image_full = EXCLUDED.image_full,
		stock = EXCLUDED.stock,
		active = TRUE`

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	for _, p := range products {
		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.Category,
			p.Image.Thumbnail, p.Image.Full, p.Stock,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}

	slog.Info("products seeded", slog.Int("count", len(products)))
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewCouponRepository(pool)
	until := time.Now().AddDate(1, 0, 0)

	demo := []coupon.Coupon{
		{
			Code:          "WELCOME10",
			Kind:          coupon.KindPercentage,
			Value:         decimal.NewFromInt(10),
			MinOrderValue: decimal.NewFromInt(500),
			MaxDiscount:   decimal.NewFromInt(500),
			PerUserLimit:  1,
			ValidUntil:    &until,
			Description:   "10% off your first order over 500",
			Active:        true,
		},
		{
			Code:         "RINGS20",
			Kind:         coupon.KindPercentage,
			Value:        decimal.NewFromInt(20),
			MaxDiscount:  decimal.NewFromInt(1000),
			PerUserLimit: 2,
			Categories:   []string{"rings"},
			Description:  "20% off rings",
			Active:       true,
		},
		{
			Code:         "FLAT100",
			Kind:         coupon.KindFixed,
			Value:        decimal.NewFromInt(100),
			UsageLimit:   1000,
			PerUserLimit: 1,
			Description:  "100 off, first thousand orders",
			Active:       true,
		},
	}

	for i := range demo {
		if err := repo.Create(ctx, &demo[i]); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", demo[i].Code)
		}
	}

	slog.Info("coupons seeded", slog.Int("count", len(demo)))
	return nil
}
