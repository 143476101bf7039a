// Command seed-db loads a starter catalog, a set of demo coupons and a
// default API key into the database. It is idempotent: rows are upserted by
// their natural keys.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vendora/storefront/internal/handler"
	"github.com/vendora/storefront/internal/repository"
)

type seedProduct struct {
	id       string
	sellerID string
	name     string
	sku      string
	price    string
	stock    int
	status   string
	category string
}

var products = []seedProduct{
	{"prod-espresso-beans", "seller-roastery", "Espresso Beans 1kg", "COF-ESP-1KG", "12.50", 120, "active", "coffee"},
	{"prod-filter-beans", "seller-roastery", "Filter Roast Beans 1kg", "COF-FIL-1KG", "11.00", 80, "active", "coffee"},
	{"prod-hand-grinder", "seller-gearhub", "Hand Grinder", "GEA-GRN-001", "45.00", 25, "active", "equipment"},
	{"prod-gooseneck-kettle", "seller-gearhub", "Gooseneck Kettle", "GEA-KET-002", "39.90", 15, "active", "equipment"},
	{"prod-ceramic-dripper", "seller-gearhub", "Ceramic Dripper", "GEA-DRP-003", "18.75", 40, "active", "equipment"},
	{"prod-paper-filters", "seller-gearhub", "Paper Filters x100", "GEA-FLT-004", "4.20", 300, "active", "accessories"},
	{"prod-vintage-press", "seller-gearhub", "Vintage French Press", "GEA-PRS-005", "29.00", 0, "discontinued", "equipment"},
}

type seedCoupon struct {
	id      string
	code    string
	kind    string
	value   string
	minimum string
	maxDisc string
	userLim int
}

var coupons = []seedCoupon{
	{"coup-save10", "SAVE10", "percentage", "10", "0", "0", 0},
	{"coup-welcome5", "WELCOME5", "fixed_amount", "5", "20", "0", 1},
	{"coup-freeship", "FREESHIP", "free_shipping", "0", "30", "0", 0},
	{"coup-bogo", "BOGO", "buy_one_get_one", "0", "0", "0", 0},
}

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
		userID       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.StringVar(&userID, "user-id", "demo-user", "user the seeded API key acts as")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("STORE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or STORE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper, userID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper, userID string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper, userID); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	const upsert = `INSERT INTO products (id, seller_id, name, sku, price, stock, status, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			seller_id = EXCLUDED.seller_id, name = EXCLUDED.name, sku = EXCLUDED.sku,
			price = EXCLUDED.price, status = EXCLUDED.status, category = EXCLUDED.category`

	for _, p := range products {
		price, err := decimal.NewFromString(p.price)
		if err != nil {
			return errors.Wrapf(err, "parse price for product %s", p.id)
		}
		_, err = pool.Exec(ctx, upsert, p.id, p.sellerID, p.name, p.sku, price, p.stock, p.status, p.category)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.id)
		}
		slog.Info("upserted product", slog.String("id", p.id), slog.String("name", p.name))
	}
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("upserting coupons", slog.Int("count", len(coupons)))

	const upsert = `INSERT INTO coupons (id, code, kind, value, minimum_amount, max_discount,
			user_limit, starts_at, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind, value = EXCLUDED.value,
			minimum_amount = EXCLUDED.minimum_amount, max_discount = EXCLUDED.max_discount,
			user_limit = EXCLUDED.user_limit, enabled = TRUE`

	startsAt := time.Now().Add(-time.Hour)
	for _, c := range coupons {
		value := decimal.RequireFromString(c.value)
		minimum := decimal.RequireFromString(c.minimum)
		maxDisc := decimal.RequireFromString(c.maxDisc)

		_, err := pool.Exec(ctx, upsert, c.id, c.code, c.kind, value, minimum, maxDisc, c.userLim, startsAt)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}
		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("kind", c.kind))
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper, userID string) error {
	slog.Info("seeding default API key", slog.String("user_id", userID))

	const upsert = `INSERT INTO api_keys (id, key_hash, user_id, name, scopes, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (key_hash) DO UPDATE SET user_id = EXCLUDED.user_id, active = TRUE`

	keyHash := handler.HashKey([]byte(pepper), apiKey)
	scopes := []string{"orders", "cart", "catalog"}

	_, err := pool.Exec(ctx, upsert, "default", keyHash, userID, "Default demo key", scopes)
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	return nil
}
