// Command seed-db loads demo catalog data, promo codes, API keys and a sample
// cart into the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/repository"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	PriceUSD decimal.Decimal `json:"priceUsd"`
	Category string          `json:"category"`
	Stock    int             `json:"stock"`
	Image    struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
}

type options struct {
	databaseURL  string
	productsFile string
	shopperKey   string
	adminKey     string
	pepper       string
	rate         string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.shopperKey, "api-key", "", "shopper API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&opts.adminKey, "admin-key", "", "admin API key to seed (or KART_SEED_ADMIN_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.StringVar(&opts.rate, "khr-per-usd", "4100", "exchange rate used to derive riel prices")
	flag.Parse()

	envDefault(&opts.databaseURL, "DATABASE_URL")
	envDefault(&opts.shopperKey, "KART_SEED_API_KEY")
	envDefault(&opts.adminKey, "KART_SEED_ADMIN_KEY")
	envDefault(&opts.pepper, "KART_API_KEY_PEPPER")

	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.shopperKey == "" {
		slog.Error("API key is required: set --api-key or KART_SEED_API_KEY")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func envDefault(v *string, key string) {
	if *v == "" {
		*v = os.Getenv(key)
	}
}

func run(ctx context.Context, opts options) error {
	rate, err := decimal.NewFromString(opts.rate)
	if err != nil || !rate.IsPositive() {
		return errors.Errorf("invalid exchange rate %q", opts.rate)
	}

	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products, err := readProducts(opts.productsFile)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		queueProducts(batch, products, rate)
		queuePromos(batch)
		queueAPIKey(batch, "shopper", opts.shopperKey, opts.pepper, "demo-shopper", nil)
		if opts.adminKey != "" {
			queueAPIKey(batch, "admin", opts.adminKey, opts.pepper, "ops", []string{auth.ScopeAdmin})
		}
		queueCart(batch, "demo-shopper", products, rate)

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "apply seed batch")
		}
		slog.Info("seeded",
			slog.Int("products", len(products)),
			slog.Bool("admin_key", opts.adminKey != ""),
		)
		return nil
	})
}

func readProducts(path string) ([]productJSON, error) {
	slog.Info("reading products file", slog.String("path", path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}
	return products, nil
}

func khr(usd, rate decimal.Decimal) decimal.Decimal {
	return money.Convert(usd, money.USD, rate)
}

func queueProducts(batch *pgx.Batch, products []productJSON, rate decimal.Decimal) {
	for _, p := range products {
		batch.Queue(`INSERT INTO products (id, name, price_usd, price_khr, category,
				image_thumbnail, image_mobile, image_tablet, image_desktop, stock)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price_usd = EXCLUDED.price_usd,
				price_khr = EXCLUDED.price_khr, category = EXCLUDED.category,
				image_thumbnail = EXCLUDED.image_thumbnail, image_mobile = EXCLUDED.image_mobile,
				image_tablet = EXCLUDED.image_tablet, image_desktop = EXCLUDED.image_desktop,
				stock = EXCLUDED.stock, updated_at = now()`,
			p.ID, p.Name, p.PriceUSD, khr(p.PriceUSD, rate), p.Category,
			p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop, p.Stock,
		)
	}
}

func queuePromos(batch *pgx.Batch) {
	for _, p := range []struct {
		code, kind, value, currency, description string
		minItems, maxUses                        int
	}{
		{"WELCOME10", "percentage", "10", "USD", "10% off your first order", 0, 0},
		{"KHMERNEWYEAR", "percentage", "15", "USD", "Khmer New Year: 15% off 3 items or more", 3, 500},
		{"FIVEOFF", "fixed", "5", "USD", "$5 off any order", 0, 1000},
		{"RIEL20K", "fixed", "20000", "KHR", "20,000 riel off", 2, 0},
	} {
		batch.Queue(`INSERT INTO promo_codes (code, discount_type, value, currency, min_items, description, max_uses)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (code) DO UPDATE SET discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
				currency = EXCLUDED.currency, min_items = EXCLUDED.min_items,
				description = EXCLUDED.description, max_uses = EXCLUDED.max_uses`,
			p.code, p.kind, decimal.RequireFromString(p.value), p.currency, p.minItems, p.description, p.maxUses,
		)
	}
}

func queueAPIKey(batch *pgx.Batch, id, key, pepper, userID string, scopes []string) {
	if scopes == nil {
		scopes = []string{}
	}
	batch.Queue(`INSERT INTO api_keys (id, key_hash, name, user_id, scopes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, user_id = EXCLUDED.user_id,
			scopes = EXCLUDED.scopes, active = TRUE`,
		id, handler.HashKey(key, []byte(pepper)), id+" key", userID, scopes,
	)
}

// queueCart fills the demo shopper's cart with the first two products.
func queueCart(batch *pgx.Batch, userID string, products []productJSON, rate decimal.Decimal) {
	for i, p := range products {
		if i == 2 {
			break
		}
		batch.Queue(`INSERT INTO cart_items (user_id, product_id, quantity, price_usd, price_khr)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, product_id, size, color) DO UPDATE SET quantity = EXCLUDED.quantity`,
			userID, p.ID, i+1, p.PriceUSD, khr(p.PriceUSD, rate),
		)
	}
}
