package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/promo"
)

// rule is the discount a campaign code grants.
type rule struct {
	discountType promo.DiscountType
	value        decimal.Decimal
	currency     money.Currency
	minItems     int
	description  string
}

// campaignRules maps code prefixes to their campaign. Codes matching no
// prefix get defaultRule.
var campaignRules = []struct {
	prefix string
	rule   rule
}{
	{"NEWYEAR", rule{promo.DiscountPercentage, decimal.NewFromInt(15), money.USD, 2, "Khmer New Year: 15% off 2 items or more"}},
	{"PCHUM", rule{promo.DiscountPercentage, decimal.NewFromInt(12), money.USD, 0, "Pchum Ben: 12% off"}},
	{"WATER", rule{promo.DiscountFixed, decimal.NewFromInt(3), money.USD, 0, "Water Festival: $3 off"}},
	{"RIEL", rule{promo.DiscountFixed, decimal.NewFromInt(10000), money.KHR, 0, "10,000 riel off"}},
}

var defaultRule = rule{promo.DiscountPercentage, decimal.NewFromInt(10), money.USD, 0, "Partner promo: 10% off"}

func ruleFor(code string) rule {
	for _, c := range campaignRules {
		if strings.HasPrefix(code, c.prefix) {
			return c.rule
		}
	}
	return defaultRule
}

// writePromos upserts codes in batches of chunk. Usage counters of existing
// codes are preserved.
func writePromos(ctx context.Context, pool *pgxpool.Pool, codes []string, chunk int) error {
	if chunk <= 0 {
		chunk = 500
	}
	slog.Info("writing promos", slog.Int("count", len(codes)))

	for start := 0; start < len(codes); start += chunk {
		end := min(start+chunk, len(codes))
		batch := &pgx.Batch{}
		for _, code := range codes[start:end] {
			r := ruleFor(code)
			batch.Queue(`INSERT INTO promo_codes (code, discount_type, value, currency, min_items, description, active)
				VALUES ($1, $2, $3, $4, $5, $6, TRUE)
				ON CONFLICT (code) DO UPDATE SET discount_type = EXCLUDED.discount_type,
					value = EXCLUDED.value, currency = EXCLUDED.currency,
					min_items = EXCLUDED.min_items, description = EXCLUDED.description, active = TRUE`,
				code, string(r.discountType), r.value, string(r.currency), r.minItems, r.description,
			)
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "upsert codes %d-%d", start+1, end)
		}
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(codes)))
	}
	return nil
}
