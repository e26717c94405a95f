package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/promo"
)

const (
	getPromoByCodeSQL = `SELECT code, discount_type, value, currency, min_items, description,
		valid_from, valid_until, max_uses, uses
		FROM promo_codes WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	incrementPromoUsesSQL = `UPDATE promo_codes SET uses = uses + 1
		WHERE UPPER(code) = UPPER($1) AND active = TRUE AND (max_uses = 0 OR uses < max_uses)`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	store
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{store{pool: pool}}
}

// FindByCode looks up an active promo code (case-insensitive).
// Returns promo.ErrInvalidCode when no matching active code exists.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Rule, error) {
	rows, err := r.q(ctx).Query(ctx, getPromoByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find promo code %q", code)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanPromoRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrInvalidCode
		}
		return nil, errors.Wrapf(err, "find promo code %q", code)
	}
	return &rule, nil
}

// IncrementUses consumes one use. The limit is enforced by the update itself,
// so two checkouts racing for the last use cannot both succeed.
func (r *PromoRepository) IncrementUses(ctx context.Context, code string) error {
	tag, err := r.q(ctx).Exec(ctx, incrementPromoUsesSQL, code)
	if err != nil {
		return errors.Wrapf(err, "increment uses for promo code %q", code)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrUsageLimitReached
	}
	return nil
}

func scanPromoRule(row pgx.CollectableRow) (promo.Rule, error) {
	var (
		rule         promo.Rule
		discountType string
		currency     string
	)
	err := row.Scan(
		&rule.Code, &discountType, &rule.Value, &currency, &rule.MinItems, &rule.Description,
		&rule.ValidFrom, &rule.ValidUntil, &rule.MaxUses, &rule.Uses,
	)
	rule.DiscountType = promo.DiscountType(discountType)
	rule.Currency = money.Currency(currency)
	return rule, err
}
