package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

const (
	getCartSQL = `SELECT product_id, quantity, size, color, price_usd, price_khr, added_at
		FROM cart_items WHERE user_id = $1 ORDER BY added_at, product_id`

	clearCartSQL = `DELETE FROM cart_items c
		USING unnest($2::text[], $3::text[], $4::text[], $5::int[]) AS s (product_id, size, color, quantity)
		WHERE c.user_id = $1 AND c.product_id = s.product_id AND c.size = s.size
			AND c.color = s.color AND c.quantity = s.quantity`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	store
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{store{pool: pool}}
}

// GetCart returns the user's cart lines, oldest first. An empty cart is not
// an error.
func (r *CartRepository) GetCart(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.q(ctx).Query(ctx, getCartSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "get cart for %q", userID)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Quantity, &l.Size, &l.Color, &l.Price.USD, &l.Price.KHR, &l.AddedAt)
		return l, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get cart for %q", userID)
	}
	return lines, nil
}

// ClearCart deletes the checked-out lines of the user's cart and reports how
// many rows went away. Within a transaction the delete locks the rows, so only
// one of two concurrent checkouts sees the full count.
func (r *CartRepository) ClearCart(ctx context.Context, userID string, lines []cart.Line) (int64, error) {
	if len(lines) == 0 {
		return 0, nil
	}
	var (
		products = make([]string, len(lines))
		sizes    = make([]string, len(lines))
		colors   = make([]string, len(lines))
		qtys     = make([]int32, len(lines))
	)
	for i, l := range lines {
		products[i], sizes[i], colors[i], qtys[i] = l.ProductID, l.Size, l.Color, int32(l.Quantity)
	}
	tag, err := r.q(ctx).Exec(ctx, clearCartSQL, userID, products, sizes, colors, qtys)
	if err != nil {
		return 0, errors.Wrapf(err, "clear cart for %q", userID)
	}
	return tag.RowsAffected(), nil
}
