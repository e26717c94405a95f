package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

var _ order.Sequence = (*OrderSequence)(nil)

// OrderSequence hands out order numbers from a database sequence. Values
// consumed by rolled back transactions are not reused.
type OrderSequence struct {
	store
}

func NewOrderSequence(pool *pgxpool.Pool) *OrderSequence {
	return &OrderSequence{store{pool: pool}}
}

func (s *OrderSequence) Next(ctx context.Context) (int64, error) {
	var n int64
	if err := s.q(ctx).QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "next order number")
	}
	return n, nil
}
