package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

const recordWebhookEventSQL = `INSERT INTO processed_webhook_events (order_number, transaction_id, status, applied)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (order_number, transaction_id, status) DO NOTHING`

var _ payment.Ledger = (*WebhookLedger)(nil)

// WebhookLedger stores processed gateway events. The primary key makes a
// redelivered event a no-op insert.
type WebhookLedger struct {
	store
}

func NewWebhookLedger(pool *pgxpool.Pool) *WebhookLedger {
	return &WebhookLedger{store{pool: pool}}
}

func (l *WebhookLedger) Record(ctx context.Context, key payment.EventKey, applied bool) (bool, error) {
	tag, err := l.q(ctx).Exec(ctx, recordWebhookEventSQL, key.OrderNumber, key.TransactionID, key.Status, applied)
	if err != nil {
		return false, errors.Wrapf(err, "record webhook event for %q", key.OrderNumber)
	}
	return tag.RowsAffected() == 1, nil
}
