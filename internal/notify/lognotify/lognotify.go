// Package lognotify is a notify.Notifier that writes notifications to the
// structured log. It is the default when no broker is configured.
package lognotify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/notify"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Notifier logs every notification at info level.
type Notifier struct{}

var _ notify.Notifier = Notifier{}

func (Notifier) NotifyOrderConfirmed(ctx context.Context, o order.Order, to notify.Recipient) notify.Result {
	zctx.From(ctx).Info("Order confirmed",
		zap.String("order", o.Number),
		zap.String("user", to.UserID),
		zap.String("email", to.Email),
		zap.Stringer("total", o.Totals.Total.In(o.Currency)),
		zap.String("currency", string(o.Currency)),
	)
	return notify.Sent
}

func (Notifier) NotifyOrderStatus(ctx context.Context, o order.Order, to notify.Recipient) notify.Result {
	zctx.From(ctx).Info("Order status update",
		zap.String("order", o.Number),
		zap.String("user", to.UserID),
		zap.String("status", string(o.Status)),
		zap.String("payment_status", string(o.PaymentStatus)),
	)
	return notify.Sent
}
