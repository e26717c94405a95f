// Package stannotify publishes order notifications to NATS Streaming so a
// separate messaging service can deliver them over email or SMS.
package stannotify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	stan "github.com/nats-io/stan.go"

	"github.com/xenking/kart-checkout/internal/domain/notify"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Config locates the streaming cluster.
type Config struct {
	URL       string
	ClusterID string
	ClientID  string
	// Subject prefix; events go to <Subject>.confirmed and <Subject>.status.
	Subject string
}

// Publisher is the subset of stan.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notifier publishes one message per notification.
type Notifier struct {
	pub     Publisher
	subject string
	now     func() time.Time
}

var _ notify.Notifier = (*Notifier)(nil)

// New wraps an existing connection.
func New(pub Publisher, subject string) *Notifier {
	return &Notifier{pub: pub, subject: subject, now: time.Now}
}

// Connect dials the cluster. Close the returned connection on shutdown.
func Connect(cfg Config) (*Notifier, stan.Conn, error) {
	sc, err := stan.Connect(cfg.ClusterID, cfg.ClientID, stan.NatsURL(cfg.URL))
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to nats streaming")
	}
	return New(sc, cfg.Subject), sc, nil
}

func (n *Notifier) NotifyOrderConfirmed(ctx context.Context, o order.Order, to notify.Recipient) notify.Result {
	return n.publish(ctx, n.subject+".confirmed", "order_confirmed", o, to)
}

func (n *Notifier) NotifyOrderStatus(ctx context.Context, o order.Order, to notify.Recipient) notify.Result {
	return n.publish(ctx, n.subject+".status", "order_status", o, to)
}

func (n *Notifier) publish(ctx context.Context, subject, event string, o order.Order, to notify.Recipient) notify.Result {
	if err := ctx.Err(); err != nil {
		return notify.Failed(err)
	}
	if err := n.pub.Publish(subject, encode(event, o, to, n.now())); err != nil {
		return notify.Failed(errors.Wrapf(err, "publish %s", subject))
	}
	return notify.Sent
}

func encode(event string, o order.Order, to notify.Recipient, at time.Time) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("event", func(e *jx.Encoder) { e.Str(event) })
		e.Field("order_number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(string(o.Currency)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Totals.Total.In(o.Currency).String()) })
		e.Field("tracking_number", func(e *jx.Encoder) { e.Str(o.TrackingNumber) })
		e.Field("recipient", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("user_id", func(e *jx.Encoder) { e.Str(to.UserID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(to.Name) })
				e.Field("email", func(e *jx.Encoder) { e.Str(to.Email) })
				e.Field("phone", func(e *jx.Encoder) { e.Str(to.Phone) })
			})
		})
		e.Field("sent_at", func(e *jx.Encoder) { e.Str(at.UTC().Format(time.RFC3339)) })
	})
	return e.Bytes()
}
