package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Gateway event statuses.
const (
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

// Event is a gateway callback about one payment.
type Event struct {
	TransactionID string
	OrderNumber   string
	Status        string
	// Hash is optional. When present it must sign the other three fields.
	Hash string
}

func (e Event) params() Params {
	return Params{
		"transaction_id": e.TransactionID,
		"order_id":       e.OrderNumber,
		"status":         e.Status,
	}
}

// ParseEvent decodes a webhook body of the form
// {"transaction_id": "...", "order_id": "...", "status": "..."}.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "transaction_id":
			ev.TransactionID, err = readString(d)
		case "order_id":
			ev.OrderNumber, err = readString(d)
		case "status":
			ev.Status, err = readString(d)
		case "hash":
			ev.Hash, err = readString(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return Event{}, &apperr.WebhookError{Code: apperr.WebhookMalformed, Reason: err.Error()}
	}
	return ev, nil
}

// EventKey identifies a delivery for deduplication.
type EventKey struct {
	OrderNumber   string
	TransactionID string
	Status        string
}

// Ledger remembers processed webhook events.
type Ledger interface {
	// Record stores key and reports whether it was seen for the first time.
	// applied tells whether the event changed the order.
	Record(ctx context.Context, key EventKey, applied bool) (first bool, err error)
}

// Outcome describes what a webhook did.
type Outcome struct {
	Order *order.Order
	// Applied is set when the order was updated.
	Applied bool
	// Duplicate is set for a redelivery of an already processed event.
	Duplicate bool
}

// Processor applies gateway callbacks to orders.
type Processor struct {
	tx        order.Transactor
	orders    order.Repository
	ledger    Ledger
	notify    order.Notifications
	secret    string
	processed metric.Int64Counter
	now       func() time.Time
}

// NewProcessor creates a Processor. secret verifies event hashes when the
// gateway sends one.
func NewProcessor(
	tx order.Transactor,
	orders order.Repository,
	ledger Ledger,
	notify order.Notifications,
	secret string,
	meter metric.Meter,
) (*Processor, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	processed, err := meter.Int64Counter("kart.webhooks.processed",
		metric.WithDescription("Payment webhooks by status and result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "webhooks counter")
	}
	return &Processor{
		tx:        tx,
		orders:    orders,
		ledger:    ledger,
		notify:    notify,
		secret:    secret,
		processed: processed,
		now:       time.Now,
	}, nil
}

// HandleWebhook applies ev to its order. Redelivered and stale events are
// acknowledged without changing the order. The order row is locked for the
// whole decision so concurrent deliveries for one order serialize.
func (p *Processor) HandleWebhook(ctx context.Context, ev Event) (Outcome, error) {
	ev.TransactionID = strings.TrimSpace(ev.TransactionID)
	ev.OrderNumber = strings.TrimSpace(ev.OrderNumber)
	if ev.TransactionID == "" || ev.OrderNumber == "" || ev.Status == "" {
		return Outcome{}, &apperr.WebhookError{Code: apperr.WebhookMalformed, Reason: "transaction_id, order_id and status are required"}
	}
	if ev.Hash != "" && !Verify(ev.params(), p.secret, ev.Hash) {
		return Outcome{}, &apperr.WebhookError{Code: apperr.WebhookBadSignature, Reason: "hash does not match"}
	}
	switch ev.Status {
	case EventCompleted, EventFailed, EventCancelled:
	default:
		return Outcome{}, &apperr.WebhookError{Code: apperr.WebhookUnknownStatus, Reason: "status " + ev.Status}
	}

	var out Outcome
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := p.orders.GetByNumberForUpdate(ctx, ev.OrderNumber)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return apperr.NotFound("order", ev.OrderNumber)
			}
			return errors.Wrap(err, "get order")
		}
		switch o.Payment.TransactionID {
		case ev.TransactionID:
		case "":
			return &apperr.UnavailableError{Reason: "transaction id for order " + o.Number + " is not recorded yet"}
		default:
			return &apperr.WebhookError{Code: apperr.WebhookTransactionMismatch, Reason: "transaction " + ev.TransactionID + " does not belong to order " + o.Number}
		}

		next, changed := p.transition(*o, ev.Status)
		first, err := p.ledger.Record(ctx, EventKey{
			OrderNumber:   o.Number,
			TransactionID: ev.TransactionID,
			Status:        ev.Status,
		}, changed)
		if err != nil {
			return errors.Wrap(err, "record webhook event")
		}
		out.Order = o
		if !first {
			out.Duplicate = true
			return nil
		}
		if !changed {
			return nil
		}
		if err := p.orders.UpdatePayment(ctx, &next); err != nil {
			return errors.Wrap(err, "update payment")
		}
		out.Order, out.Applied = &next, true
		return nil
	})
	p.record(ctx, ev.Status, out, err)
	if err != nil {
		return Outcome{}, err
	}

	lg := zctx.From(ctx).With(
		zap.String("order", ev.OrderNumber),
		zap.String("transaction_id", ev.TransactionID),
		zap.String("status", ev.Status),
	)
	switch {
	case out.Duplicate:
		lg.Info("Duplicate webhook acknowledged")
	case !out.Applied:
		lg.Info("Stale webhook ignored",
			zap.String("payment_status", string(out.Order.PaymentStatus)),
			zap.String("order_status", string(out.Order.Status)),
		)
	default:
		lg.Info("Webhook applied")
		p.notify.OrderStatusChanged(ctx, *out.Order)
	}
	return out, nil
}

// transition returns o after applying status, and whether anything changed.
// Settled payments are never reopened by a failure or cancellation, and a
// completion never moves an order that is cancelled or already fulfilled.
func (p *Processor) transition(o order.Order, status string) (order.Order, bool) {
	now := p.now().UTC()
	switch status {
	case EventCompleted:
		if o.PaymentStatus.Settled() {
			return o, false
		}
		o.PaymentStatus = order.PaymentCompleted
		o.Payment.PaidAt = &now
		if o.Status == order.StatusPending {
			o.Status = order.StatusProcessing
		}
	case EventFailed:
		if o.PaymentStatus.Settled() || o.PaymentStatus == order.PaymentFailed {
			return o, false
		}
		o.PaymentStatus = order.PaymentFailed
	case EventCancelled:
		if o.PaymentStatus.Settled() {
			return o, false
		}
		if o.PaymentStatus == order.PaymentFailed && o.Status == order.StatusCancelled {
			return o, false
		}
		o.PaymentStatus = order.PaymentFailed
		if !o.Status.Terminal() {
			o.Status = order.StatusCancelled
		}
	default:
		return o, false
	}
	o.UpdatedAt = now
	return o, true
}

func (p *Processor) record(ctx context.Context, status string, out Outcome, err error) {
	result := "applied"
	switch {
	case err != nil:
		result = "rejected"
	case out.Duplicate:
		result = "duplicate"
	case !out.Applied:
		result = "ignored"
	}
	p.processed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("result", result),
	))
}
