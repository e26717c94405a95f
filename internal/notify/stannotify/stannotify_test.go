package stannotify

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/notify"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func TestNotifier_Publish(t *testing.T) {
	pub := &fakePublisher{}
	n := New(pub, "kart.orders")
	n.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	o := order.Order{
		Number:        "FF000001",
		Status:        order.StatusProcessing,
		PaymentStatus: order.PaymentCompleted,
		Currency:      money.USD,
		Totals:        order.Totals{Total: money.New(decimal.RequireFromString("25"), decimal.RequireFromString("102500"))},
	}
	res := n.NotifyOrderStatus(context.Background(), o, notify.Recipient{UserID: "u1", Email: "dara@example.com"})
	require.True(t, res.Success)
	assert.Equal(t, "kart.orders.status", pub.subject)

	fields := map[string]string{}
	require.NoError(t, jx.DecodeBytes(pub.data).Obj(func(d *jx.Decoder, key string) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		fields[key] = v
		return err
	}))
	assert.Equal(t, "order_status", fields["event"])
	assert.Equal(t, "FF000001", fields["order_number"])
	assert.Equal(t, "completed", fields["payment_status"])
	assert.Equal(t, "25", fields["total"])
	assert.Equal(t, "2025-06-15T12:00:00Z", fields["sent_at"])

	res = n.NotifyOrderConfirmed(context.Background(), o, notify.Recipient{})
	require.True(t, res.Success)
	assert.Equal(t, "kart.orders.confirmed", pub.subject)
}

func TestNotifier_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("stan: connection closed")}
	n := New(pub, "kart.orders")

	res := n.NotifyOrderConfirmed(context.Background(), order.Order{Number: "FF000001"}, notify.Recipient{})
	assert.False(t, res.Success)
	assert.ErrorContains(t, res.Err, "connection closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = n.NotifyOrderConfirmed(ctx, order.Order{Number: "FF000001"}, notify.Recipient{})
	assert.ErrorIs(t, res.Err, context.Canceled)
}
