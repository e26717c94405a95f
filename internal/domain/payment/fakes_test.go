package payment

import (
	"context"
	"maps"
	"sync"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

type memOrders struct {
	txMu sync.Mutex
	mu   sync.Mutex

	byID   map[string]order.Order
	ledger map[EventKey]bool

	updateErr error
}

func newMemOrders(orders ...order.Order) *memOrders {
	m := &memOrders{byID: map[string]order.Order{}, ledger: map[EventKey]bool{}}
	for _, o := range orders {
		m.byID[o.ID] = o
	}
	return m
}

func (m *memOrders) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	orders, ledger := maps.Clone(m.byID), maps.Clone(m.ledger)
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.byID, m.ledger = orders, ledger
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memOrders) get(id string) order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memOrders) Record(_ context.Context, key EventKey, applied bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ledger[key]; ok {
		return false, nil
	}
	m.ledger[key] = applied
	return true, nil
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[o.ID] = *o
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *memOrders) GetByIDForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return m.GetByID(ctx, id)
}

func (m *memOrders) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.Number == number {
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) GetByNumberForUpdate(ctx context.Context, number string) (*order.Order, error) {
	return m.GetByNumber(ctx, number)
}

func (m *memOrders) ListByUser(context.Context, string) ([]order.Order, error) {
	return nil, nil
}

func (m *memOrders) GetByIdempotencyKey(context.Context, string, string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (m *memOrders) SetTransactionID(_ context.Context, id, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Payment.TransactionID != "" {
		return order.ErrTransactionIDSet
	}
	o.Payment.TransactionID = txID
	m.byID[id] = o
	return nil
}

func (m *memOrders) UpdatePayment(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cur := m.byID[o.ID]
	cur.PaymentStatus, cur.Status, cur.Payment.PaidAt, cur.UpdatedAt = o.PaymentStatus, o.Status, o.Payment.PaidAt, o.UpdatedAt
	m.byID[o.ID] = cur
	return nil
}

func (m *memOrders) UpdateStatus(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.byID[o.ID]
	cur.Status = o.Status
	m.byID[o.ID] = cur
	return nil
}

type recordingNotifications struct {
	mu     sync.Mutex
	orders []string
}

func (r *recordingNotifications) OrderConfirmed(context.Context, order.Order) {}

func (r *recordingNotifications) OrderStatusChanged(_ context.Context, o order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o.Number+":"+string(o.PaymentStatus)+":"+string(o.Status))
}

func (r *recordingNotifications) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}
