package order

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/promo"
)

// memStore backs every fake repository. WithinTx serializes transactions and
// restores the previous state when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products map[string]product.Product
	carts    map[string][]cart.Line
	orders   map[string]Order
	promos   map[string]promo.Rule
	seq      int64

	createErr error
	clearErr  error
	beforeTx  func()
}

func newMemStore() *memStore {
	return &memStore{
		products: map[string]product.Product{},
		carts:    map[string][]cart.Line{},
		orders:   map[string]Order{},
		promos:   map[string]promo.Rule{},
	}
}

type memState struct {
	products map[string]product.Product
	carts    map[string][]cart.Line
	orders   map[string]Order
	promos   map[string]promo.Rule
	seq      int64
}

func (s *memStore) save() memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	carts := make(map[string][]cart.Line, len(s.carts))
	for k, v := range s.carts {
		carts[k] = slices.Clone(v)
	}
	return memState{
		products: maps.Clone(s.products),
		carts:    carts,
		orders:   maps.Clone(s.orders),
		promos:   maps.Clone(s.promos),
		seq:      s.seq,
	}
}

func (s *memStore) restore(st memState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products, s.carts, s.orders, s.promos = st.products, st.carts, st.orders, st.promos
	// Sequences are not transactional.
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.beforeTx != nil {
		s.beforeTx()
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	st := s.save()
	if err := fn(ctx); err != nil {
		s.restore(st)
		return err
	}
	return nil
}

// product.Repository

type fakeProducts struct{ *memStore }

func (f fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (f fakeProducts) ReserveStock(_ context.Context, id string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || !p.Available(qty) {
		return product.ErrInsufficientStock
	}
	p.Stock -= qty
	f.products[id] = p
	return nil
}

// cart.Repository

type fakeCarts struct{ *memStore }

func (f fakeCarts) GetCart(_ context.Context, userID string) ([]cart.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.carts[userID]), nil
}

func (f fakeCarts) ClearCart(_ context.Context, userID string, lines []cart.Line) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return 0, f.clearErr
	}
	var (
		kept    []cart.Line
		removed int64
	)
	for _, l := range f.carts[userID] {
		if slices.ContainsFunc(lines, func(s cart.Line) bool {
			return s.ProductID == l.ProductID && s.Size == l.Size && s.Color == l.Color && s.Quantity == l.Quantity
		}) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) == 0 {
		delete(f.carts, userID)
	} else {
		f.carts[userID] = kept
	}
	return removed, nil
}

// promo.Repository

type fakePromos struct{ *memStore }

func (f fakePromos) FindByCode(_ context.Context, code string) (*promo.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.promos[code]
	if !ok {
		return nil, promo.ErrInvalidCode
	}
	return &r, nil
}

func (f fakePromos) IncrementUses(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.promos[code]
	if r.MaxUses > 0 && r.Uses >= r.MaxUses {
		return promo.ErrUsageLimitReached
	}
	r.Uses++
	f.promos[code] = r
	return nil
}

// Sequence

type fakeSequence struct{ *memStore }

func (f fakeSequence) Next(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq, nil
}

// Repository

type fakeOrders struct{ *memStore }

var _ Repository = fakeOrders{}

func (f fakeOrders) Create(_ context.Context, o *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.orders {
		if existing.Number == o.Number {
			return errors.Errorf("duplicate order number %s", o.Number)
		}
	}
	f.orders[o.ID] = *o
	return nil
}

func (f fakeOrders) GetByID(_ context.Context, id string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (f fakeOrders) GetByIDForUpdate(ctx context.Context, id string) (*Order, error) {
	return f.GetByID(ctx, id)
}

func (f fakeOrders) GetByNumber(_ context.Context, number string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.Number == number {
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (f fakeOrders) GetByNumberForUpdate(ctx context.Context, number string) (*Order, error) {
	return f.GetByNumber(ctx, number)
}

func (f fakeOrders) GetByIdempotencyKey(_ context.Context, userID, key string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (f fakeOrders) ListByUser(_ context.Context, userID string) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (f fakeOrders) SetTransactionID(_ context.Context, id, txID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Payment.TransactionID != "" {
		return ErrTransactionIDSet
	}
	o.Payment.TransactionID = txID
	f.orders[id] = o
	return nil
}

func (f fakeOrders) UpdatePayment(_ context.Context, o *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.orders[o.ID]
	cur.PaymentStatus, cur.Status, cur.Payment.PaidAt, cur.UpdatedAt = o.PaymentStatus, o.Status, o.Payment.PaidAt, o.UpdatedAt
	f.orders[o.ID] = cur
	return nil
}

func (f fakeOrders) UpdateStatus(_ context.Context, o *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.orders[o.ID]
	cur.Status, cur.TrackingNumber, cur.Notes, cur.ActualDelivery, cur.UpdatedAt = o.Status, o.TrackingNumber, o.Notes, o.ActualDelivery, o.UpdatedAt
	f.orders[o.ID] = cur
	return nil
}

// Notifications

type recordingNotifications struct {
	mu        sync.Mutex
	confirmed []string
	status    []Status
}

func (r *recordingNotifications) OrderConfirmed(_ context.Context, o Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, o.Number)
}

func (r *recordingNotifications) OrderStatusChanged(_ context.Context, o Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, o.Status)
}
