package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/promo"
)

const orderColumns = `id, number, user_id, items, currency,
	subtotal_usd, subtotal_khr, shipping_usd, shipping_khr, tax_usd, tax_khr,
	discount_usd, discount_khr, total_usd, total_khr,
	status, payment_method, payment_status, transaction_id, payment_intent_id, paid_at,
	shipping_address, estimated_delivery, actual_delivery, tracking_number, notes,
	promo_code, promo_type, promo_value, idempotency_key, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)`

	getOrderByIDSQL              = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByIDForUpdateSQL     = getOrderByIDSQL + ` FOR UPDATE`
	getOrderByNumberSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`
	getOrderByNumberForUpdateSQL = getOrderByNumberSQL + ` FOR UPDATE`
	listOrdersByUserSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	getOrderByIdempotencyKeySQL  = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND idempotency_key = $2`

	setTransactionIDSQL = `UPDATE orders SET transaction_id = $2, updated_at = now()
		WHERE id = $1 AND transaction_id IS NULL`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	updatePaymentSQL = `UPDATE orders SET payment_status = $2, status = $3, paid_at = $4, updated_at = $5
		WHERE id = $1`

	updateStatusSQL = `UPDATE orders SET status = $2, tracking_number = $3, notes = $4,
		actual_delivery = $5, updated_at = $6
		WHERE id = $1`

	idempotencyIndex = "orders_user_idempotency_idx"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items and
// the shipping address are stored as JSONB.
type OrderRepository struct {
	store
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{store{pool: pool}}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal shipping address")
	}

	var (
		promoCode  *string
		promoType  *string
		promoValue decimal.NullDecimal
	)
	if p := o.Promo; p != nil {
		t := string(p.DiscountType)
		promoCode, promoType = &p.Code, &t
		promoValue = decimal.NewNullDecimal(p.Discount)
	}

	t := o.Totals
	_, err = r.q(ctx).Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, items, string(o.Currency),
		t.Subtotal.USD, t.Subtotal.KHR, t.Shipping.USD, t.Shipping.KHR, t.Tax.USD, t.Tax.KHR,
		t.Discount.USD, t.Discount.KHR, t.Total.USD, t.Total.KHR,
		string(o.Status), string(o.PaymentMethod), string(o.PaymentStatus),
		nullString(o.Payment.TransactionID), nullString(o.Payment.PaymentIntentID), o.Payment.PaidAt,
		address, nullTime(o.EstimatedDelivery), o.ActualDelivery, o.TrackingNumber, o.Notes,
		promoCode, promoType, promoValue, nullString(o.IdempotencyKey), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, idempotencyIndex) {
			return apperr.Conflict("order", "", "idempotency key already used")
		}
		return errors.Wrapf(err, "create order %q", o.Number)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getByID(ctx, getOrderByIDSQL, id)
}

// GetByIDForUpdate locks the row until the surrounding transaction ends.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.getByID(ctx, getOrderByIDForUpdateSQL, id)
}

func (r *OrderRepository) getByID(ctx context.Context, query, id string) (*order.Order, error) {
	// Anything that is not a UUID cannot match and would fail the cast.
	if _, err := uuid.Parse(id); err != nil {
		return nil, order.ErrNotFound
	}
	return r.getOne(ctx, query, id)
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberSQL, number)
}

// GetByNumberForUpdate locks the row until the surrounding transaction ends.
func (r *OrderRepository) GetByNumberForUpdate(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberForUpdateSQL, number)
}

// GetByIdempotencyKey uses the orders_user_idempotency_idx index.
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIdempotencyKeySQL, userID, key)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, args ...any) (*order.Order, error) {
	arg := args[len(args)-1]
	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", arg)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", arg)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.q(ctx).Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %q", userID)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %q", userID)
	}
	return orders, nil
}

func (r *OrderRepository) SetTransactionID(ctx context.Context, id, transactionID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return order.ErrNotFound
	}
	tag, err := r.q(ctx).Exec(ctx, setTransactionIDSQL, id, transactionID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return errors.Wrapf(err, "transaction id %q belongs to another order", transactionID)
		}
		return errors.Wrapf(err, "set transaction id on %q", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.q(ctx).QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check order %q", id)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrTransactionIDSet
}

func (r *OrderRepository) UpdatePayment(ctx context.Context, o *order.Order) error {
	tag, err := r.q(ctx).Exec(ctx, updatePaymentSQL,
		o.ID, string(o.PaymentStatus), string(o.Status), o.Payment.PaidAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update payment of %q", o.Number)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	tag, err := r.q(ctx).Exec(ctx, updateStatusSQL,
		o.ID, string(o.Status), o.TrackingNumber, o.Notes, o.ActualDelivery, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update status of %q", o.Number)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                   order.Order
		items, address                      []byte
		currency, status, method, payStatus string
		transactionID, intentID, idemKey    *string
		estimated                           *time.Time
		promoCode, promoType                *string
		promoValue                          decimal.NullDecimal
	)
	t := &o.Totals
	if err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &items, &currency,
		&t.Subtotal.USD, &t.Subtotal.KHR, &t.Shipping.USD, &t.Shipping.KHR, &t.Tax.USD, &t.Tax.KHR,
		&t.Discount.USD, &t.Discount.KHR, &t.Total.USD, &t.Total.KHR,
		&status, &method, &payStatus, &transactionID, &intentID, &o.Payment.PaidAt,
		&address, &estimated, &o.ActualDelivery, &o.TrackingNumber, &o.Notes,
		&promoCode, &promoType, &promoValue, &idemKey, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, errors.Wrap(err, "unmarshal order items")
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return o, errors.Wrap(err, "unmarshal shipping address")
	}

	o.Currency = money.Currency(currency)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(payStatus)
	o.Payment.TransactionID = deref(transactionID)
	o.Payment.PaymentIntentID = deref(intentID)
	o.IdempotencyKey = deref(idemKey)
	if estimated != nil {
		o.EstimatedDelivery = *estimated
	}
	if promoCode != nil {
		o.Promo = &order.AppliedPromo{
			Code:         *promoCode,
			Discount:     promoValue.Decimal,
			DiscountType: promo.DiscountType(deref(promoType)),
		}
	}
	return o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
