package order

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/promo"
	"github.com/xenking/kart-checkout/internal/idempotency"
)

// DefaultNumberPrefix prefixes order numbers when none is configured.
const DefaultNumberPrefix = "FF"

// CreateOrderRequest holds the input for checking out a cart.
type CreateOrderRequest struct {
	UserID          string
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	Currency        string
	PromoCode       string
	Notes           string
	IdempotencyKey  string
}

// UpdateStatusRequest holds an administrative status change.
type UpdateStatusRequest struct {
	OrderID        string
	Status         string
	TrackingNumber string
	Notes          string
}

// Deps are the collaborators of a Service. Optional fields fall back to
// defaults in NewService.
type Deps struct {
	Tx       Transactor
	Orders   Repository
	Products product.Repository
	Carts    cart.Repository
	Promos   promo.Validator
	Rates    money.ExchangeRateProvider
	Sequence Sequence

	// Optional.
	Idempotency    idempotency.Store
	Notifications  Notifications
	Delivery       DeliveryEstimator
	Shipping       ShippingPolicy
	Tax            TaxPolicy
	NumberPrefix   string
	PaymentMethods []PaymentMethod
	Meter          metric.Meter
}

// Service encapsulates checkout and order lifecycle logic.
type Service struct {
	tx       Transactor
	orders   Repository
	products product.Repository
	carts    cart.Repository
	promos   promo.Validator
	rates    money.ExchangeRateProvider
	seq      Sequence
	resolver *Resolver

	idem     idempotency.Store
	notify   Notifications
	delivery DeliveryEstimator
	shipping ShippingPolicy
	tax      TaxPolicy
	prefix   string
	methods  []PaymentMethod

	created metric.Int64Counter
	updated metric.Int64Counter
	now     func() time.Time
}

// NewService creates an order Service.
func NewService(d Deps) (*Service, error) {
	s := &Service{
		tx:       d.Tx,
		orders:   d.Orders,
		products: d.Products,
		carts:    d.Carts,
		promos:   d.Promos,
		rates:    d.Rates,
		seq:      d.Sequence,
		resolver: NewResolver(d.Products),
		idem:     d.Idempotency,
		notify:   d.Notifications,
		delivery: d.Delivery,
		shipping: d.Shipping,
		tax:      d.Tax,
		prefix:   d.NumberPrefix,
		methods:  d.PaymentMethods,
		now:      time.Now,
	}
	if s.delivery == nil {
		s.delivery = DefaultDelivery
	}
	if s.shipping == nil {
		s.shipping = NoCharge{}
	}
	if s.tax == nil {
		s.tax = NoCharge{}
	}
	if s.prefix == "" {
		s.prefix = DefaultNumberPrefix
	}
	if len(s.methods) == 0 {
		s.methods = DefaultPaymentMethods
	}
	if s.notify == nil {
		s.notify = discardNotifications{}
	}

	meter := d.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	var err error
	if s.created, err = meter.Int64Counter("kart.orders.created",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	if s.updated, err = meter.Int64Counter("kart.orders.status_changes",
		metric.WithDescription("Administrative order status changes"),
	); err != nil {
		return nil, errors.Wrap(err, "status changes counter")
	}
	return s, nil
}

// CreateOrder checks out the user's cart. Stock reservation, order
// persistence, promo redemption and cart clearing share one transaction:
// either all happen or none do.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ *Order, rerr error) {
	if req.UserID == "" {
		return nil, apperr.Forbidden("user identity required")
	}
	if err := req.ShippingAddress.Validate(); err != nil {
		return nil, err
	}
	currency, err := money.ParseCurrency(req.Currency)
	if err != nil {
		return nil, apperr.Validation("currency", "must be USD or KHR")
	}
	if !slices.Contains(s.methods, req.PaymentMethod) {
		return nil, apperr.Validation("paymentMethod", "unsupported payment method "+string(req.PaymentMethod))
	}

	if key := strings.TrimSpace(req.IdempotencyKey); key != "" && s.idem != nil {
		storeKey := req.UserID + ":" + key
		existingID, done, err := s.idem.Begin(ctx, storeKey)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			// The claim may belong to a request that committed but never
			// recorded its result.
			o, err := s.placedWithKey(ctx, req.UserID, key)
			if err != nil || o != nil {
				return o, err
			}
			return nil, apperr.Conflict("order", "", "a request with this idempotency key is in progress")
		case err != nil:
			return nil, errors.Wrap(err, "begin idempotent request")
		case done:
			o, err := s.orders.GetByID(ctx, existingID)
			if err != nil {
				return nil, errors.Wrap(err, "get replayed order")
			}
			return o, nil
		}
		defer func() {
			if rerr == nil {
				return
			}
			if err := s.idem.Abort(context.WithoutCancel(ctx), storeKey); err != nil {
				zctx.From(ctx).Warn("Release idempotency key", zap.Error(err))
			}
		}()
		req.IdempotencyKey = key

		// The store may have forgotten a key the database still holds.
		o, err := s.placedWithKey(ctx, req.UserID, key)
		if err != nil {
			return nil, err
		}
		if o != nil {
			if err := s.idem.Complete(ctx, storeKey, o.ID); err != nil {
				zctx.From(ctx).Warn("Store idempotency result", zap.Error(err))
			}
			return o, nil
		}
	}

	o, err := s.place(ctx, req, currency)
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx)
	if req.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.Complete(ctx, req.UserID+":"+req.IdempotencyKey, o.ID); err != nil {
			lg.Warn("Store idempotency result", zap.Error(err))
		}
	}
	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("currency", string(currency))))
	lg.Info("Order created",
		zap.String("order", o.Number),
		zap.String("user", o.UserID),
		zap.Stringer("total", o.Totals.Total.In(currency)),
		zap.String("currency", string(currency)),
	)
	s.notify.OrderConfirmed(ctx, *o)
	return o, nil
}

func (s *Service) place(ctx context.Context, req CreateOrderRequest, currency money.Currency) (*Order, error) {
	lines, err := s.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	items, err := s.resolver.Resolve(ctx, lines)
	if err != nil {
		return nil, err
	}

	rate, err := s.rates.Rate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "exchange rate")
	}

	var (
		applied  *AppliedPromo
		discount promo.Discount
	)
	if code := strings.TrimSpace(req.PromoCode); code != "" {
		rule, err := s.promos.Validate(ctx, code, cart.Quantity(lines))
		if err != nil {
			return nil, promoError(err)
		}
		if discount, err = rule.Discount(); err != nil {
			return nil, promoError(err)
		}
		applied = &AppliedPromo{Code: rule.Code, Discount: rule.Value, DiscountType: rule.DiscountType}
	}

	subtotal := subtotalIn(items, currency)
	shipping, err := s.shipping.Shipping(ctx, items, currency, subtotal)
	if err != nil {
		return nil, errors.Wrap(err, "shipping")
	}
	taxable := subtotal.Sub(discountIn(discount, subtotal, currency, rate))
	tax, err := s.tax.Tax(ctx, currency, taxable)
	if err != nil {
		return nil, errors.Wrap(err, "tax")
	}

	now := s.now().UTC()
	o := &Order{
		ID:     uuid.New().String(),
		UserID: req.UserID,
		Items:  items,
		Totals: computeTotals(items, pricing{
			currency: currency,
			rate:     rate,
			discount: discount,
			shipping: shipping,
			tax:      tax,
		}),
		Currency:          currency,
		Status:            StatusPending,
		PaymentMethod:     req.PaymentMethod,
		PaymentStatus:     PaymentPending,
		ShippingAddress:   req.ShippingAddress,
		EstimatedDelivery: s.delivery.Estimate(ctx, now, req.ShippingAddress),
		Notes:             req.Notes,
		Promo:             applied,
		IdempotencyKey:    req.IdempotencyKey,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, it := range o.Items {
			if err := s.products.ReserveStock(ctx, it.ProductID, it.Quantity); err != nil {
				if errors.Is(err, product.ErrInsufficientStock) {
					return apperr.Conflict("product", it.ProductID, "insufficient stock")
				}
				return errors.Wrapf(err, "reserve stock for %s", it.ProductID)
			}
		}
		if o.Promo != nil {
			if err := s.promos.Redeem(ctx, o.Promo.Code); err != nil {
				return promoError(err)
			}
		}

		n, err := s.seq.Next(ctx)
		if err != nil {
			return errors.Wrap(err, "next order number")
		}
		o.Number = FormatNumber(s.prefix, n)

		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		cleared, err := s.carts.ClearCart(ctx, o.UserID, lines)
		if err != nil {
			return errors.Wrap(err, "clear cart")
		}
		if cleared != int64(len(lines)) {
			return apperr.Conflict("cart", o.UserID, "cart was checked out or changed during checkout")
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return o, nil
}

// placedWithKey returns the order userID already placed with key, or nil.
func (s *Service) placedWithKey(ctx context.Context, userID, key string) (*Order, error) {
	o, err := s.orders.GetByIdempotencyKey(ctx, userID, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "find order by idempotency key")
	}
	return o, nil
}

// promoError maps promo failures to validation errors.
func promoError(err error) error {
	switch {
	case errors.Is(err, promo.ErrInvalidCode),
		errors.Is(err, promo.ErrExpired),
		errors.Is(err, promo.ErrUsageLimitReached):
		return apperr.Validation("promoCode", err.Error())
	default:
		return errors.Wrap(err, "promo code")
	}
}

// GetOrder returns an order visible to actor.
func (s *Service) GetOrder(ctx context.Context, actor auth.Identity, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("order", id)
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !actor.CanAccess(o.UserID) {
		return nil, apperr.Forbidden("order belongs to another user")
	}
	return o, nil
}

// ListOrders returns the actor's own orders, newest first.
func (s *Service) ListOrders(ctx context.Context, actor auth.Identity) ([]Order, error) {
	if actor.UserID == "" {
		return nil, apperr.Forbidden("user identity required")
	}
	orders, err := s.orders.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// TrackOrder returns the public tracking view of the order with number.
func (s *Service) TrackOrder(ctx context.Context, number string) (*Tracking, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("order", number)
		}
		return nil, errors.Wrap(err, "get order by number")
	}
	return &Tracking{
		Number:            o.Number,
		Status:            o.Status,
		PaymentStatus:     o.PaymentStatus,
		EstimatedDelivery: o.EstimatedDelivery,
		ActualDelivery:    o.ActualDelivery,
		TrackingNumber:    o.TrackingNumber,
		UpdatedAt:         o.UpdatedAt,
	}, nil
}

// UpdateStatus applies an administrative status change. Only forward steps
// along pending, processing, shipped, delivered are allowed, plus
// cancellation of any order that is not yet delivered or cancelled.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Identity, req UpdateStatusRequest) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("admin role required")
	}
	to, ok := ParseStatus(req.Status)
	if !ok {
		return nil, apperr.Validation("status", "unknown status "+req.Status)
	}

	var updated *Order
	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByIDForUpdate(ctx, req.OrderID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperr.NotFound("order", req.OrderID)
			}
			return errors.Wrap(err, "get order")
		}
		if !CanTransition(o.Status, to) {
			return apperr.Validation("status", "cannot move order from "+string(o.Status)+" to "+string(to))
		}

		now := s.now().UTC()
		o.Status = to
		if req.TrackingNumber != "" {
			o.TrackingNumber = req.TrackingNumber
		}
		if req.Notes != "" {
			o.Notes = req.Notes
		}
		if to == StatusDelivered {
			o.ActualDelivery = &now
		}
		o.UpdatedAt = now

		if err := s.orders.UpdateStatus(ctx, o); err != nil {
			return errors.Wrap(err, "update status")
		}
		updated = o
		return nil
	}); err != nil {
		return nil, err
	}

	s.updated.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to))))
	zctx.From(ctx).Info("Order status changed",
		zap.String("order", updated.Number),
		zap.String("status", string(to)),
		zap.String("by", actor.UserID),
	)
	s.notify.OrderStatusChanged(ctx, *updated)
	return updated, nil
}

type discardNotifications struct{}

func (discardNotifications) OrderConfirmed(context.Context, Order)     {}
func (discardNotifications) OrderStatusChanged(context.Context, Order) {}
