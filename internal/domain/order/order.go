package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/promo"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus reports whether s names a known status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// PaymentStatus is the settlement state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Settled reports whether money has moved for the order.
func (s PaymentStatus) Settled() bool {
	return s == PaymentCompleted || s == PaymentRefunded
}

// PaymentMethod is how the shopper intends to pay.
type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodABAPay PaymentMethod = "aba_pay"
	MethodKHQR   PaymentMethod = "khqr"
	MethodCOD    PaymentMethod = "cod"
)

// DefaultPaymentMethods lists the methods accepted when none are configured.
var DefaultPaymentMethods = []PaymentMethod{MethodCard, MethodABAPay, MethodKHQR, MethodCOD}

// Snapshot freezes product details at purchase time. It is never rewritten.
type Snapshot struct {
	Name  string      `json:"name"`
	Price money.Money `json:"price"`
	Image string      `json:"image"`
}

// Item is one purchased line.
type Item struct {
	ProductID  string      `json:"productId"`
	Snapshot   Snapshot    `json:"snapshot"`
	Quantity   int         `json:"quantity"`
	Size       string      `json:"size,omitempty"`
	Color      string      `json:"color,omitempty"`
	UnitPrice  money.Money `json:"unitPrice"`
	TotalPrice money.Money `json:"totalPrice"`
}

// Totals holds every amount of an order in both currencies.
type Totals struct {
	Subtotal money.Money
	Shipping money.Money
	Tax      money.Money
	Discount money.Money
	Total    money.Money
}

// Consistent reports whether Total = Subtotal - Discount + Shipping + Tax
// holds in both currencies within rounding tolerance.
func (t Totals) Consistent() bool {
	want := t.Subtotal.Sub(t.Discount).Add(t.Shipping).Add(t.Tax)
	return t.Total.Within(want)
}

// Address is the shipping destination.
type Address struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Validate requires name, phone and street.
func (a Address) Validate() error {
	switch {
	case strings.TrimSpace(a.FullName) == "":
		return apperr.Validation("shippingAddress.fullName", "required")
	case strings.TrimSpace(a.Phone) == "":
		return apperr.Validation("shippingAddress.phone", "required")
	case strings.TrimSpace(a.Street) == "":
		return apperr.Validation("shippingAddress.street", "required")
	}
	return nil
}

// Payment carries gateway references.
type Payment struct {
	TransactionID   string
	PaymentIntentID string
	PaidAt          *time.Time
}

// AppliedPromo records the promo code used at checkout.
type AppliedPromo struct {
	Code         string
	Discount     decimal.Decimal
	DiscountType promo.DiscountType
}

// Order is a placed customer order.
type Order struct {
	ID                string
	Number            string
	UserID            string
	Items             []Item
	Totals            Totals
	Currency          money.Currency
	Status            Status
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	Payment           Payment
	ShippingAddress   Address
	EstimatedDelivery time.Time
	ActualDelivery    *time.Time
	TrackingNumber    string
	Notes             string
	Promo             *AppliedPromo
	IdempotencyKey    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

var (
	// ErrNotFound is returned by Repository lookups that match no order.
	ErrNotFound = errors.New("order not found")
	// ErrTransactionIDSet is returned by SetTransactionID when the order
	// already carries a gateway transaction id.
	ErrTransactionIDSet = errors.New("transaction id already set")
)

// Repository defines persistence operations for orders. The ForUpdate
// variants lock the row and must run inside Transactor.WithinTx.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByIDForUpdate(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	GetByNumberForUpdate(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// GetByIdempotencyKey finds the order userID placed with key.
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	// SetTransactionID writes the gateway transaction id only if none is
	// stored yet.
	SetTransactionID(ctx context.Context, id, transactionID string) error
	// UpdatePayment persists PaymentStatus, Status, Payment.PaidAt and UpdatedAt.
	UpdatePayment(ctx context.Context, o *Order) error
	// UpdateStatus persists Status, TrackingNumber, Notes, ActualDelivery and UpdatedAt.
	UpdateStatus(ctx context.Context, o *Order) error
}

// Transactor runs fn in a database transaction carried by the context.
// Repositories called with that context join the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Sequence hands out order numbers. Values are unique across processes.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// Notifications receives order events after they are committed. Delivery is
// best effort and never fails the caller.
type Notifications interface {
	OrderConfirmed(ctx context.Context, o Order)
	OrderStatusChanged(ctx context.Context, o Order)
}

// Tracking is the public view of an order looked up by number.
type Tracking struct {
	Number            string
	Status            Status
	PaymentStatus     PaymentStatus
	EstimatedDelivery time.Time
	ActualDelivery    *time.Time
	TrackingNumber    string
	UpdatedAt         time.Time
}
