// Package notify delivers customer notifications about orders outside the
// request path.
package notify

import (
	"context"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Result is the outcome of one notification attempt.
type Result struct {
	Success bool
	Err     error
}

// Failed builds an unsuccessful Result.
func Failed(err error) Result { return Result{Err: err} }

// Sent is a successful Result.
var Sent = Result{Success: true}

// Recipient identifies who is told about an order.
type Recipient struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

// RecipientOf derives the recipient from the order's shipping details.
func RecipientOf(o order.Order) Recipient {
	a := o.ShippingAddress
	return Recipient{UserID: o.UserID, Name: a.FullName, Email: a.Email, Phone: a.Phone}
}

// Notifier sends a single notification. Implementations report failures in
// Result and must not panic, though the Dispatcher recovers if they do.
type Notifier interface {
	NotifyOrderConfirmed(ctx context.Context, o order.Order, to Recipient) Result
	NotifyOrderStatus(ctx context.Context, o order.Order, to Recipient) Result
}
