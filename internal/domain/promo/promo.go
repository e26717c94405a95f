// Package promo holds promotional codes and the discount arithmetic they
// drive at checkout.
package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// DiscountType enumerates the stored discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrInvalidCode is returned when a code is not found or the cart does
	// not satisfy the code's minimum item requirement.
	ErrInvalidCode = errors.New("invalid promo code")
	// ErrExpired is returned when a code is outside its valid time window.
	ErrExpired = errors.New("promo code expired")
	// ErrUsageLimitReached is returned when a code has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("promo code usage limit reached")
)

// Rule is a stored promo code with its eligibility constraints.
type Rule struct {
	Code         string
	DiscountType DiscountType
	// Value is a percentage for DiscountPercentage and an amount in
	// Currency for DiscountFixed.
	Value       decimal.Decimal
	Currency    money.Currency
	MinItems    int
	Description string
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	MaxUses     int
	Uses        int
}

// Discount returns the rule as a tagged discount value.
func (r *Rule) Discount() (Discount, error) {
	switch r.DiscountType {
	case DiscountPercentage:
		return Percentage{Percent: r.Value}, nil
	case DiscountFixed:
		c := r.Currency
		if c == "" {
			c = money.USD
		}
		return Fixed{Amount: r.Value, Currency: c}, nil
	default:
		return nil, errors.Errorf("unsupported discount type: %q", r.DiscountType)
	}
}

// Repository provides lookup and redemption of promo codes.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// IncrementUses records one redemption. It returns ErrUsageLimitReached
	// if the code is already at its limit.
	IncrementUses(ctx context.Context, code string) error
}
