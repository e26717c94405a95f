package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// DeliveryEstimator predicts when an order placed at placedAt arrives.
type DeliveryEstimator interface {
	Estimate(ctx context.Context, placedAt time.Time, address Address) time.Time
}

// FixedDelivery estimates a constant lead time.
type FixedDelivery time.Duration

// DefaultDelivery is two days.
const DefaultDelivery = FixedDelivery(48 * time.Hour)

func (d FixedDelivery) Estimate(_ context.Context, placedAt time.Time, _ Address) time.Time {
	return placedAt.Add(time.Duration(d))
}

// ShippingPolicy returns the shipping fee in currency c.
type ShippingPolicy interface {
	Shipping(ctx context.Context, items []Item, c money.Currency, subtotal decimal.Decimal) (decimal.Decimal, error)
}

// TaxPolicy returns the tax due in currency c on the discounted subtotal.
type TaxPolicy interface {
	Tax(ctx context.Context, c money.Currency, taxable decimal.Decimal) (decimal.Decimal, error)
}

// NoCharge is a ShippingPolicy and TaxPolicy that always returns zero.
type NoCharge struct{}

func (NoCharge) Shipping(context.Context, []Item, money.Currency, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (NoCharge) Tax(context.Context, money.Currency, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// FlatShipping charges Fee unless the subtotal reaches FreeOver. A zero
// FreeOver disables the threshold. Amounts are in dollars.
type FlatShipping struct {
	Fee      decimal.Decimal
	FreeOver decimal.Decimal
	Rates    money.ExchangeRateProvider
}

func (f FlatShipping) Shipping(ctx context.Context, _ []Item, c money.Currency, subtotal decimal.Decimal) (decimal.Decimal, error) {
	rate, err := f.Rates.Rate(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	fee, threshold := f.Fee, f.FreeOver
	if c != money.USD {
		fee = money.Convert(fee, money.USD, rate)
		threshold = money.Convert(threshold, money.USD, rate)
	}
	if threshold.IsPositive() && subtotal.GreaterThanOrEqual(threshold) {
		return decimal.Zero, nil
	}
	return fee, nil
}

// FormatNumber renders a sequence value as an order number, e.g. FF000042.
func FormatNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s%06d", prefix, n)
}
