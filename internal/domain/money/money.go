// Package money models prices that are carried in both US dollars and
// Cambodian riel.
package money

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code accepted by the checkout.
type Currency string

const (
	USD Currency = "USD"
	KHR Currency = "KHR"
)

// ErrUnknownCurrency is returned by ParseCurrency for codes other than USD and KHR.
var ErrUnknownCurrency = errors.New("unknown currency")

// ParseCurrency validates s as a supported currency code.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(s); c {
	case USD, KHR:
		return c, nil
	default:
		return "", errors.Wrapf(ErrUnknownCurrency, "%q", s)
	}
}

// Exponent is the number of minor-unit digits: 2 for USD, 0 for KHR.
func (c Currency) Exponent() int32 {
	if c == KHR {
		return 0
	}
	return 2
}

// Other returns the paired currency.
func (c Currency) Other() Currency {
	if c == KHR {
		return USD
	}
	return KHR
}

// Tolerance is the largest rounding drift accepted when comparing amounts
// derived through different paths.
func (c Currency) Tolerance() decimal.Decimal {
	if c == KHR {
		return decimal.NewFromInt(1)
	}
	return decimal.New(1, -2)
}

// Round rounds d half-up to the currency's minor unit.
func (c Currency) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.Exponent())
}

// MinorUnits converts d to an integer count of the smallest unit (cents for
// USD, riel for KHR), rounding half-up.
func (c Currency) MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(c.Exponent()).Round(0).IntPart()
}

// Money is a pair of amounts, one per supported currency.
type Money struct {
	USD decimal.Decimal `json:"usd"`
	KHR decimal.Decimal `json:"khr"`
}

// Zero is a Money with both amounts zero.
var Zero = Money{USD: decimal.Zero, KHR: decimal.Zero}

// New builds a Money from both amounts.
func New(usd, khr decimal.Decimal) Money {
	return Money{USD: usd, KHR: khr}
}

// From builds a Money from an amount in c, deriving the other side with rate.
func From(amount decimal.Decimal, c Currency, rate decimal.Decimal) Money {
	amount = c.Round(amount)
	other := Convert(amount, c, rate)
	if c == USD {
		return Money{USD: amount, KHR: other}
	}
	return Money{USD: other, KHR: amount}
}

// In returns the amount in c.
func (m Money) In(c Currency) decimal.Decimal {
	if c == KHR {
		return m.KHR
	}
	return m.USD
}

func (m Money) Add(o Money) Money {
	return Money{USD: m.USD.Add(o.USD), KHR: m.KHR.Add(o.KHR)}
}

func (m Money) Sub(o Money) Money {
	return Money{USD: m.USD.Sub(o.USD), KHR: m.KHR.Sub(o.KHR)}
}

// Mul multiplies both amounts by qty.
func (m Money) Mul(qty int) Money {
	q := decimal.NewFromInt(int64(qty))
	return Money{USD: m.USD.Mul(q), KHR: m.KHR.Mul(q)}
}

// Round rounds each side to its minor unit.
func (m Money) Round() Money {
	return Money{USD: USD.Round(m.USD), KHR: KHR.Round(m.KHR)}
}

// IsNegative reports whether either side is below zero.
func (m Money) IsNegative() bool {
	return m.USD.IsNegative() || m.KHR.IsNegative()
}

// Equal compares both sides exactly.
func (m Money) Equal(o Money) bool {
	return m.USD.Equal(o.USD) && m.KHR.Equal(o.KHR)
}

// Within reports whether each side of m differs from o by no more than the
// currency tolerance.
func (m Money) Within(o Money) bool {
	return m.USD.Sub(o.USD).Abs().LessThanOrEqual(USD.Tolerance()) &&
		m.KHR.Sub(o.KHR).Abs().LessThanOrEqual(KHR.Tolerance())
}

// Convert converts amount from one currency to the other. rate is the number
// of riel per US dollar. The result is rounded to the target's minor unit.
func Convert(amount decimal.Decimal, from Currency, rate decimal.Decimal) decimal.Decimal {
	if from == USD {
		return KHR.Round(amount.Mul(rate))
	}
	if rate.IsZero() {
		return decimal.Zero
	}
	return USD.Round(amount.Div(rate))
}

// ExchangeRateProvider supplies the riel-per-dollar rate used for conversion.
type ExchangeRateProvider interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// FixedRate is an ExchangeRateProvider returning a configured constant.
type FixedRate decimal.Decimal

var _ ExchangeRateProvider = FixedRate{}

// NewFixedRate validates r and returns it as a provider.
func NewFixedRate(r decimal.Decimal) (FixedRate, error) {
	if !r.IsPositive() {
		return FixedRate{}, errors.Errorf("exchange rate must be positive, got %s", r)
	}
	return FixedRate(r), nil
}

func (r FixedRate) Rate(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(r), nil
}
