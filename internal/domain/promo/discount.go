package promo

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

var hundred = decimal.NewFromInt(100)

// Discount is either Percentage or Fixed.
type Discount interface {
	isDiscount()
}

// Percentage takes Percent (clamped to 0..100) of the subtotal.
type Percentage struct {
	Percent decimal.Decimal
}

// Fixed takes Amount off the subtotal. Amount is denominated in Currency.
type Fixed struct {
	Amount   decimal.Decimal
	Currency money.Currency
}

func (Percentage) isDiscount() {}
func (Fixed) isDiscount()      {}

// In expresses the fixed amount in c, converting with rate if needed.
func (f Fixed) In(c money.Currency, rate decimal.Decimal) Fixed {
	if f.Currency == c || f.Currency == "" {
		return Fixed{Amount: f.Amount, Currency: c}
	}
	return Fixed{Amount: money.Convert(f.Amount, f.Currency, rate), Currency: c}
}

// Apply returns the discount amount for subtotal. The result lies in
// [0, subtotal]. A nil discount yields zero.
func Apply(d Discount, subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsNegative() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch v := d.(type) {
	case Percentage:
		p := decimal.Max(decimal.Zero, decimal.Min(v.Percent, hundred))
		amount = subtotal.Mul(p).Div(hundred)
	case Fixed:
		amount = decimal.Max(decimal.Zero, decimal.Min(v.Amount, subtotal))
	default:
		return decimal.Zero
	}
	return amount
}
