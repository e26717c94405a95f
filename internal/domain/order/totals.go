package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/promo"
)

// pricing is the input to computeTotals, expressed in the order currency.
type pricing struct {
	currency money.Currency
	rate     decimal.Decimal
	discount promo.Discount
	shipping decimal.Decimal
	tax      decimal.Decimal
}

// subtotalIn sums item totals in c.
func subtotalIn(items []Item, c money.Currency) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.TotalPrice.In(c))
	}
	return c.Round(sum)
}

// computeTotals prices items in the order currency and derives the paired
// currency with the exchange rate. Totals satisfy the subtotal identity in
// both currencies and are never negative.
func computeTotals(items []Item, p pricing) Totals {
	c := p.currency
	subtotal := subtotalIn(items, c)

	discount := discountIn(p.discount, subtotal, c, p.rate)

	t := Totals{
		Subtotal: money.From(subtotal, c, p.rate),
		Discount: money.From(discount, c, p.rate),
		Shipping: money.From(floor(p.shipping), c, p.rate),
		Tax:      money.From(floor(p.tax), c, p.rate),
	}
	total := t.Subtotal.Sub(t.Discount).Add(t.Shipping).Add(t.Tax)
	t.Total = money.New(floor(total.USD), floor(total.KHR))
	return t
}

// discountIn returns the discount on subtotal in c, rounded to its minor unit.
func discountIn(d promo.Discount, subtotal decimal.Decimal, c money.Currency, rate decimal.Decimal) decimal.Decimal {
	if f, ok := d.(promo.Fixed); ok {
		d = f.In(c, rate)
	}
	return c.Round(promo.Apply(d, subtotal))
}

func floor(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
