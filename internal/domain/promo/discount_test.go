package promo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		discount Discount
		subtotal decimal.Decimal
		want     decimal.Decimal
	}{
		{name: "percentage 10% of 25", discount: Percentage{Percent: d("10")}, subtotal: d("25"), want: d("2.5")},
		{name: "percentage 18% of 100", discount: Percentage{Percent: d("18")}, subtotal: d("100"), want: d("18")},
		{name: "percentage above 100 is clamped", discount: Percentage{Percent: d("150")}, subtotal: d("80"), want: d("80")},
		{name: "negative percentage is clamped", discount: Percentage{Percent: d("-5")}, subtotal: d("80"), want: decimal.Zero},
		{name: "fixed below subtotal", discount: Fixed{Amount: d("5"), Currency: money.USD}, subtotal: d("20"), want: d("5")},
		{name: "fixed capped at subtotal", discount: Fixed{Amount: d("50"), Currency: money.USD}, subtotal: d("20"), want: d("20")},
		{name: "negative fixed yields zero", discount: Fixed{Amount: d("-1")}, subtotal: d("20"), want: decimal.Zero},
		{name: "nil discount", discount: nil, subtotal: d("20"), want: decimal.Zero},
		{name: "zero subtotal", discount: Percentage{Percent: d("10")}, subtotal: decimal.Zero, want: decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(tt.discount, tt.subtotal)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestFixedIn(t *testing.T) {
	rate := d("4100")

	f := Fixed{Amount: d("5"), Currency: money.USD}.In(money.KHR, rate)
	assert.Equal(t, money.KHR, f.Currency)
	assert.True(t, d("20500").Equal(f.Amount))

	same := Fixed{Amount: d("5"), Currency: money.USD}.In(money.USD, rate)
	assert.True(t, d("5").Equal(same.Amount))
}

func TestRuleDiscount(t *testing.T) {
	pct, err := (&Rule{DiscountType: DiscountPercentage, Value: d("10")}).Discount()
	assert.NoError(t, err)
	assert.Equal(t, Percentage{Percent: d("10")}, pct)

	fixed, err := (&Rule{DiscountType: DiscountFixed, Value: d("5")}).Discount()
	assert.NoError(t, err)
	assert.Equal(t, Fixed{Amount: d("5"), Currency: money.USD}, fixed)

	_, err = (&Rule{DiscountType: "free_lowest"}).Discount()
	assert.Error(t, err)
}
