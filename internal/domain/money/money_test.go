package money

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestConvert(t *testing.T) {
	rate := d("4100")

	tests := []struct {
		name   string
		amount decimal.Decimal
		from   Currency
		want   decimal.Decimal
	}{
		{name: "usd to khr", amount: d("25"), from: USD, want: d("102500")},
		{name: "usd cents to khr rounds to whole riel", amount: d("0.015"), from: USD, want: d("62")},
		{name: "khr to usd", amount: d("41000"), from: KHR, want: d("10")},
		{name: "khr to usd rounds half-up to cents", amount: d("1000"), from: KHR, want: d("0.24")},
		{name: "zero", amount: decimal.Zero, from: USD, want: decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Convert(tt.amount, tt.from, rate)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestConvert_ZeroRate(t *testing.T) {
	assert.True(t, Convert(d("100"), KHR, decimal.Zero).IsZero())
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		currency Currency
		amount   string
		want     int64
	}{
		{USD, "25", 2500},
		{USD, "10.005", 1001},
		{USD, "0.01", 1},
		{KHR, "102500", 102500},
		{KHR, "41000.5", 41001},
	}

	for _, tt := range tests {
		t.Run(string(tt.currency)+"/"+tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.currency.MinorUnits(d(tt.amount)))
		})
	}
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("KHR")
	require.NoError(t, err)
	assert.Equal(t, KHR, c)
	assert.Equal(t, USD, c.Other())

	_, err = ParseCurrency("EUR")
	require.ErrorIs(t, err, ErrUnknownCurrency)

	_, err = ParseCurrency("usd")
	require.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestMoneyArithmetic(t *testing.T) {
	price := New(d("10"), d("41000"))

	line := price.Mul(3)
	assert.True(t, line.Equal(New(d("30"), d("123000"))))

	total := line.Sub(New(d("3"), d("12300"))).Add(Zero)
	assert.True(t, total.Equal(New(d("27"), d("110700"))))
	assert.False(t, total.IsNegative())
	assert.True(t, Zero.Sub(price).IsNegative())
}

func TestMoneyWithin(t *testing.T) {
	a := New(d("10.00"), d("41000"))

	assert.True(t, a.Within(New(d("10.01"), d("41001"))))
	assert.False(t, a.Within(New(d("10.02"), d("41000"))))
	assert.False(t, a.Within(New(d("10.00"), d("41002"))))
}

func TestFrom(t *testing.T) {
	m := From(d("25"), USD, d("4100"))
	assert.True(t, m.Equal(New(d("25"), d("102500"))))

	m = From(d("20500"), KHR, d("4100"))
	assert.True(t, m.Equal(New(d("5"), d("20500"))))
}

func TestFixedRate(t *testing.T) {
	_, err := NewFixedRate(decimal.Zero)
	require.Error(t, err)

	r, err := NewFixedRate(d("4100"))
	require.NoError(t, err)

	got, err := r.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, d("4100").Equal(got))
}
