package currency_test

import (
	"testing"

	"github.com/htkfoods/storefront/internal/currency"
	"github.com/stretchr/testify/assert"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		code   string
		want   float64
	}{
		{"Base currency is identity", 1499, "INR", 1499},
		{"USD rounds to two places", 1499, "USD", 17.99},
		{"Lower case code", 1000, "usd", 12},
		{"GBP", 333, "GBP", 3.16},
		{"Unknown code falls back to base", 250, "XYZ", 250},
		{"Zero", 0, "EUR", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, currency.Convert(tc.amount, tc.code))
		})
	}
}

func TestFormat(t *testing.T) {
	t.Run("INR has no forced decimals", func(t *testing.T) {
		assert.Equal(t, "₹500", currency.Format(500, "INR"))
		assert.Equal(t, "₹1,234.5", currency.Format(1234.5, "INR"))
	})

	t.Run("USD always has two decimals", func(t *testing.T) {
		assert.Equal(t, "$12.00", currency.Format(12, "USD"))
		assert.Equal(t, "$1,234.50", currency.Format(1234.5, "USD"))
	})

	t.Run("Symbol of other currencies", func(t *testing.T) {
		assert.Contains(t, currency.Format(12.5, "EUR"), "€")
		assert.Contains(t, currency.Format(12.5, "SGD"), "S$")
	})

	t.Run("Display converts first", func(t *testing.T) {
		assert.Equal(t, "$12.00", currency.Display(1000, "USD"))
	})
}

func TestLookup(t *testing.T) {
	c, ok := currency.Lookup(" gbp ")
	assert.True(t, ok)
	assert.Equal(t, "GBP", c.Code)

	_, ok = currency.Lookup("BTC")
	assert.False(t, ok)

	supported := currency.Supported()
	assert.Len(t, supported, 8)
	assert.Equal(t, "AED", supported[0].Code)
}
