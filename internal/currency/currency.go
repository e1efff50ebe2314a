// Package currency converts INR base prices into the shopper's display
// currency and formats them for the matching locale.
package currency

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const Base = "INR"

type Currency struct {
	Code   string
	Symbol string
	// Rate is the number of display units per base unit.
	Rate   decimal.Decimal
	Locale language.Tag
}

var rates = map[string]Currency{
	"INR": {Code: "INR", Symbol: "₹", Rate: decimal.NewFromInt(1), Locale: language.MustParse("en-IN")},
	"USD": {Code: "USD", Symbol: "$", Rate: decimal.RequireFromString("0.012"), Locale: language.AmericanEnglish},
	"EUR": {Code: "EUR", Symbol: "€", Rate: decimal.RequireFromString("0.011"), Locale: language.German},
	"GBP": {Code: "GBP", Symbol: "£", Rate: decimal.RequireFromString("0.0095"), Locale: language.BritishEnglish},
	"AED": {Code: "AED", Symbol: "AED ", Rate: decimal.RequireFromString("0.044"), Locale: language.MustParse("en-AE")},
	"CAD": {Code: "CAD", Symbol: "CA$", Rate: decimal.RequireFromString("0.016"), Locale: language.MustParse("en-CA")},
	"AUD": {Code: "AUD", Symbol: "A$", Rate: decimal.RequireFromString("0.018"), Locale: language.MustParse("en-AU")},
	"SGD": {Code: "SGD", Symbol: "S$", Rate: decimal.RequireFromString("0.016"), Locale: language.MustParse("en-SG")},
}

// Lookup resolves a code case-insensitively.
func Lookup(code string) (Currency, bool) {
	c, ok := rates[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

func IsSupported(code string) bool {
	_, ok := Lookup(code)
	return ok
}

func Supported() []Currency {
	list := make([]Currency, 0, len(rates))
	for _, c := range rates {
		list = append(list, c)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list
}

func resolve(code string) Currency {
	if c, ok := Lookup(code); ok {
		return c
	}
	return rates[Base]
}

// Convert returns amountBase in code, rounded to two places. Unknown codes
// fall back to the base currency.
func Convert(amountBase float64, code string) float64 {
	c := resolve(code)

	converted, _ := decimal.NewFromFloat(amountBase).Mul(c.Rate).Round(2).Float64()
	return converted
}

// Format renders an already converted amount with the currency symbol and
// locale grouping. INR shows at most two decimals, others exactly two.
func Format(amountDisplay float64, code string) string {
	c := resolve(code)

	opts := []number.Option{number.Scale(2)}
	if c.Code == Base {
		opts = []number.Option{number.MaxFractionDigits(2)}
	}

	p := message.NewPrinter(c.Locale)
	return c.Symbol + p.Sprintf("%v", number.Decimal(amountDisplay, opts...))
}

// Display converts and formats in one step.
func Display(amountBase float64, code string) string {
	return Format(Convert(amountBase, code), code)
}
