package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "BRL"

// ToCents converts a major-unit amount into integer minor units, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatPrice renders amount the way buyers read it, e.g. "R$ 29,90" for BRL.
func FormatPrice(amount decimal.Decimal, currency string) string {
	if currency == "" || currency == DefaultCurrency {
		return "R$ " + strings.Replace(amount.StringFixed(2), ".", ",", 1)
	}
	return currency + " " + amount.StringFixed(2)
}
