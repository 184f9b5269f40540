package models

import (
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the sales tax applied to the discounted subtotal.
var DefaultTaxRate = decimal.RequireFromString("0.08")

// Money rounds an amount to cents, half away from zero.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MoneyFromString parses a literal amount such as "250.75". It panics on bad
// input and is meant for constants and tests.
func MoneyFromString(s string) decimal.Decimal {
	return Money(decimal.RequireFromString(s))
}

// NullMoney wraps an amount as a present decimal.NullDecimal.
func NullMoney(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(Money(d))
}
