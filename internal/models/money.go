package models

import "github.com/shopspring/decimal"

// Monetary limits shared by accounts, transactions and budgets.
var (
	MaxAmount           = decimal.RequireFromString("999999.99")
	MaxBalance          = decimal.RequireFromString("9999999.99")
	CreditFloor         = decimal.RequireFromString("-10000.00")
	DefaultCurrency     = "GBP"
	SupportedCurrencies = map[string]bool{"GBP": true, "USD": true, "EUR": true}
)

// ValidAmount reports whether amount is positive and within MaxAmount.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.LessThanOrEqual(MaxAmount)
}

// RoundMoney rounds to the currency minor unit. All supported currencies use two.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
