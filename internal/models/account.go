package models

import "github.com/shopspring/decimal"

// AccountType represents the type of account
type AccountType string

const (
	AccountTypeCurrent AccountType = "current"
	AccountTypeSavings AccountType = "savings"
	AccountTypeISA     AccountType = "isa"
	AccountTypeCredit  AccountType = "credit"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeCurrent, AccountTypeSavings, AccountTypeISA, AccountTypeCredit:
		return true
	}
	return false
}

// Account represents a bank account owned by a user.
type Account struct {
	Base
	UserID           string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Name             string          `gorm:"size:100;not null" json:"account_name"`
	Type             AccountType     `gorm:"size:20;not null" json:"account_type"`
	BankName         string          `gorm:"size:100" json:"bank_name"`
	MaskedNumber     string          `gorm:"column:account_number_masked;size:20" json:"account_number_masked"`
	Currency         string          `gorm:"size:3;not null;default:'GBP'" json:"currency"`
	Balance          decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"current_balance"`
	IsActive         bool            `gorm:"not null;default:true" json:"is_active"`
	TransactionCount int64           `gorm:"->;-:migration" json:"transaction_count"`
}

// BalanceFloor is the lowest balance the account may hold.
func (a *Account) BalanceFloor() decimal.Decimal {
	if a.Type == AccountTypeCredit {
		return CreditFloor
	}
	return decimal.Zero
}

// ValidOpeningBalance reports whether balance is acceptable for a new account
// of this type. Credit accounts open at zero or below, others at zero or above.
func (a *Account) ValidOpeningBalance(balance decimal.Decimal) bool {
	if balance.LessThan(CreditFloor) || balance.GreaterThan(MaxBalance) {
		return false
	}
	if a.Type == AccountTypeCredit {
		return !balance.IsPositive()
	}
	return !balance.IsNegative()
}
