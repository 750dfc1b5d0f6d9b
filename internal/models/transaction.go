package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "income"
	TransactionTypeExpense  TransactionType = "expense"
	TransactionTypeTransfer TransactionType = "transfer"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeTransfer:
		return true
	}
	return false
}

// TransferDirection marks which leg of a transfer a transaction is.
type TransferDirection string

const (
	TransferOut TransferDirection = "out"
	TransferIn  TransferDirection = "in"
)

// Transaction is a single ledger entry against one account.
// Amount is always positive; SignedAmount gives its effect on the balance.
type Transaction struct {
	Base
	UserID              string            `gorm:"type:uuid;not null;index:idx_transactions_user_date" json:"user_id"`
	AccountID           string            `gorm:"type:uuid;not null;index" json:"account_id"`
	CategoryID          *string           `gorm:"type:uuid;index" json:"category_id"`
	Description         string            `gorm:"size:255;not null" json:"transaction_description"`
	Type                TransactionType   `gorm:"size:10;not null" json:"transaction_type"`
	Amount              decimal.Decimal   `gorm:"type:numeric(15,2);not null" json:"transaction_amount"`
	Date                time.Time         `gorm:"type:date;not null;index:idx_transactions_user_date" json:"transaction_date"`
	Note                string            `json:"transaction_note"`
	Reference           string            `gorm:"size:100" json:"reference_number"`
	IsRecurring         bool              `gorm:"not null;default:false" json:"is_recurring"`
	TransferDirection   TransferDirection `gorm:"size:3" json:"transfer_direction,omitempty"`
	LinkedTransactionID *string           `gorm:"type:uuid" json:"linked_transaction_id,omitempty"`

	Account  *Account  `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// SignedAmount returns the amount as it applies to the account balance.
func (t *Transaction) SignedAmount() decimal.Decimal {
	return SignedAmount(t.Type, t.TransferDirection, t.Amount)
}

// SignedAmount returns amount positive for money in and negative for money out.
func SignedAmount(txType TransactionType, direction TransferDirection, amount decimal.Decimal) decimal.Decimal {
	switch {
	case txType == TransactionTypeIncome:
		return amount
	case txType == TransactionTypeTransfer && direction == TransferIn:
		return amount
	default:
		return amount.Neg()
	}
}
