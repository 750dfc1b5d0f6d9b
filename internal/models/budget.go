package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetPeriod represents the period type for a budget
type BudgetPeriod string

const (
	BudgetPeriodWeekly    BudgetPeriod = "weekly"
	BudgetPeriodMonthly   BudgetPeriod = "monthly"
	BudgetPeriodQuarterly BudgetPeriod = "quarterly"
	BudgetPeriodYearly    BudgetPeriod = "yearly"
)

// Valid reports whether p is a known budget period.
func (p BudgetPeriod) Valid() bool {
	switch p {
	case BudgetPeriodWeekly, BudgetPeriodMonthly, BudgetPeriodQuarterly, BudgetPeriodYearly:
		return true
	}
	return false
}

// Budget represents a spending limit for an expense category over a date range.
type Budget struct {
	Base
	UserID     string          `gorm:"type:uuid;not null;index:idx_budgets_user_category" json:"user_id"`
	CategoryID string          `gorm:"type:uuid;not null;index:idx_budgets_user_category" json:"category_id"`
	Name       string          `gorm:"size:100;not null" json:"budget_name"`
	Amount     decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"budget_amount"`
	PeriodType BudgetPeriod    `gorm:"size:10;not null" json:"period_type"`
	StartDate  time.Time       `gorm:"type:date;not null" json:"start_date"`
	EndDate    time.Time       `gorm:"type:date;not null" json:"end_date"`
	IsActive   bool            `gorm:"not null;default:true" json:"is_active"`
	Spent      decimal.Decimal `gorm:"->;-:migration" json:"spent"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// Overlaps reports whether the budget's date range intersects [start, end].
func (b *Budget) Overlaps(start, end time.Time) bool {
	return !b.StartDate.After(end) && !b.EndDate.Before(start)
}
