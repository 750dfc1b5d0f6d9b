package models

// CategoryType represents the type of category
type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
)

// Valid reports whether t is a known category type.
func (t CategoryType) Valid() bool {
	return t == CategoryTypeIncome || t == CategoryTypeExpense
}

// TransferCategoryName is the category attached to both legs of a transfer.
const TransferCategoryName = "Transfer"

// Category groups transactions of one type for a user.
type Category struct {
	Base
	UserID           string       `gorm:"type:uuid;not null;uniqueIndex:idx_categories_user_name_type,where:deleted_at IS NULL" json:"user_id"`
	Name             string       `gorm:"size:50;not null;uniqueIndex:idx_categories_user_name_type,where:deleted_at IS NULL" json:"category_name"`
	Type             CategoryType `gorm:"size:10;not null;uniqueIndex:idx_categories_user_name_type,where:deleted_at IS NULL" json:"category_type"`
	IsDefault        bool         `gorm:"not null;default:false" json:"is_default"`
	IsActive         bool         `gorm:"not null;default:true" json:"is_active"`
	TransactionCount int64        `gorm:"->;-:migration" json:"transaction_count"`
}
