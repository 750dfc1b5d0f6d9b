package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
)

var hundred = decimal.NewFromInt(100)

// lockAccount loads the caller's account row FOR UPDATE inside tx.
func lockAccount(tx *gorm.DB, userID, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", accountID, userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// lockCategory reads the user's category with SELECT ... FOR UPDATE.
func lockCategory(tx *gorm.DB, userID, categoryID string) (*models.Category, error) {
	return findOwnedCategory(tx.Clauses(clause.Locking{Strength: "UPDATE"}), userID, categoryID)
}

// adjustBalance adds delta to the account balance with a guarded UPDATE.
// The WHERE clause keeps the result within [floor, MaxBalance]; when it
// matches no row the change is refused. On success account.Balance holds
// the stored value.
func adjustBalance(tx *gorm.DB, account *models.Account, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}

	result := tx.Model(&models.Account{}).
		Where("id = ?", account.ID).
		Where("balance + CAST(? AS NUMERIC) >= CAST(? AS NUMERIC)", delta, account.BalanceFloor()).
		Where("balance + CAST(? AS NUMERIC) <= CAST(? AS NUMERIC)", delta, models.MaxBalance).
		Update("balance", gorm.Expr("balance + CAST(? AS NUMERIC)", delta))
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		if delta.IsNegative() {
			return apperrors.ErrInsufficientFunds
		}
		return apperrors.ErrBalanceLimitExceeded
	}

	var balance decimal.Decimal
	if err := tx.Model(&models.Account{}).Select("balance").Where("id = ?", account.ID).Scan(&balance).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	account.Balance = models.RoundMoney(balance)
	return nil
}

// findOwnedCategory loads the caller's category inside tx.
func findOwnedCategory(tx *gorm.DB, userID, categoryID string) (*models.Category, error) {
	var category models.Category
	if err := tx.Where("id = ? AND user_id = ?", categoryID, userID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

// transferCategory returns the user's Transfer expense category, creating it
// on first use.
func transferCategory(tx *gorm.DB, userID string) (*models.Category, error) {
	var category models.Category
	err := tx.Where("user_id = ? AND name = ? AND type = ?", userID, models.TransferCategoryName, models.CategoryTypeExpense).
		First(&category).Error
	if err == nil {
		return &category, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	category = models.Category{
		UserID:   userID,
		Name:     models.TransferCategoryName,
		Type:     models.CategoryTypeExpense,
		IsActive: true,
	}
	if err := tx.Create(&category).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

// sqlSum wraps expr so empty groups aggregate to zero on every dialect.
func sqlSum(expr string) string {
	return "COALESCE(SUM(" + expr + "), 0)"
}

// monthExpr renders column as YYYY-MM for the connected dialect.
func monthExpr(db *gorm.DB, column string) string {
	if db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("to_char(%s, 'YYYY-MM')", column)
	}
	return fmt.Sprintf("strftime('%%Y-%%m', %s)", column)
}

// dayExpr renders column as YYYY-MM-DD for the connected dialect.
func dayExpr(db *gorm.DB, column string) string {
	if db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD')", column)
	}
	return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
}

// likePattern builds a case-insensitive contains pattern for LOWER(col) LIKE ?.
func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func monthEnd(t time.Time) time.Time {
	return monthStart(t).AddDate(0, 1, -1)
}

// monthKeys lists every YYYY-MM from the month of from to the month of to.
func monthKeys(from, to time.Time) []string {
	var keys []string
	for m := monthStart(from); !m.After(to); m = m.AddDate(0, 1, 0) {
		keys = append(keys, m.Format("2006-01"))
	}
	return keys
}

// daysBetween counts whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(models.DateOnly(b).Sub(models.DateOnly(a)).Hours() / 24)
}

// percentOf returns part/whole*100 rounded to 2 dp, or zero for a zero whole.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

// averageOf returns total/count rounded to 2 dp, or zero for no rows.
func averageOf(total decimal.Decimal, count int64) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(count)).Round(2)
}

// titleCase normalizes a category name: trimmed, single-spaced, each word
// capitalized.
func titleCase(name string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(name), " "))
}
