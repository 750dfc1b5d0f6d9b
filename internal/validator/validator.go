// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"reflect"
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"budgetbox/internal/models"
)

var maskedAccountRegex = regexp.MustCompile(`^\*{4}\d{4}$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
		_ = v.RegisterValidation("currency", validateCurrency)
		_ = v.RegisterValidation("masked_account", validateMaskedAccount)
		_ = v.RegisterValidation("transaction_type", validateTransactionType)
		_ = v.RegisterValidation("category_type", validateCategoryType)
		_ = v.RegisterValidation("account_type", validateAccountType)
		_ = v.RegisterValidation("budget_period", validateBudgetPeriod)
		_ = v.RegisterValidation("period_shift", validatePeriodShift)
		_ = v.RegisterValidation("budget_template", validateBudgetTemplate)
	}
}

// decimalValue lets numeric tags such as gt and lte apply to decimal fields.
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return nil
}

func validateCurrency(fl validator.FieldLevel) bool {
	return models.SupportedCurrencies[fl.Field().String()]
}

func validateMaskedAccount(fl validator.FieldLevel) bool {
	return maskedAccountRegex.MatchString(fl.Field().String())
}

func validateTransactionType(fl validator.FieldLevel) bool {
	return models.TransactionType(fl.Field().String()).Valid()
}

func validateCategoryType(fl validator.FieldLevel) bool {
	return models.CategoryType(fl.Field().String()).Valid()
}

func validateAccountType(fl validator.FieldLevel) bool {
	return models.AccountType(fl.Field().String()).Valid()
}

func validateBudgetPeriod(fl validator.FieldLevel) bool {
	return models.BudgetPeriod(fl.Field().String()).Valid()
}

func validatePeriodShift(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "next", "custom":
		return true
	}
	return false
}

func validateBudgetTemplate(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "essential", "comprehensive":
		return true
	}
	return false
}
