package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
	"budgetbox/internal/pagination"
)

const maxBulkCategorize = 500

var transactionOrdering = pagination.Ordering{
	Allowed: map[string]string{
		"transaction_date":        "transactions.date",
		"transaction_amount":      "transactions.amount",
		"transaction_description": "transactions.description",
		"created_at":              "transactions.created_at",
	},
	Fallback: "transactions.date DESC, transactions.created_at DESC",
}

// transactionService handles transaction-related business logic.
type transactionService struct {
	db     *gorm.DB
	ledger *LedgerCache
	now    func() time.Time
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB, ledger *LedgerCache) TransactionServicer {
	return &transactionService{db: db, ledger: ledger, now: time.Now}
}

// validateDate accepts dates from two years back to one day ahead.
func (s *transactionService) validateDate(date time.Time) error {
	today := models.DateOnly(s.now())
	if date.After(today.AddDate(0, 0, 1)) {
		return apperrors.WithMessage(apperrors.ErrInvalidDate, "transaction date cannot be more than 1 day in the future")
	}
	if date.Before(today.AddDate(-2, 0, 0)) {
		return apperrors.WithMessage(apperrors.ErrInvalidDate, "transaction date cannot be more than 2 years in the past")
	}
	return nil
}

func validateDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if n := utf8.RuneCountInString(description); n < 2 || n > 255 {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "transaction description must be 2-255 characters")
	}
	return description, nil
}

// checkCategory locks an active category of the user whose type fits txType.
// The lock keeps a concurrent DeleteCategory from missing the new row.
func checkCategory(tx *gorm.DB, userID, categoryID string, txType models.TransactionType) (*models.Category, error) {
	category, err := lockCategory(tx, userID, categoryID)
	if err != nil {
		return nil, err
	}
	if !category.IsActive {
		return nil, apperrors.ErrCategoryInactive
	}
	if txType != models.TransactionTypeTransfer && string(category.Type) != string(txType) {
		return nil, apperrors.ErrCategoryTypeMismatch
	}
	return category, nil
}

// CreateTransaction records an income or expense and applies it to the
// account balance in the same database transaction.
func (s *transactionService) CreateTransaction(ctx context.Context, userID string, input CreateTransactionInput) (*models.Transaction, error) {
	transaction, err := s.create(ctx, userID, input)
	if err != nil {
		return nil, err
	}
	s.ledger.InvalidateUser(ctx, userID)
	return s.GetTransactionByID(ctx, userID, transaction.ID)
}

func (s *transactionService) create(ctx context.Context, userID string, input CreateTransactionInput) (*models.Transaction, error) {
	switch input.Type {
	case models.TransactionTypeIncome, models.TransactionTypeExpense:
	case models.TransactionTypeTransfer:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTransactionType, "transfers are created through the account transfer endpoint")
	default:
		return nil, apperrors.ErrInvalidTransactionType
	}

	amount := models.RoundMoney(input.Amount)
	if !models.ValidAmount(amount) {
		return nil, apperrors.ErrInvalidAmount
	}
	description, err := validateDescription(input.Description)
	if err != nil {
		return nil, err
	}

	date := models.DateOnly(input.Date)
	if input.Date.IsZero() {
		date = models.DateOnly(s.now())
	}
	if err := s.validateDate(date); err != nil {
		return nil, err
	}

	transaction := &models.Transaction{
		UserID:      userID,
		AccountID:   input.AccountID,
		Description: description,
		Type:        input.Type,
		Amount:      amount,
		Date:        date,
		Note:        strings.TrimSpace(input.Note),
		Reference:   strings.ToUpper(strings.TrimSpace(input.Reference)),
		IsRecurring: input.IsRecurring,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, userID, input.AccountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return apperrors.ErrAccountInactive
		}

		if input.CategoryID != nil && *input.CategoryID != "" {
			category, err := checkCategory(tx, userID, *input.CategoryID, input.Type)
			if err != nil {
				return err
			}
			transaction.CategoryID = &category.ID
		}

		if err := tx.Create(transaction).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return adjustBalance(tx, account, transaction.SignedAmount())
	})
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// ListTransactions retrieves a filtered, paginated list of the user's transactions.
func (s *transactionService) ListTransactions(ctx context.Context, userID string, filter TransactionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	base := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("transactions.user_id = ?", userID)
	if filter.AccountID != nil {
		base = base.Where("transactions.account_id = ?", *filter.AccountID)
	}
	if filter.CategoryID != nil {
		base = base.Where("transactions.category_id = ?", *filter.CategoryID)
	}
	if filter.Type != nil {
		base = base.Where("transactions.type = ?", *filter.Type)
	}
	if filter.DateFrom != nil {
		base = base.Where("transactions.date >= ?", models.DateOnly(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		base = base.Where("transactions.date <= ?", models.DateOnly(*filter.DateTo))
	}
	if filter.MinAmount != nil {
		base = base.Where("transactions.amount >= ?", filter.MinAmount.Abs())
	}
	if filter.IsRecurring != nil {
		base = base.Where("transactions.is_recurring = ?", *filter.IsRecurring)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		base = base.Where("LOWER(transactions.description) LIKE ? OR LOWER(transactions.note) LIKE ? OR LOWER(transactions.reference) LIKE ?", pattern, pattern, pattern)
	}
	base = base.Session(&gorm.Session{})

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	err := base.Preload("Category").
		Order(transactionOrdering.Clause(filter.Ordering)).
		Scopes(pagination.Paginate(page)).
		Find(&transactions).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetTransactionByID retrieves a transaction by ID for a specific user
func (s *transactionService) GetTransactionByID(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := s.db.WithContext(ctx).Preload("Account").Preload("Category").
		Where("id = ? AND user_id = ?", transactionID, userID).
		First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

func findOwnedTransaction(tx *gorm.DB, userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := tx.Where("id = ? AND user_id = ?", transactionID, userID).First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

// lockAccounts locks the distinct accounts in id order.
func lockAccounts(tx *gorm.DB, userID string, ids ...string) (map[string]*models.Account, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Strings(unique)

	locked := make(map[string]*models.Account, len(unique))
	for _, id := range unique {
		account, err := lockAccount(tx, userID, id)
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}
	return locked, nil
}

// UpdateTransaction edits an income or expense. The old balance effect is
// reversed and the new one applied atomically, so moving between accounts
// or changing the amount keeps every balance consistent.
func (s *transactionService) UpdateTransaction(ctx context.Context, userID, transactionID string, fields TransactionUpdateFields) (*models.Transaction, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findOwnedTransaction(tx, userID, transactionID)
		if err != nil {
			return err
		}
		if existing.Type == models.TransactionTypeTransfer {
			return apperrors.ErrTransactionNotEditable
		}

		updated := *existing
		if fields.Type != nil {
			if *fields.Type != models.TransactionTypeIncome && *fields.Type != models.TransactionTypeExpense {
				return apperrors.ErrInvalidTransactionType
			}
			updated.Type = *fields.Type
		}
		if fields.Amount != nil {
			updated.Amount = models.RoundMoney(*fields.Amount)
			if !models.ValidAmount(updated.Amount) {
				return apperrors.ErrInvalidAmount
			}
		}
		if fields.Description != nil {
			if updated.Description, err = validateDescription(*fields.Description); err != nil {
				return err
			}
		}
		if fields.Date != nil {
			updated.Date = models.DateOnly(*fields.Date)
			if err := s.validateDate(updated.Date); err != nil {
				return err
			}
		}
		if fields.Note != nil {
			updated.Note = strings.TrimSpace(*fields.Note)
		}
		if fields.Reference != nil {
			updated.Reference = strings.ToUpper(strings.TrimSpace(*fields.Reference))
		}
		if fields.IsRecurring != nil {
			updated.IsRecurring = *fields.IsRecurring
		}
		if fields.AccountID != nil {
			updated.AccountID = *fields.AccountID
		}

		switch {
		case fields.ClearCategory:
			updated.CategoryID = nil
		case fields.CategoryID != nil && *fields.CategoryID != "":
			category, err := checkCategory(tx, userID, *fields.CategoryID, updated.Type)
			if err != nil {
				return err
			}
			updated.CategoryID = &category.ID
		case updated.CategoryID != nil && updated.Type != existing.Type:
			if _, err := checkCategory(tx, userID, *updated.CategoryID, updated.Type); err != nil {
				return err
			}
		}

		accounts, err := lockAccounts(tx, userID, existing.AccountID, updated.AccountID)
		if err != nil {
			return err
		}
		target := accounts[updated.AccountID]
		if updated.AccountID != existing.AccountID {
			if !target.IsActive {
				return apperrors.ErrAccountInactive
			}
			if err := adjustBalance(tx, accounts[existing.AccountID], existing.SignedAmount().Neg()); err != nil {
				return err
			}
			if err := adjustBalance(tx, target, updated.SignedAmount()); err != nil {
				return err
			}
		} else if err := adjustBalance(tx, target, updated.SignedAmount().Sub(existing.SignedAmount())); err != nil {
			return err
		}

		err = tx.Model(&models.Transaction{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"account_id":   updated.AccountID,
			"category_id":  updated.CategoryID,
			"description":  updated.Description,
			"type":         updated.Type,
			"amount":       updated.Amount,
			"date":         updated.Date,
			"note":         updated.Note,
			"reference":    updated.Reference,
			"is_recurring": updated.IsRecurring,
		}).Error
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateUser(ctx, userID)
	return s.GetTransactionByID(ctx, userID, transactionID)
}

// DeleteTransaction removes a transaction and reverses its balance effect.
// Deleting either leg of a transfer removes both legs.
func (s *transactionService) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findOwnedTransaction(tx, userID, transactionID)
		if err != nil {
			return err
		}

		legs := []*models.Transaction{existing}
		if existing.Type == models.TransactionTypeTransfer && existing.LinkedTransactionID != nil {
			linked, err := findOwnedTransaction(tx, userID, *existing.LinkedTransactionID)
			if err != nil && !errors.Is(err, apperrors.ErrTransactionNotFound) {
				return err
			}
			if linked != nil {
				legs = append(legs, linked)
			}
		}

		ids := make([]string, 0, len(legs))
		accountIDs := make([]string, 0, len(legs))
		for _, leg := range legs {
			ids = append(ids, leg.ID)
			accountIDs = append(accountIDs, leg.AccountID)
		}
		accounts, err := lockAccounts(tx, userID, accountIDs...)
		if err != nil {
			return err
		}

		// Reverse credits to the receiving account before refunding the sender.
		sort.SliceStable(legs, func(i, j int) bool {
			return legs[i].SignedAmount().IsPositive() && !legs[j].SignedAmount().IsPositive()
		})
		for _, leg := range legs {
			if err := adjustBalance(tx, accounts[leg.AccountID], leg.SignedAmount().Neg()); err != nil {
				return err
			}
		}

		if err := tx.Where("id IN ?", ids).Delete(&models.Transaction{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.ledger.InvalidateUser(ctx, userID)
	return nil
}

// BulkCategorize assigns one category to many transactions. Every id must
// belong to the user and every non-transfer must match the category type.
func (s *transactionService) BulkCategorize(ctx context.Context, userID string, transactionIDs []string, categoryID string) (*BulkCategorizeResult, error) {
	ids := make([]string, 0, len(transactionIDs))
	seen := make(map[string]bool, len(transactionIDs))
	for _, id := range transactionIDs {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "transaction_ids must not be empty")
	}
	if len(ids) > maxBulkCategorize {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "too many transactions in one request")
	}

	result := &BulkCategorizeResult{CategoryID: categoryID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		category, err := findOwnedCategory(tx, userID, categoryID)
		if err != nil {
			return err
		}
		if !category.IsActive {
			return apperrors.ErrCategoryInactive
		}

		var transactions []models.Transaction
		if err := tx.Where("user_id = ? AND id IN ?", userID, ids).Find(&transactions).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if len(transactions) != len(ids) {
			return apperrors.WithMessage(apperrors.ErrTransactionNotFound, "one or more transactions were not found")
		}
		for _, t := range transactions {
			if t.Type != models.TransactionTypeTransfer && string(t.Type) != string(category.Type) {
				return apperrors.ErrCategoryTypeMismatch
			}
		}

		updated := tx.Model(&models.Transaction{}).Where("user_id = ? AND id IN ?", userID, ids).Update("category_id", category.ID)
		if updated.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, updated.Error)
		}
		result.Updated = updated.RowsAffected
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateUser(ctx, userID)
	return result, nil
}

// DuplicateTransaction copies an income or expense to date, today when nil,
// and applies the copy to the account balance.
func (s *transactionService) DuplicateTransaction(ctx context.Context, userID, transactionID string, date *time.Time) (*models.Transaction, error) {
	original, err := s.GetTransactionByID(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if original.Type == models.TransactionTypeTransfer {
		return nil, apperrors.WithMessage(apperrors.ErrTransactionNotEditable, "transfers cannot be duplicated")
	}

	description := "Copy of " + original.Description
	if utf8.RuneCountInString(description) > 255 {
		description = string([]rune(description)[:255])
	}

	input := CreateTransactionInput{
		AccountID:   original.AccountID,
		CategoryID:  original.CategoryID,
		Description: description,
		Type:        original.Type,
		Amount:      original.Amount,
		Note:        original.Note,
		IsRecurring: original.IsRecurring,
	}
	if date != nil {
		input.Date = *date
	}

	copied, err := s.create(ctx, userID, input)
	if err != nil {
		return nil, err
	}
	s.ledger.InvalidateUser(ctx, userID)
	return s.GetTransactionByID(ctx, userID, copied.ID)
}
