package services

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
	"budgetbox/internal/pagination"
)

const (
	categoryTransactionCountSQL = "(SELECT COUNT(*) FROM transactions t WHERE t.category_id = categories.id AND t.deleted_at IS NULL) AS transaction_count"
	categoryHasTransactionsSQL  = "EXISTS (SELECT 1 FROM transactions t WHERE t.category_id = categories.id AND t.deleted_at IS NULL)"

	defaultUsageDays = 30
	maxUsageDays     = 365
)

// defaultCategories are created by SetDefaultCategories.
var defaultCategories = []struct {
	Name string
	Type models.CategoryType
}{
	{"Salary", models.CategoryTypeIncome},
	{"Freelance", models.CategoryTypeIncome},
	{"Investment", models.CategoryTypeIncome},
	{"Other Income", models.CategoryTypeIncome},
	{"Housing", models.CategoryTypeExpense},
	{"Food", models.CategoryTypeExpense},
	{"Transport", models.CategoryTypeExpense},
	{"Utilities", models.CategoryTypeExpense},
	{"Healthcare", models.CategoryTypeExpense},
	{"Entertainment", models.CategoryTypeExpense},
	{"Shopping", models.CategoryTypeExpense},
	{"Other Expense", models.CategoryTypeExpense},
}

var categoryOrdering = pagination.Ordering{
	Allowed: map[string]string{
		"category_name":     "categories.name",
		"category_type":     "categories.type",
		"created_at":        "categories.created_at",
		"transaction_count": "transaction_count",
	},
	Fallback: "categories.type ASC, categories.name ASC",
}

// categoryService handles category-related business logic.
type categoryService struct {
	db     *gorm.DB
	ledger *LedgerCache
	now    func() time.Time
}

// NewCategoryService creates a new CategoryServicer.
func NewCategoryService(db *gorm.DB, ledger *LedgerCache) CategoryServicer {
	return &categoryService{db: db, ledger: ledger, now: time.Now}
}

// normalizeCategoryName title-cases name and checks its length.
func normalizeCategoryName(name string) (string, error) {
	name = titleCase(name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 50 {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "category name must be 2-50 characters")
	}
	return name, nil
}

// CreateCategory creates a category for the user.
func (s *categoryService) CreateCategory(ctx context.Context, userID string, input CreateCategoryInput) (*models.Category, error) {
	name, err := normalizeCategoryName(input.Name)
	if err != nil {
		return nil, err
	}
	if !input.Type.Valid() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown category type")
	}

	db := s.db.WithContext(ctx)
	if err := s.ensureUniqueName(db, userID, name, input.Type, ""); err != nil {
		return nil, err
	}

	category := &models.Category{
		UserID:   userID,
		Name:     name,
		Type:     input.Type,
		IsActive: true,
	}
	if err := db.Create(category).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return category, nil
}

func (s *categoryService) ensureUniqueName(db *gorm.DB, userID, name string, categoryType models.CategoryType, exceptID string) error {
	q := db.Model(&models.Category{}).Where("user_id = ? AND name = ? AND type = ?", userID, name, categoryType)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return apperrors.ErrDuplicateCategory
	}
	return nil
}

// ListCategories retrieves a filtered, paginated list of the user's categories.
func (s *categoryService) ListCategories(ctx context.Context, userID string, filter CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	page.Defaults()

	base := s.db.WithContext(ctx).Model(&models.Category{}).Where("categories.user_id = ?", userID)
	if filter.Type != nil {
		base = base.Where("categories.type = ?", *filter.Type)
	}
	if filter.IsActive != nil {
		base = base.Where("categories.is_active = ?", *filter.IsActive)
	}
	if filter.HasTransactions != nil {
		if *filter.HasTransactions {
			base = base.Where(categoryHasTransactionsSQL)
		} else {
			base = base.Where("NOT " + categoryHasTransactionsSQL)
		}
	}
	if filter.Search != "" {
		base = base.Where("LOWER(categories.name) LIKE ?", likePattern(filter.Search))
	}
	base = base.Session(&gorm.Session{})

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var categories []models.Category
	err := base.Select("categories.*, " + categoryTransactionCountSQL).
		Order(categoryOrdering.Clause(filter.Ordering)).
		Scopes(pagination.Paginate(page)).
		Find(&categories).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(categories, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetCategoryByID retrieves a category by ID for a specific user.
func (s *categoryService) GetCategoryByID(ctx context.Context, userID, categoryID string) (*models.Category, error) {
	var category models.Category
	err := s.db.WithContext(ctx).
		Select("categories.*, "+categoryTransactionCountSQL).
		Where("categories.id = ? AND categories.user_id = ?", categoryID, userID).
		First(&category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

// UpdateCategory renames, retypes, or toggles a category. The type is fixed
// while transactions use the category.
func (s *categoryService) UpdateCategory(ctx context.Context, userID, categoryID string, fields CategoryUpdateFields) (*models.Category, error) {
	category, err := s.GetCategoryByID(ctx, userID, categoryID)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	updates := make(map[string]interface{})

	name, categoryType := category.Name, category.Type
	if fields.Name != nil {
		if name, err = normalizeCategoryName(*fields.Name); err != nil {
			return nil, err
		}
	}
	if fields.Type != nil && *fields.Type != category.Type {
		if !fields.Type.Valid() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown category type")
		}
		if category.TransactionCount > 0 {
			return nil, apperrors.WithMessage(apperrors.ErrCategoryInUse, "category type cannot change while transactions use it")
		}
		categoryType = *fields.Type
		updates["type"] = categoryType
	}
	if name != category.Name || categoryType != category.Type {
		if err := s.ensureUniqueName(db, userID, name, categoryType, category.ID); err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if fields.IsActive != nil {
		updates["is_active"] = *fields.IsActive
	}

	if len(updates) == 0 {
		return category, nil
	}
	if err := db.Model(&models.Category{}).Where("id = ?", category.ID).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.ledger.InvalidateUser(ctx, userID)
	return s.GetCategoryByID(ctx, userID, categoryID)
}

// DeleteCategory soft-deletes a custom category that nothing references.
// The usage checks and the delete run under the category row lock.
func (s *categoryService) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		category, err := lockCategory(tx, userID, categoryID)
		if err != nil {
			return err
		}
		if category.IsDefault {
			return apperrors.ErrDefaultCategory
		}

		var used int64
		if err := tx.Model(&models.Transaction{}).Where("category_id = ?", category.ID).Count(&used).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if used > 0 {
			return apperrors.ErrCategoryInUse
		}

		var budgets int64
		if err := tx.Model(&models.Budget{}).Where("category_id = ? AND is_active = ?", category.ID, true).Count(&budgets).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if budgets > 0 {
			return apperrors.WithMessage(apperrors.ErrCategoryInUse, "category is used by active budgets")
		}

		if err := tx.Delete(&models.Category{}, "id = ?", category.ID).Error; err != nil {
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

// GetCategoryUsage summarizes a category's transactions over the trailing window.
func (s *categoryService) GetCategoryUsage(ctx context.Context, userID, categoryID string, days int) (*CategoryUsage, error) {
	if days <= 0 {
		days = defaultUsageDays
	}
	if days > maxUsageDays {
		days = maxUsageDays
	}

	category, err := s.GetCategoryByID(ctx, userID, categoryID)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	today := models.DateOnly(s.now())
	start := today.AddDate(0, 0, -(days - 1))

	usage := &CategoryUsage{
		Category:    category,
		Days:        days,
		PeriodStart: start.Format(time.DateOnly),
	}

	scoped := func() *gorm.DB {
		return db.Model(&models.Transaction{}).Where("user_id = ? AND category_id = ? AND date >= ?", userID, category.ID, start)
	}

	var totals struct {
		Total decimal.Decimal
		Count int64
	}
	if err := scoped().Select(sqlSum("amount") + " AS total, COUNT(*) AS count").Scan(&totals).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	usage.TotalAmount = totals.Total.Round(2)
	usage.TransactionCount = totals.Count
	usage.AverageAmount = averageOf(usage.TotalAmount, totals.Count)

	month := monthExpr(db, "date")
	err = scoped().
		Select(month + " AS month, " + sqlSum("amount") + " AS total, COUNT(*) AS count").
		Group(month).
		Order("month ASC").
		Scan(&usage.MonthlyBreakdown).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range usage.MonthlyBreakdown {
		usage.MonthlyBreakdown[i].Total = usage.MonthlyBreakdown[i].Total.Round(2)
	}

	if err := scoped().Order("date DESC, created_at DESC").Limit(recentActivityLimit).Find(&usage.RecentTransactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	err = db.Model(&models.Budget{}).
		Where("user_id = ? AND category_id = ? AND is_active = ?", userID, category.ID, true).
		Count(&usage.ActiveBudgets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return usage, nil
}

// SetDefaultCategories creates the standard category set once per user.
// Names the user already has for the same type are skipped.
func (s *categoryService) SetDefaultCategories(ctx context.Context, userID string) ([]models.Category, error) {
	var created []models.Category

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var defaults int64
		if err := tx.Model(&models.Category{}).Where("user_id = ? AND is_default = ?", userID, true).Count(&defaults).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if defaults > 0 {
			return apperrors.ErrDefaultsExist
		}

		var existing []models.Category
		if err := tx.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		taken := make(map[string]bool, len(existing))
		for _, c := range existing {
			taken[string(c.Type)+"/"+c.Name] = true
		}

		for _, d := range defaultCategories {
			if taken[string(d.Type)+"/"+d.Name] {
				continue
			}
			created = append(created, models.Category{
				UserID:    userID,
				Name:      d.Name,
				Type:      d.Type,
				IsDefault: true,
				IsActive:  true,
			})
		}
		if len(created) == 0 {
			return nil
		}
		if err := tx.Create(&created).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = []models.Category{}
	}
	return created, nil
}

// ReassignTransactions moves every transaction from source to target and
// deactivates source. Both categories must share a type.
func (s *categoryService) ReassignTransactions(ctx context.Context, userID, sourceID, targetID string) (*ReassignResult, error) {
	if sourceID == targetID {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "target category must differ from the source")
	}

	result := &ReassignResult{SourceCategoryID: sourceID, TargetCategoryID: targetID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := findOwnedCategory(tx, userID, sourceID)
		if err != nil {
			return err
		}
		target, err := findOwnedCategory(tx, userID, targetID)
		if err != nil {
			return err
		}
		if source.Type != target.Type {
			return apperrors.ErrCategoryTypeMismatch
		}
		if !target.IsActive {
			return apperrors.ErrCategoryInactive
		}

		moved := tx.Model(&models.Transaction{}).
			Where("user_id = ? AND category_id = ?", userID, source.ID).
			Update("category_id", target.ID)
		if moved.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, moved.Error)
		}
		result.Reassigned = moved.RowsAffected

		if err := tx.Model(&models.Category{}).Where("id = ?", source.ID).Update("is_active", false).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		result.SourceDeactivated = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateUser(ctx, userID)
	return result, nil
}
