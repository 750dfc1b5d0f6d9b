package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
	"budgetbox/internal/pagination"
)

const (
	budgetSpentSQL = "COALESCE((SELECT SUM(t.amount) FROM transactions t" +
		" WHERE t.user_id = budgets.user_id AND t.category_id = budgets.category_id" +
		" AND t.type = 'expense' AND t.deleted_at IS NULL" +
		" AND t.date >= budgets.start_date AND t.date <= budgets.end_date), 0)"

	maxBudgetSpanDays = 366
)

var budgetOrdering = pagination.Ordering{
	Allowed: map[string]string{
		"budget_name":   "budgets.name",
		"budget_amount": "budgets.amount",
		"start_date":    "budgets.start_date",
		"end_date":      "budgets.end_date",
		"created_at":    "budgets.created_at",
		"spent":         "spent",
	},
	Fallback: "budgets.start_date DESC, budgets.name ASC",
}

// budgetTemplateItem names a category by preference order with its default amount.
type budgetTemplateItem struct {
	Categories []string
	Amount     decimal.Decimal
}

var essentialTemplate = []budgetTemplateItem{
	{[]string{"Housing", "Rent/Mortgage"}, decimal.NewFromInt(1500)},
	{[]string{"Food", "Groceries"}, decimal.NewFromInt(400)},
	{[]string{"Transport"}, decimal.NewFromInt(200)},
	{[]string{"Utilities"}, decimal.NewFromInt(150)},
	{[]string{"Council Tax"}, decimal.NewFromInt(150)},
}

var budgetTemplates = map[string][]budgetTemplateItem{
	"essential": essentialTemplate,
	"comprehensive": append(append([]budgetTemplateItem{}, essentialTemplate...),
		budgetTemplateItem{[]string{"Healthcare", "Health & Fitness"}, decimal.NewFromInt(100)},
		budgetTemplateItem{[]string{"Entertainment"}, decimal.NewFromInt(200)},
		budgetTemplateItem{[]string{"Eating Out"}, decimal.NewFromInt(300)},
		budgetTemplateItem{[]string{"Shopping"}, decimal.NewFromInt(250)},
	),
}

// budgetService handles budget-related business logic.
type budgetService struct {
	db     *gorm.DB
	ledger *LedgerCache
	now    func() time.Time
}

// NewBudgetService creates a new BudgetServicer.
func NewBudgetService(db *gorm.DB, ledger *LedgerCache) BudgetServicer {
	return &budgetService{db: db, ledger: ledger, now: time.Now}
}

func (s *budgetService) today() time.Time {
	return models.DateOnly(s.now())
}

// validateBudget checks the budget's own fields. Overlap and category rules
// need the database and are checked by the writers.
func (s *budgetService) validateBudget(b *models.Budget, checkStartWindow bool) error {
	name := strings.TrimSpace(b.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "budget name must be 2-100 characters")
	}
	b.Name = name

	b.Amount = models.RoundMoney(b.Amount)
	if !models.ValidAmount(b.Amount) {
		return apperrors.ErrInvalidAmount
	}
	if !b.PeriodType.Valid() {
		return apperrors.ErrInvalidBudgetPeriod
	}

	b.StartDate, b.EndDate = models.DateOnly(b.StartDate), models.DateOnly(b.EndDate)
	if !b.EndDate.After(b.StartDate) {
		return apperrors.WithMessage(apperrors.ErrInvalidDate, "end_date must be after start_date")
	}
	if daysBetween(b.StartDate, b.EndDate) > maxBudgetSpanDays {
		return apperrors.WithMessage(apperrors.ErrInvalidDate, "budget period cannot exceed 366 days")
	}
	if checkStartWindow {
		today := s.today()
		if b.StartDate.Before(today.AddDate(-1, 0, 0)) || b.StartDate.After(today.AddDate(1, 0, 0)) {
			return apperrors.WithMessage(apperrors.ErrInvalidDate, "start_date must be within one year of today")
		}
	}
	return nil
}

// lockBudgetCategory locks the category row so concurrent writers for the
// same category serialize their overlap checks.
func lockBudgetCategory(tx *gorm.DB, userID, categoryID string) (*models.Category, error) {
	category, err := lockCategory(tx, userID, categoryID)
	if err != nil {
		return nil, err
	}
	if category.Type != models.CategoryTypeExpense {
		return nil, apperrors.WithMessage(apperrors.ErrCategoryTypeMismatch, "budgets require an expense category")
	}
	if !category.IsActive {
		return nil, apperrors.ErrCategoryInactive
	}
	return category, nil
}

// hasOverlap reports whether another active budget of the category
// intersects [start, end].
func hasOverlap(tx *gorm.DB, userID, categoryID string, start, end time.Time, exceptID string) (bool, error) {
	q := tx.Model(&models.Budget{}).
		Where("user_id = ? AND category_id = ? AND is_active = ?", userID, categoryID, true).
		Where("start_date <= ? AND end_date >= ?", end, start)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count > 0, nil
}

// insertBudget validates b against its category and peers and creates it.
func insertBudget(tx *gorm.DB, b *models.Budget) error {
	if _, err := lockBudgetCategory(tx, b.UserID, b.CategoryID); err != nil {
		return err
	}
	overlap, err := hasOverlap(tx, b.UserID, b.CategoryID, b.StartDate, b.EndDate, "")
	if err != nil {
		return err
	}
	if overlap {
		return apperrors.ErrBudgetOverlap
	}
	if err := tx.Create(b).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// CreateBudget creates an active budget for an expense category.
func (s *budgetService) CreateBudget(ctx context.Context, userID string, input CreateBudgetInput) (*models.Budget, error) {
	budget := &models.Budget{
		UserID:     userID,
		CategoryID: input.CategoryID,
		Name:       input.Name,
		Amount:     input.Amount,
		PeriodType: input.PeriodType,
		StartDate:  input.StartDate,
		EndDate:    input.EndDate,
		IsActive:   true,
	}
	if err := s.validateBudget(budget, true); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertBudget(tx, budget)
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateUser(ctx, userID)
	return s.GetBudgetByID(ctx, userID, budget.ID)
}

// ListBudgets retrieves a filtered, paginated list of the user's budgets,
// each annotated with its spend over the full budget range.
func (s *budgetService) ListBudgets(ctx context.Context, userID string, filter BudgetFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Budget], error) {
	page.Defaults()

	base := s.db.WithContext(ctx).Model(&models.Budget{}).Where("budgets.user_id = ?", userID)
	if filter.IsActive != nil {
		base = base.Where("budgets.is_active = ?", *filter.IsActive)
	}
	if filter.PeriodType != nil {
		base = base.Where("budgets.period_type = ?", *filter.PeriodType)
	}
	if filter.CategoryID != nil {
		base = base.Where("budgets.category_id = ?", *filter.CategoryID)
	}
	if filter.Current != nil {
		today := s.today()
		if *filter.Current {
			base = base.Where("budgets.start_date <= ? AND budgets.end_date >= ?", today, today)
		} else {
			base = base.Where("budgets.start_date > ? OR budgets.end_date < ?", today, today)
		}
	}
	if filter.Exceeded != nil {
		if *filter.Exceeded {
			base = base.Where(budgetSpentSQL + " > budgets.amount")
		} else {
			base = base.Where(budgetSpentSQL + " <= budgets.amount")
		}
	}
	base = base.Session(&gorm.Session{})

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var budgets []models.Budget
	err := base.Select("budgets.*, " + budgetSpentSQL + " AS spent").
		Preload("Category").
		Order(budgetOrdering.Clause(filter.Ordering)).
		Scopes(pagination.Paginate(page)).
		Find(&budgets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range budgets {
		budgets[i].Spent = budgets[i].Spent.Round(2)
	}

	result := pagination.NewPageResponse(budgets, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetBudgetByID retrieves a budget by ID for a specific user
func (s *budgetService) GetBudgetByID(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	var budget models.Budget
	err := s.db.WithContext(ctx).
		Select("budgets.*, "+budgetSpentSQL+" AS spent").
		Preload("Category").
		Where("budgets.id = ? AND budgets.user_id = ?", budgetID, userID).
		First(&budget).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	budget.Spent = budget.Spent.Round(2)
	return &budget, nil
}

func findOwnedBudget(tx *gorm.DB, userID, budgetID string) (*models.Budget, error) {
	var budget models.Budget
	if err := tx.Where("id = ? AND user_id = ?", budgetID, userID).First(&budget).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// UpdateBudget applies changes and re-checks overlap for active budgets.
func (s *budgetService) UpdateBudget(ctx context.Context, userID, budgetID string, fields BudgetUpdateFields) (*models.Budget, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findOwnedBudget(tx, userID, budgetID)
		if err != nil {
			return err
		}

		updated := *existing
		if fields.CategoryID != nil {
			updated.CategoryID = *fields.CategoryID
		}
		if fields.Name != nil {
			updated.Name = *fields.Name
		}
		if fields.Amount != nil {
			updated.Amount = *fields.Amount
		}
		if fields.PeriodType != nil {
			updated.PeriodType = *fields.PeriodType
		}
		if fields.StartDate != nil {
			updated.StartDate = *fields.StartDate
		}
		if fields.EndDate != nil {
			updated.EndDate = *fields.EndDate
		}
		startMoved := fields.StartDate != nil && !models.DateOnly(*fields.StartDate).Equal(existing.StartDate)
		if err := s.validateBudget(&updated, startMoved); err != nil {
			return err
		}

		if updated.CategoryID != existing.CategoryID || updated.IsActive {
			if _, err := lockBudgetCategory(tx, userID, updated.CategoryID); err != nil {
				return err
			}
		}
		if updated.IsActive {
			overlap, err := hasOverlap(tx, userID, updated.CategoryID, updated.StartDate, updated.EndDate, existing.ID)
			if err != nil {
				return err
			}
			if overlap {
				return apperrors.ErrBudgetOverlap
			}
		}

		err = tx.Model(&models.Budget{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"category_id": updated.CategoryID,
			"name":        updated.Name,
			"amount":      updated.Amount,
			"period_type": updated.PeriodType,
			"start_date":  updated.StartDate,
			"end_date":    updated.EndDate,
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
	return s.GetBudgetByID(ctx, userID, budgetID)
}

// DeleteBudget soft-deletes a budget.
func (s *budgetService) DeleteBudget(ctx context.Context, userID, budgetID string) error {
	budget, err := findOwnedBudget(s.db.WithContext(ctx), userID, budgetID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Budget{}, "id = ?", budget.ID).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	s.ledger.InvalidateUser(ctx, userID)
	return nil
}

// CloneBudget copies a budget into the following period or a custom range.
// The copy is named "<name> (Cloned)" and must not overlap another active
// budget of the category.
func (s *budgetService) CloneBudget(ctx context.Context, userID, budgetID string, input CloneBudgetInput) (*models.Budget, error) {
	original, err := findOwnedBudget(s.db.WithContext(ctx), userID, budgetID)
	if err != nil {
		return nil, err
	}

	clone := &models.Budget{
		UserID:     userID,
		CategoryID: original.CategoryID,
		Name:       original.Name + " (Cloned)",
		Amount:     original.Amount,
		PeriodType: original.PeriodType,
		IsActive:   true,
	}
	if utf8.RuneCountInString(clone.Name) > 100 {
		clone.Name = string([]rune(clone.Name)[:100])
	}
	if input.Amount != nil {
		clone.Amount = *input.Amount
	}

	switch input.PeriodShift {
	case "custom":
		if input.StartDate == nil || input.EndDate == nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "start_date and end_date are required for a custom clone")
		}
		clone.StartDate, clone.EndDate = *input.StartDate, *input.EndDate
	case "", "next":
		clone.StartDate = original.EndDate.AddDate(0, 0, 1)
		if original.EndDate.Equal(periodEnd(original.PeriodType, original.StartDate)) {
			clone.EndDate = periodEnd(original.PeriodType, clone.StartDate)
		} else {
			clone.EndDate = clone.StartDate.AddDate(0, 0, daysBetween(original.StartDate, original.EndDate))
		}
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "period_shift must be next or custom")
	}

	if err := s.validateBudget(clone, true); err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertBudget(tx, clone)
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateUser(ctx, userID)
	return s.GetBudgetByID(ctx, userID, clone.ID)
}

// DeactivateBudget marks a budget inactive.
func (s *budgetService) DeactivateBudget(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	return s.setActive(ctx, userID, budgetID, false)
}

// ReactivateBudget marks a budget active again if no other active budget
// of the category overlaps it.
func (s *budgetService) ReactivateBudget(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	return s.setActive(ctx, userID, budgetID, true)
}

func (s *budgetService) setActive(ctx context.Context, userID, budgetID string, active bool) (*models.Budget, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		budget, err := findOwnedBudget(tx, userID, budgetID)
		if err != nil {
			return err
		}
		if budget.IsActive == active {
			return nil
		}
		if active {
			if _, err := lockBudgetCategory(tx, userID, budget.CategoryID); err != nil {
				return err
			}
			overlap, err := hasOverlap(tx, userID, budget.CategoryID, budget.StartDate, budget.EndDate, budget.ID)
			if err != nil {
				return err
			}
			if overlap {
				return apperrors.ErrBudgetOverlap
			}
		}
		if err := tx.Model(&models.Budget{}).Where("id = ?", budget.ID).Update("is_active", active).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateUser(ctx, userID)
	return s.GetBudgetByID(ctx, userID, budgetID)
}

// BulkCreateBudgets creates one budget per template entry whose category the
// user has and that is not already budgeted for the period. Everything else
// is reported as skipped.
func (s *budgetService) BulkCreateBudgets(ctx context.Context, userID string, input BulkCreateInput) (*BulkCreateResult, error) {
	items, ok := budgetTemplates[input.Template]
	if !ok {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "template must be essential or comprehensive")
	}

	period := input.PeriodType
	if period == "" {
		period = models.BudgetPeriodMonthly
	}
	if !period.Valid() {
		return nil, apperrors.ErrInvalidBudgetPeriod
	}
	start := monthStart(s.today())
	if input.StartDate != nil {
		start = models.DateOnly(*input.StartDate)
	}
	end := periodEnd(period, start)
	prefix := titleCase(string(period))

	result := &BulkCreateResult{Created: []models.Budget{}, Skipped: []string{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var categories []models.Category
		err := tx.Where("user_id = ? AND type = ? AND is_active = ?", userID, models.CategoryTypeExpense, true).
			Find(&categories).Error
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		byName := make(map[string]*models.Category, len(categories))
		for i := range categories {
			byName[categories[i].Name] = &categories[i]
		}

		for _, item := range items {
			var category *models.Category
			for _, name := range item.Categories {
				if c, ok := byName[name]; ok {
					category = c
					break
				}
			}
			if category == nil {
				result.Skipped = append(result.Skipped, item.Categories[0])
				continue
			}

			budget := &models.Budget{
				UserID:     userID,
				CategoryID: category.ID,
				Name:       prefix + " " + category.Name + " Budget",
				Amount:     item.Amount,
				PeriodType: period,
				StartDate:  start,
				EndDate:    end,
				IsActive:   true,
			}
			if err := s.validateBudget(budget, true); err != nil {
				return err
			}
			if err := insertBudget(tx, budget); err != nil {
				if errors.Is(err, apperrors.ErrBudgetOverlap) {
					result.Skipped = append(result.Skipped, category.Name)
					continue
				}
				return err
			}
			budget.Category = category
			result.Created = append(result.Created, *budget)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateUser(ctx, userID)
	return result, nil
}
