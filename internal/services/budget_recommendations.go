package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
)

const (
	defaultLookbackMonths = 3
	maxLookbackMonths     = 12
	minPeriodsWithData    = 2
)

const (
	maxUnbudgeted     = 10
	maxSavings        = 3
	savingsWindowDays = 30
)

var (
	adjustmentThreshold = decimal.NewFromInt(120)
	adjustmentHeadroom  = decimal.RequireFromString("1.1")
	savingsRate         = decimal.RequireFromString("0.2")
	highPrioritySpend   = decimal.NewFromInt(500)

	// discretionaryCategories are the category names considered for
	// savings opportunities.
	discretionaryCategories = []string{"Eating Out", "Entertainment", "Shopping", "Subscriptions"}
)

func clampLookback(months int) int {
	if months <= 0 {
		return defaultLookbackMonths
	}
	if months > maxLookbackMonths {
		return maxLookbackMonths
	}
	return months
}

// lookbackWindow covers the n complete calendar months before today's month.
func lookbackWindow(today time.Time, n int) (time.Time, time.Time) {
	current := monthStart(today)
	return current.AddDate(0, -n, 0), current.AddDate(0, 0, -1)
}

// monthlyExpenses returns zero-filled per-month expense totals keyed by
// category id for the given categories.
func monthlyExpenses(db *gorm.DB, userID string, categoryIDs []string, from, to time.Time) (map[string][]MonthlyAmount, error) {
	month := monthExpr(db, "date")
	var rows []struct {
		CategoryID string
		Month      string
		Total      decimal.Decimal
		Count      int64
	}
	err := db.Model(&models.Transaction{}).
		Select("category_id, "+month+" AS month, "+sqlSum("amount")+" AS total, COUNT(*) AS count").
		Where("user_id = ? AND type = ? AND category_id IN ?", userID, models.TransactionTypeExpense, categoryIDs).
		Where("date >= ? AND date <= ?", from, to).
		Group("category_id, " + month).
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	found := make(map[string]map[string]MonthlyAmount, len(categoryIDs))
	for _, r := range rows {
		if found[r.CategoryID] == nil {
			found[r.CategoryID] = map[string]MonthlyAmount{}
		}
		found[r.CategoryID][r.Month] = MonthlyAmount{Month: r.Month, Total: r.Total.Round(2), Count: r.Count}
	}

	keys := monthKeys(from, to)
	series := make(map[string][]MonthlyAmount, len(categoryIDs))
	for _, id := range categoryIDs {
		months := make([]MonthlyAmount, 0, len(keys))
		for _, k := range keys {
			m, ok := found[id][k]
			if !ok {
				m = MonthlyAmount{Month: k, Total: decimal.Zero}
			}
			months = append(months, m)
		}
		series[id] = months
	}
	return series, nil
}

// recommendFromSeries builds a recommendation, or returns
// ErrInsufficientData when fewer than two months carry spend.
func recommendFromSeries(category *models.Category, lookback int, series []MonthlyAmount) (*CategoryRecommendation, error) {
	total := decimal.Zero
	withData := 0
	for _, m := range series {
		if m.Total.IsPositive() {
			total = total.Add(m.Total)
			withData++
		}
	}
	if withData < minPeriodsWithData {
		return nil, apperrors.WithMessage(apperrors.ErrInsufficientData,
			"at least two months of spending are needed for a recommendation")
	}
	return &CategoryRecommendation{
		CategoryID:          category.ID,
		CategoryName:        category.Name,
		LookbackMonths:      lookback,
		PeriodsWithData:     withData,
		AverageMonthlySpend: averageOf(total, int64(lookback)),
		SuggestedAmount:     averageOf(total, int64(withData)),
		MonthlySpend:        series,
	}, nil
}

// existingBudgetAmount is the amount of the active budget covering today
// for the category, if any.
func existingBudgetAmount(db *gorm.DB, userID, categoryID string, today time.Time) (*decimal.Decimal, error) {
	var budgets []models.Budget
	err := db.Where("user_id = ? AND category_id = ? AND is_active = ? AND start_date <= ? AND end_date >= ?",
		userID, categoryID, true, today, today).
		Limit(1).
		Find(&budgets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(budgets) == 0 {
		return nil, nil
	}
	amount := budgets[0].Amount
	return &amount, nil
}

// RecommendForCategory suggests a monthly amount for one expense category.
func (s *budgetService) RecommendForCategory(ctx context.Context, userID, categoryID string, months int) (*CategoryRecommendation, error) {
	db := s.db.WithContext(ctx)
	today := s.today()
	lookback := clampLookback(months)

	category, err := findOwnedCategory(db, userID, categoryID)
	if err != nil {
		return nil, err
	}
	if category.Type != models.CategoryTypeExpense {
		return nil, apperrors.WithMessage(apperrors.ErrCategoryTypeMismatch, "recommendations need an expense category")
	}

	from, to := lookbackWindow(today, lookback)
	series, err := monthlyExpenses(db, userID, []string{category.ID}, from, to)
	if err != nil {
		return nil, err
	}
	rec, err := recommendFromSeries(category, lookback, series[category.ID])
	if err != nil {
		return nil, err
	}
	if rec.ExistingBudget, err = existingBudgetAmount(db, userID, category.ID, today); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetRecommendations covers every active expense category and flags
// current budgets whose utilisation is above 120%.
func (s *budgetService) GetRecommendations(ctx context.Context, userID string, months int) (*BudgetRecommendations, error) {
	db := s.db.WithContext(ctx)
	today := s.today()
	lookback := clampLookback(months)
	from, to := lookbackWindow(today, lookback)

	var categories []models.Category
	err := db.Where("user_id = ? AND type = ? AND is_active = ? AND name <> ?",
		userID, models.CategoryTypeExpense, true, models.TransferCategoryName).
		Order("name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := &BudgetRecommendations{
		LookbackMonths:       lookback,
		Recommendations:      []CategoryRecommendation{},
		InsufficientData:     []string{},
		AdjustmentsNeeded:    []BudgetAdjustment{},
		UnbudgetedCategories: []UnbudgetedCategory{},
	}

	if len(categories) > 0 {
		ids := make([]string, len(categories))
		for i := range categories {
			ids[i] = categories[i].ID
		}
		series, err := monthlyExpenses(db, userID, ids, from, to)
		if err != nil {
			return nil, err
		}

		combined := make([]decimal.Decimal, len(monthKeys(from, to)))
		for i := range categories {
			cat := &categories[i]
			spent := decimal.Zero
			for j, m := range series[cat.ID] {
				combined[j] = combined[j].Add(m.Total)
				spent = spent.Add(m.Total)
			}
			existing, err := existingBudgetAmount(db, userID, cat.ID, today)
			if err != nil {
				return nil, err
			}
			if existing == nil && spent.IsPositive() {
				result.UnbudgetedCategories = append(result.UnbudgetedCategories, unbudgeted(cat, spent, lookback))
			}

			rec, err := recommendFromSeries(cat, lookback, series[cat.ID])
			if err != nil {
				result.InsufficientData = append(result.InsufficientData, cat.ID)
				continue
			}
			rec.ExistingBudget = existing
			result.Recommendations = append(result.Recommendations, *rec)
		}
		result.PeriodRecommendation = recommendPeriod(combined)

		sort.SliceStable(result.UnbudgetedCategories, func(i, j int) bool {
			return result.UnbudgetedCategories[i].RecentSpending.GreaterThan(result.UnbudgetedCategories[j].RecentSpending)
		})
		if len(result.UnbudgetedCategories) > maxUnbudgeted {
			result.UnbudgetedCategories = result.UnbudgetedCategories[:maxUnbudgeted]
		}
	}

	if result.SavingsOpportunities, err = savingsOpportunities(db, userID, today); err != nil {
		return nil, err
	}

	var current []models.Budget
	err = db.Preload("Category").
		Where("user_id = ? AND is_active = ? AND start_date <= ? AND end_date >= ?", userID, true, today, today).
		Order("name ASC").
		Find(&current).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range current {
		p, err := computeProgress(db, &current[i], today, false)
		if err != nil {
			return nil, err
		}
		if !p.PercentageUsed.GreaterThan(adjustmentThreshold) {
			continue
		}
		result.AdjustmentsNeeded = append(result.AdjustmentsNeeded, BudgetAdjustment{
			BudgetID:        p.BudgetID,
			BudgetName:      p.BudgetName,
			CurrentAmount:   p.BudgetAmount,
			Spent:           p.Spent,
			Utilization:     p.PercentageUsed,
			SuggestedAmount: p.Spent.Mul(adjustmentHeadroom).Round(2),
		})
	}

	return result, nil
}

// unbudgeted describes an expense category with spend in the lookback
// window but no budget covering today.
func unbudgeted(cat *models.Category, spent decimal.Decimal, lookback int) UnbudgetedCategory {
	priority := "medium"
	if spent.GreaterThan(highPrioritySpend) {
		priority = "high"
	}
	return UnbudgetedCategory{
		CategoryID:      cat.ID,
		CategoryName:    cat.Name,
		RecentSpending:  spent.Round(2),
		SuggestedAmount: spent.Div(decimal.NewFromInt(int64(lookback))).Mul(adjustmentHeadroom).Round(2),
		Priority:        priority,
	}
}

// savingsOpportunities returns the largest discretionary expense categories
// of the last 30 days with the saving a 20% cut would bring.
func savingsOpportunities(db *gorm.DB, userID string, today time.Time) ([]SavingsOpportunity, error) {
	var rows []struct {
		CategoryID   string
		CategoryName string
		Total        decimal.Decimal
	}
	err := db.Model(&models.Transaction{}).
		Select("transactions.category_id AS category_id, categories.name AS category_name, "+
			sqlSum("transactions.amount")+" AS total").
		Joins("JOIN categories ON categories.id = transactions.category_id").
		Where("transactions.user_id = ? AND transactions.type = ?", userID, models.TransactionTypeExpense).
		Where("transactions.date >= ? AND transactions.date <= ?", today.AddDate(0, 0, -savingsWindowDays), today).
		Where("categories.name IN ?", discretionaryCategories).
		Group("transactions.category_id, categories.name").
		Order("total DESC, categories.name ASC").
		Limit(maxSavings).
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	out := make([]SavingsOpportunity, 0, len(rows))
	for _, r := range rows {
		current := r.Total.Round(2)
		saving := current.Mul(savingsRate).Round(2)
		out = append(out, SavingsOpportunity{
			CategoryID:       r.CategoryID,
			CategoryName:     r.CategoryName,
			CurrentSpending:  current,
			PotentialSavings: saving,
			Suggestion:       fmt.Sprintf("cutting %s by 20%% would save %s", r.CategoryName, saving.StringFixed(2)),
		})
	}
	return out, nil
}

// recommendPeriod picks a budget period from the coefficient of variation
// of monthly spend.
func recommendPeriod(monthly []decimal.Decimal) *PeriodRecommendation {
	if len(monthly) < minPeriodsWithData {
		return nil
	}
	n := float64(len(monthly))
	var sum float64
	for _, m := range monthly {
		sum += m.InexactFloat64()
	}
	mean := sum / n
	if mean <= 0 {
		return nil
	}
	var sq float64
	for _, m := range monthly {
		d := m.InexactFloat64() - mean
		sq += d * d
	}
	cv := decimal.NewFromFloat(math.Sqrt(sq/n) / mean).Round(4)

	switch {
	case cv.LessThan(decimal.RequireFromString("0.15")):
		return &PeriodRecommendation{Recommended: models.BudgetPeriodMonthly, CoefficientOfVariation: cv,
			Reason: "monthly spending is consistent"}
	case cv.LessThan(decimal.RequireFromString("0.30")):
		return &PeriodRecommendation{Recommended: models.BudgetPeriodQuarterly, CoefficientOfVariation: cv,
			Reason: "monthly spending varies moderately; a quarterly budget smooths it out"}
	default:
		return &PeriodRecommendation{Recommended: models.BudgetPeriodWeekly, CoefficientOfVariation: cv,
			Reason: "monthly spending varies widely; weekly budgets give earlier warnings"}
	}
}
