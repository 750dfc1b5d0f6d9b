package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
)

// Budget status and pace labels.
const (
	StatusOnTrack   = "on_track"
	StatusAttention = "attention"
	StatusWarning   = "warning"
	StatusExceeded  = "exceeded"

	PaceAhead   = "ahead"
	PaceBehind  = "behind"
	PaceOnTrack = "on_track"

	upcomingWindowDays = 30
	expiringWindowDays = 7
	overviewListLimit  = 5
)

var (
	paceTolerance    = decimal.NewFromInt(5)
	statusAttention  = decimal.NewFromInt(50)
	statusWarning    = decimal.NewFromInt(80)
	statusExceededAt = decimal.NewFromInt(100)
)

// budgetStatus classifies percentage used.
func budgetStatus(percentageUsed decimal.Decimal) string {
	switch {
	case percentageUsed.LessThanOrEqual(statusAttention):
		return StatusOnTrack
	case percentageUsed.LessThanOrEqual(statusWarning):
		return StatusAttention
	case percentageUsed.LessThanOrEqual(statusExceededAt):
		return StatusWarning
	default:
		return StatusExceeded
	}
}

// budgetPace compares the share of budget used with the share of time
// elapsed; within five points either way is on track.
func budgetPace(percentageUsed, timeElapsed decimal.Decimal) string {
	diff := percentageUsed.Sub(timeElapsed)
	switch {
	case diff.GreaterThan(paceTolerance):
		return PaceAhead
	case diff.LessThan(paceTolerance.Neg()):
		return PaceBehind
	default:
		return PaceOnTrack
	}
}

// windowSpend sums the category's expenses between from and to inclusive.
func windowSpend(db *gorm.DB, userID, categoryID string, from, to time.Time) (decimal.Decimal, error) {
	var spent decimal.Decimal
	err := db.Model(&models.Transaction{}).
		Select(sqlSum("amount")).
		Where("user_id = ? AND category_id = ? AND type = ?", userID, categoryID, models.TransactionTypeExpense).
		Where("date >= ? AND date <= ?", from, to).
		Scan(&spent).Error
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return spent.Round(2), nil
}

// computeProgress evaluates b's current window as of today. Detailed adds
// the daily breakdown and recent transactions.
func computeProgress(db *gorm.DB, b *models.Budget, today time.Time, detailed bool) (*BudgetProgress, error) {
	windowStart, windowEnd := currentWindow(b, today)

	spent, err := windowSpend(db, b.UserID, b.CategoryID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	totalDays := daysBetween(windowStart, windowEnd) + 1
	elapsed := daysBetween(windowStart, today)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > totalDays {
		elapsed = totalDays
	}
	daysRemaining := totalDays - elapsed

	total := decimal.NewFromInt(int64(totalDays))
	elapsedFraction := decimal.NewFromInt(int64(elapsed)).Div(total)
	percentageUsed := percentOf(spent, b.Amount)
	timeElapsed := elapsedFraction.Mul(hundred).Round(2)
	expected := b.Amount.Mul(elapsedFraction).Round(2)
	remaining := b.Amount.Sub(spent)

	p := &BudgetProgress{
		BudgetID:              b.ID,
		BudgetName:            b.Name,
		CategoryID:            b.CategoryID,
		PeriodType:            b.PeriodType,
		WindowStart:           windowStart.Format(time.DateOnly),
		WindowEnd:             windowEnd.Format(time.DateOnly),
		BudgetAmount:          b.Amount,
		Spent:                 spent,
		Remaining:             remaining,
		PercentageUsed:        percentageUsed,
		TimeElapsedPercentage: timeElapsed,
		Pace:                  budgetPace(percentageUsed, timeElapsed),
		PacePercentage:        percentOf(spent, expected),
		Status:                budgetStatus(percentageUsed),
		TotalDays:             totalDays,
		DaysElapsed:           elapsed,
		DaysRemaining:         daysRemaining,
		ExpectedSpend:         expected,
	}
	if b.Category != nil {
		p.CategoryName = b.Category.Name
	}
	if daysRemaining > 0 && remaining.IsPositive() {
		p.DailyAllowance = remaining.Div(decimal.NewFromInt(int64(daysRemaining))).Round(2)
	}

	if !detailed {
		return p, nil
	}

	day := dayExpr(db, "date")
	var daily []struct {
		Day    string
		Amount decimal.Decimal
	}
	err = db.Model(&models.Transaction{}).
		Select(day+" AS day, "+sqlSum("amount")+" AS amount").
		Where("user_id = ? AND category_id = ? AND type = ?", b.UserID, b.CategoryID, models.TransactionTypeExpense).
		Where("date >= ? AND date <= ?", windowStart, windowEnd).
		Group(day).
		Scan(&daily).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	byDay := make(map[string]decimal.Decimal, len(daily))
	for _, d := range daily {
		byDay[d.Day] = d.Amount.Round(2)
	}

	last := windowEnd
	if today.Before(last) {
		last = today
	}
	p.DailyBreakdown = []DailySpend{}
	cumulative := decimal.Zero
	for d := windowStart; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		amount := byDay[key]
		cumulative = cumulative.Add(amount)
		p.DailyBreakdown = append(p.DailyBreakdown, DailySpend{Date: key, Amount: amount, Cumulative: cumulative})
	}

	err = db.Preload("Account").
		Where("user_id = ? AND category_id = ? AND type = ?", b.UserID, b.CategoryID, models.TransactionTypeExpense).
		Where("date >= ? AND date <= ?", windowStart, windowEnd).
		Order("date DESC, created_at DESC").
		Limit(recentActivityLimit).
		Find(&p.RecentTransactions).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if p.RecentTransactions == nil {
		p.RecentTransactions = []models.Transaction{}
	}

	return p, nil
}

// GetBudgetProgress reports spend and pace for the budget's current window.
func (s *budgetService) GetBudgetProgress(ctx context.Context, userID, budgetID string) (*BudgetProgress, error) {
	today := s.today()
	key := ledgerKey(userID, "progress", budgetID, today)
	return cachedRead(ctx, s.ledger, userID, key, func() (*BudgetProgress, error) {
		db := s.db.WithContext(ctx)
		var budget models.Budget
		if err := db.Preload("Category").Where("id = ? AND user_id = ?", budgetID, userID).First(&budget).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrBudgetNotFound
			}
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return computeProgress(db, &budget, today, true)
	})
}

// GetBudgetsOverview aggregates progress over active budgets that cover
// today and lists budgets starting or ending soon.
func (s *budgetService) GetBudgetsOverview(ctx context.Context, userID string) (*BudgetsOverview, error) {
	today := s.today()
	key := ledgerKey(userID, "overview", today)
	return cachedRead(ctx, s.ledger, userID, key, func() (*BudgetsOverview, error) {
		db := s.db.WithContext(ctx)

		var current []models.Budget
		err := db.Preload("Category").
			Where("user_id = ? AND is_active = ? AND start_date <= ? AND end_date >= ?", userID, true, today, today).
			Order("end_date ASC, name ASC").
			Find(&current).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		overview := &BudgetsOverview{
			BudgetCount: len(current),
			StatusCounts: map[string]int{
				StatusOnTrack:   0,
				StatusAttention: 0,
				StatusWarning:   0,
				StatusExceeded:  0,
			},
			Budgets:      make([]BudgetProgress, 0, len(current)),
			Upcoming:     []models.Budget{},
			ExpiringSoon: []models.Budget{},
		}

		for i := range current {
			p, err := computeProgress(db, &current[i], today, false)
			if err != nil {
				return nil, err
			}
			overview.TotalBudgeted = overview.TotalBudgeted.Add(p.BudgetAmount)
			overview.TotalSpent = overview.TotalSpent.Add(p.Spent)
			overview.StatusCounts[p.Status]++
			overview.Budgets = append(overview.Budgets, *p)

			if !current[i].EndDate.After(today.AddDate(0, 0, expiringWindowDays)) && len(overview.ExpiringSoon) < overviewListLimit {
				overview.ExpiringSoon = append(overview.ExpiringSoon, current[i])
			}
		}
		overview.TotalRemaining = overview.TotalBudgeted.Sub(overview.TotalSpent)
		overview.OverallPercentage = percentOf(overview.TotalSpent, overview.TotalBudgeted)

		err = db.Preload("Category").
			Where("user_id = ? AND is_active = ? AND start_date > ? AND start_date <= ?", userID, true, today, today.AddDate(0, 0, upcomingWindowDays)).
			Order("start_date ASC, name ASC").
			Limit(overviewListLimit).
			Find(&overview.Upcoming).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		return overview, nil
	})
}
