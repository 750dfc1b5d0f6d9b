package services

import (
	"time"

	"budgetbox/internal/models"
)

// addMonths steps t by n calendar months, clamping the day to the end of
// the target month so Jan 31 + 1 month is Feb 28 (or 29).
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// periodBoundary returns the start of the k-th window after start.
func periodBoundary(period models.BudgetPeriod, start time.Time, k int) time.Time {
	switch period {
	case models.BudgetPeriodWeekly:
		return start.AddDate(0, 0, 7*k)
	case models.BudgetPeriodQuarterly:
		return addMonths(start, 3*k)
	case models.BudgetPeriodYearly:
		return addMonths(start, 12*k)
	default:
		return addMonths(start, k)
	}
}

// periodEnd is the last day of the first window beginning at start.
func periodEnd(period models.BudgetPeriod, start time.Time) time.Time {
	return periodBoundary(period, start, 1).AddDate(0, 0, -1)
}

// currentWindow returns the period window of the budget that contains day,
// anchored at StartDate and clamped to [StartDate, EndDate]. Days before
// the budget map to its first window, days after it to its last.
func currentWindow(b *models.Budget, day time.Time) (time.Time, time.Time) {
	start, end := models.DateOnly(b.StartDate), models.DateOnly(b.EndDate)
	day = models.DateOnly(day)
	if day.Before(start) {
		day = start
	}
	if day.After(end) {
		day = end
	}

	windowStart := start
	for k := 1; ; k++ {
		next := periodBoundary(b.PeriodType, start, k)
		if next.After(day) {
			windowEnd := next.AddDate(0, 0, -1)
			if windowEnd.After(end) {
				windowEnd = end
			}
			return windowStart, windowEnd
		}
		windowStart = next
	}
}
