package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
)

const (
	defaultStatisticsDays = 30
	topExpensesLimit      = 5
	defaultSummaryMonths  = 12

	incomeSQL   = "CASE WHEN transactions.type = 'income' THEN transactions.amount ELSE 0 END"
	expenseSQL  = "CASE WHEN transactions.type = 'expense' THEN transactions.amount ELSE 0 END"
	transferSQL = "CASE WHEN transactions.type = 'transfer' THEN 1 ELSE 0 END"
)

// statisticsScope restricts transactions to the user and filter window.
func statisticsScope(userID string, from, to time.Time, filter StatisticsFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("transactions.user_id = ? AND transactions.date >= ? AND transactions.date <= ?", userID, from, to)
		if filter.Type != nil {
			db = db.Where("transactions.type = ?", *filter.Type)
		}
		if filter.AccountID != nil {
			db = db.Where("transactions.account_id = ?", *filter.AccountID)
		}
		if filter.CategoryID != nil {
			db = db.Where("transactions.category_id = ?", *filter.CategoryID)
		}
		return db
	}
}

// GetStatistics aggregates the filtered transactions in SQL. Transfers are
// counted but never contribute to income or expense totals.
func (s *transactionService) GetStatistics(ctx context.Context, userID string, filter StatisticsFilter) (*TransactionStatistics, error) {
	today := models.DateOnly(s.now())
	to := today
	if filter.DateTo != nil {
		to = models.DateOnly(*filter.DateTo)
	}
	from := today.AddDate(0, 0, -defaultStatisticsDays)
	if filter.DateFrom != nil {
		from = models.DateOnly(*filter.DateFrom)
	}
	if from.After(to) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidDate, "date_from must not be after date_to")
	}

	key := ledgerKey(userID, "statistics", from, to, filter.Type, filter.AccountID, filter.CategoryID)
	return cachedRead(ctx, s.ledger, userID, key, func() (*TransactionStatistics, error) {
		return s.computeStatistics(ctx, userID, from, to, filter)
	})
}

func (s *transactionService) computeStatistics(ctx context.Context, userID string, from, to time.Time, filter StatisticsFilter) (*TransactionStatistics, error) {
	db := s.db.WithContext(ctx)
	scoped := func() *gorm.DB {
		return db.Model(&models.Transaction{}).Scopes(statisticsScope(userID, from, to, filter))
	}

	stats := &TransactionStatistics{
		DateFrom: from.Format(time.DateOnly),
		DateTo:   to.Format(time.DateOnly),
	}

	var totals struct {
		Income        decimal.Decimal
		Expenses      decimal.Decimal
		Count         int64
		TransferCount int64
	}
	err := scoped().
		Select(sqlSum(incomeSQL) + " AS income, " +
			sqlSum(expenseSQL) + " AS expenses, " +
			"COUNT(*) AS count, " +
			sqlSum(transferSQL) + " AS transfer_count").
		Scan(&totals).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	stats.TotalIncome = totals.Income.Round(2)
	stats.TotalExpenses = totals.Expenses.Round(2)
	stats.NetSavings = stats.TotalIncome.Sub(stats.TotalExpenses)
	stats.TransactionCount = totals.Count
	stats.TransferCount = totals.TransferCount
	stats.AverageTransaction = averageOf(stats.TotalIncome.Add(stats.TotalExpenses), totals.Count-totals.TransferCount)

	err = scoped().
		Select("transactions.type AS type, transactions.category_id AS category_id, " +
			"COALESCE(categories.name, 'Uncategorized') AS category_name, " +
			sqlSum("transactions.amount") + " AS total, COUNT(*) AS count").
		Joins("LEFT JOIN categories ON categories.id = transactions.category_id").
		Where("transactions.type IN ?", []models.TransactionType{models.TransactionTypeIncome, models.TransactionTypeExpense}).
		Group("transactions.type, transactions.category_id, categories.name").
		Order("total DESC").
		Scan(&stats.CategoryBreakdown).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range stats.CategoryBreakdown {
		row := &stats.CategoryBreakdown[i]
		row.Total = row.Total.Round(2)
		row.Average = averageOf(row.Total, row.Count)
	}

	err = scoped().
		Select("transactions.account_id AS account_id, accounts.name AS account_name, " +
			sqlSum(incomeSQL) + " AS income, " +
			sqlSum(expenseSQL) + " AS expenses, COUNT(*) AS count").
		Joins("JOIN accounts ON accounts.id = transactions.account_id").
		Group("transactions.account_id, accounts.name").
		Order("accounts.name ASC").
		Scan(&stats.AccountBreakdown).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range stats.AccountBreakdown {
		row := &stats.AccountBreakdown[i]
		row.Income = row.Income.Round(2)
		row.Expenses = row.Expenses.Round(2)
		row.Net = row.Income.Sub(row.Expenses)
	}

	err = scoped().Preload("Category").
		Where("transactions.type = ?", models.TransactionTypeExpense).
		Order("transactions.amount DESC, transactions.date DESC").
		Limit(topExpensesLimit).
		Find(&stats.TopExpenses).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if stats.CategoryBreakdown == nil {
		stats.CategoryBreakdown = []CategoryBreakdown{}
	}
	if stats.AccountBreakdown == nil {
		stats.AccountBreakdown = []AccountBreakdown{}
	}
	if stats.TopExpenses == nil {
		stats.TopExpenses = []models.Transaction{}
	}
	return stats, nil
}

// SummaryRange resolves the monthly summary window. With neither bound it
// covers the twelve months ending with the current one.
func SummaryRange(now time.Time, from, to *time.Time) (time.Time, time.Time) {
	today := models.DateOnly(now)
	end := monthEnd(today)
	if to != nil {
		end = models.DateOnly(*to)
	}
	start := monthStart(end).AddDate(0, -(defaultSummaryMonths - 1), 0)
	if from != nil {
		start = models.DateOnly(*from)
	}
	return start, end
}

// GetMonthlySummary returns one row per calendar month in [from, to],
// zero-filled where a month has no transactions.
func (s *transactionService) GetMonthlySummary(ctx context.Context, userID string, from, to time.Time) (*MonthlySummary, error) {
	from, to = models.DateOnly(from), models.DateOnly(to)
	if from.After(to) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidDate, "date_from must not be after date_to")
	}
	if len(monthKeys(from, to)) > 120 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidDate, "monthly summary range cannot exceed 120 months")
	}

	key := ledgerKey(userID, "monthly", from, to)
	return cachedRead(ctx, s.ledger, userID, key, func() (*MonthlySummary, error) {
		db := s.db.WithContext(ctx)
		month := monthExpr(db, "transactions.date")

		var rows []MonthSummary
		err := db.Model(&models.Transaction{}).
			Select(month+" AS month, "+
				sqlSum(incomeSQL)+" AS income, "+
				sqlSum(expenseSQL)+" AS expenses, "+
				"COUNT(*) AS transaction_count").
			Where("transactions.user_id = ? AND transactions.date >= ? AND transactions.date <= ?", userID, from, to).
			Group(month).
			Scan(&rows).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		byMonth := make(map[string]MonthSummary, len(rows))
		for _, r := range rows {
			byMonth[r.Month] = r
		}

		summary := &MonthlySummary{
			DateFrom: from.Format(time.DateOnly),
			DateTo:   to.Format(time.DateOnly),
		}
		for _, m := range monthKeys(from, to) {
			row := byMonth[m]
			row.Month = m
			row.Income = row.Income.Round(2)
			row.Expenses = row.Expenses.Round(2)
			row.Net = row.Income.Sub(row.Expenses)
			summary.Months = append(summary.Months, row)
		}
		return summary, nil
	})
}
