package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"budgetbox/internal/models"
	"budgetbox/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	AttemptLogin(ctx context.Context, identifier, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, fields ProfileUpdateFields) (*models.User, error)
	StoreRefreshTokenHash(ctx context.Context, userID, tokenHash string) error
	GetRefreshTokenHash(ctx context.Context, userID string) (string, error)
	GetLoginSummary(ctx context.Context, userID string) (*LoginSummary, error)
	GetFinancialSummary(ctx context.Context, userID string) (*FinancialSummary, error)
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// ProfileUpdateFields holds optional profile changes; nil means unchanged.
type ProfileUpdateFields struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// LoginSummary counts the caller's ledger entities.
type LoginSummary struct {
	Accounts      int64 `json:"accounts"`
	Categories    int64 `json:"categories"`
	Transactions  int64 `json:"transactions"`
	ActiveBudgets int64 `json:"active_budgets"`
}

// FinancialSummary is the profile headline: net worth plus this month's flow.
type FinancialSummary struct {
	Month           string          `json:"month"`
	NetWorth        decimal.Decimal `json:"net_worth"`
	MonthlyIncome   decimal.Decimal `json:"monthly_income"`
	MonthlyExpenses decimal.Decimal `json:"monthly_expenses"`
	MonthlySavings  decimal.Decimal `json:"monthly_savings"`
}

// TokenServicer tracks access tokens revoked before their expiry.
type TokenServicer interface {
	RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// AccountServicer defines the contract for account-related business logic.
type AccountServicer interface {
	CreateAccount(ctx context.Context, userID string, input CreateAccountInput) (*models.Account, error)
	ListAccounts(ctx context.Context, userID string, filter AccountFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	GetAccountByID(ctx context.Context, userID, accountID string) (*models.Account, error)
	UpdateAccount(ctx context.Context, userID, accountID string, fields AccountUpdateFields) (*models.Account, error)
	DeleteAccount(ctx context.Context, userID, accountID string) error
	DeactivateAccount(ctx context.Context, userID, accountID string) (*models.Account, error)
	GetAccountsSummary(ctx context.Context, userID string) (*AccountsSummary, error)
	GetAccountStatement(ctx context.Context, userID, accountID string, days int) (*AccountStatement, error)
	Transfer(ctx context.Context, userID, sourceAccountID string, input TransferInput) (*TransferResult, error)
}

// CreateAccountInput carries the fields for a new account.
type CreateAccountInput struct {
	Name           string
	Type           models.AccountType
	BankName       string
	MaskedNumber   string
	Currency       string
	InitialBalance decimal.Decimal
}

// AccountFilter holds the optional list filters for accounts.
type AccountFilter struct {
	Type       *models.AccountType
	IsActive   *bool
	Currency   *string
	MinBalance *decimal.Decimal
	Search     string
	Ordering   string
}

// AccountUpdateFields holds optional account changes. Balance is never
// updatable directly.
type AccountUpdateFields struct {
	Name         *string
	Type         *models.AccountType
	BankName     *string
	MaskedNumber *string
	Currency     *string
}

// AccountsSummary is the dashboard view across all of a user's accounts.
type AccountsSummary struct {
	TotalAccounts    int64                `json:"total_accounts"`
	ActiveAccounts   int64                `json:"active_accounts"`
	PrimaryCurrency  string               `json:"primary_currency"`
	TotalsByCurrency []CurrencyTotal      `json:"totals_by_currency"`
	TotalsByType     []AccountTypeTotal   `json:"totals_by_type"`
	Accounts         []AccountActivity    `json:"accounts"`
	RecentActivity   []models.Transaction `json:"recent_activity"`
}

// CurrencyTotal sums active balances in one currency.
type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	Count    int64           `json:"count"`
}

// AccountTypeTotal sums active balances of one account type.
type AccountTypeTotal struct {
	Type  models.AccountType `json:"account_type"`
	Total decimal.Decimal    `json:"total"`
	Count int64              `json:"count"`
}

// AccountActivity is one account's balance plus its trailing 30-day flow.
type AccountActivity struct {
	AccountID   string             `json:"account_id"`
	AccountName string             `json:"account_name"`
	AccountType models.AccountType `json:"account_type"`
	Currency    string             `json:"currency"`
	Balance     decimal.Decimal    `json:"current_balance"`
	Income      decimal.Decimal    `json:"income_30d"`
	Expenses    decimal.Decimal    `json:"expenses_30d"`
	Net         decimal.Decimal    `json:"net_30d"`
}

// AccountStatement lists an account's entries over a trailing window with
// running balances.
type AccountStatement struct {
	Account        *models.Account  `json:"account"`
	Days           int              `json:"days"`
	PeriodStart    string           `json:"period_start"`
	PeriodEnd      string           `json:"period_end"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	ClosingBalance decimal.Decimal  `json:"closing_balance"`
	TotalCredits   decimal.Decimal  `json:"total_credits"`
	TotalDebits    decimal.Decimal  `json:"total_debits"`
	NetChange      decimal.Decimal  `json:"net_change"`
	Entries        []StatementEntry `json:"entries"`
}

// StatementEntry pairs a transaction with the balance after it.
type StatementEntry struct {
	Transaction    models.Transaction `json:"transaction"`
	RunningBalance decimal.Decimal    `json:"running_balance"`
}

// TransferInput carries the destination and amount of a transfer.
type TransferInput struct {
	TargetAccountID string
	Amount          decimal.Decimal
	Description     string
}

// TransferResult reports the shared reference and both new balances.
type TransferResult struct {
	Reference             string          `json:"reference"`
	Amount                decimal.Decimal `json:"amount"`
	SourceAccount         AccountBalance  `json:"source_account"`
	TargetAccount         AccountBalance  `json:"target_account"`
	OutgoingTransactionID string          `json:"outgoing_transaction_id"`
	IncomingTransactionID string          `json:"incoming_transaction_id"`
}

// AccountBalance is an account id with its balance after an operation.
type AccountBalance struct {
	ID         string          `json:"id"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateCategory(ctx context.Context, userID string, input CreateCategoryInput) (*models.Category, error)
	ListCategories(ctx context.Context, userID string, filter CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetCategoryByID(ctx context.Context, userID, categoryID string) (*models.Category, error)
	UpdateCategory(ctx context.Context, userID, categoryID string, fields CategoryUpdateFields) (*models.Category, error)
	DeleteCategory(ctx context.Context, userID, categoryID string) error
	GetCategoryUsage(ctx context.Context, userID, categoryID string, days int) (*CategoryUsage, error)
	SetDefaultCategories(ctx context.Context, userID string) ([]models.Category, error)
	ReassignTransactions(ctx context.Context, userID, sourceID, targetID string) (*ReassignResult, error)
}

// CreateCategoryInput carries the fields for a new category.
type CreateCategoryInput struct {
	Name string
	Type models.CategoryType
}

// CategoryFilter holds the optional list filters for categories.
type CategoryFilter struct {
	Type            *models.CategoryType
	IsActive        *bool
	HasTransactions *bool
	Search          string
	Ordering        string
}

// CategoryUpdateFields holds optional category changes.
type CategoryUpdateFields struct {
	Name     *string
	Type     *models.CategoryType
	IsActive *bool
}

// CategoryUsage summarizes how a category was used over a trailing window.
type CategoryUsage struct {
	Category           *models.Category     `json:"category"`
	Days               int                  `json:"days"`
	PeriodStart        string               `json:"period_start"`
	TotalAmount        decimal.Decimal      `json:"total_amount"`
	TransactionCount   int64                `json:"transaction_count"`
	AverageAmount      decimal.Decimal      `json:"average_amount"`
	ActiveBudgets      int64                `json:"active_budgets"`
	MonthlyBreakdown   []MonthlyAmount      `json:"monthly_breakdown"`
	RecentTransactions []models.Transaction `json:"recent_transactions"`
}

// MonthlyAmount is a per-month total for one series.
type MonthlyAmount struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"count"`
}

// ReassignResult reports how many transactions moved between categories.
type ReassignResult struct {
	SourceCategoryID  string `json:"source_category_id"`
	TargetCategoryID  string `json:"target_category_id"`
	Reassigned        int64  `json:"reassigned"`
	SourceDeactivated bool   `json:"source_deactivated"`
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	CreateTransaction(ctx context.Context, userID string, input CreateTransactionInput) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID string, filter TransactionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(ctx context.Context, userID, transactionID string) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, userID, transactionID string, fields TransactionUpdateFields) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, transactionID string) error
	GetStatistics(ctx context.Context, userID string, filter StatisticsFilter) (*TransactionStatistics, error)
	GetMonthlySummary(ctx context.Context, userID string, from, to time.Time) (*MonthlySummary, error)
	BulkCategorize(ctx context.Context, userID string, transactionIDs []string, categoryID string) (*BulkCategorizeResult, error)
	DuplicateTransaction(ctx context.Context, userID, transactionID string, date *time.Time) (*models.Transaction, error)
}

// CreateTransactionInput carries the fields for a new income or expense.
type CreateTransactionInput struct {
	AccountID   string
	CategoryID  *string
	Description string
	Type        models.TransactionType
	Amount      decimal.Decimal
	Date        time.Time
	Note        string
	Reference   string
	IsRecurring bool
}

// TransactionFilter holds the optional list filters for transactions.
type TransactionFilter struct {
	AccountID   *string
	CategoryID  *string
	Type        *models.TransactionType
	DateFrom    *time.Time
	DateTo      *time.Time
	MinAmount   *decimal.Decimal
	IsRecurring *bool
	Search      string
	Ordering    string
}

// TransactionUpdateFields holds optional transaction changes.
// ClearCategory removes the category when set.
type TransactionUpdateFields struct {
	AccountID     *string
	CategoryID    *string
	ClearCategory bool
	Description   *string
	Type          *models.TransactionType
	Amount        *decimal.Decimal
	Date          *time.Time
	Note          *string
	Reference     *string
	IsRecurring   *bool
}

// StatisticsFilter scopes a statistics request.
type StatisticsFilter struct {
	Type       *models.TransactionType
	DateFrom   *time.Time
	DateTo     *time.Time
	AccountID  *string
	CategoryID *string
}

// TransactionStatistics is the aggregate view over a filtered set.
type TransactionStatistics struct {
	DateFrom           string               `json:"date_from"`
	DateTo             string               `json:"date_to"`
	TotalIncome        decimal.Decimal      `json:"total_income"`
	TotalExpenses      decimal.Decimal      `json:"total_expenses"`
	NetSavings         decimal.Decimal      `json:"net_savings"`
	TransactionCount   int64                `json:"transaction_count"`
	TransferCount      int64                `json:"transfer_count"`
	AverageTransaction decimal.Decimal      `json:"average_transaction"`
	CategoryBreakdown  []CategoryBreakdown  `json:"category_breakdown"`
	AccountBreakdown   []AccountBreakdown   `json:"account_breakdown"`
	TopExpenses        []models.Transaction `json:"top_expenses"`
}

// CategoryBreakdown is one (type, category) group of a statistics response.
type CategoryBreakdown struct {
	CategoryID   *string                `json:"category_id"`
	CategoryName string                 `json:"category_name"`
	Type         models.TransactionType `json:"transaction_type"`
	Total        decimal.Decimal        `json:"total"`
	Count        int64                  `json:"count"`
	Average      decimal.Decimal        `json:"average"`
}

// AccountBreakdown is one account's share of a statistics response.
type AccountBreakdown struct {
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	Income      decimal.Decimal `json:"income"`
	Expenses    decimal.Decimal `json:"expenses"`
	Net         decimal.Decimal `json:"net"`
	Count       int64           `json:"count"`
}

// MonthlySummary has one row per calendar month in its range.
type MonthlySummary struct {
	DateFrom string         `json:"date_from"`
	DateTo   string         `json:"date_to"`
	Months   []MonthSummary `json:"months"`
}

// MonthSummary aggregates one calendar month.
type MonthSummary struct {
	Month            string          `json:"month"`
	Income           decimal.Decimal `json:"income"`
	Expenses         decimal.Decimal `json:"expenses"`
	Net              decimal.Decimal `json:"net"`
	TransactionCount int64           `json:"transaction_count"`
}

// BulkCategorizeResult reports how many transactions were recategorized.
type BulkCategorizeResult struct {
	CategoryID string `json:"category_id"`
	Updated    int64  `json:"updated"`
}

// BudgetServicer defines the contract for budget-related business logic.
type BudgetServicer interface {
	CreateBudget(ctx context.Context, userID string, input CreateBudgetInput) (*models.Budget, error)
	ListBudgets(ctx context.Context, userID string, filter BudgetFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Budget], error)
	GetBudgetByID(ctx context.Context, userID, budgetID string) (*models.Budget, error)
	UpdateBudget(ctx context.Context, userID, budgetID string, fields BudgetUpdateFields) (*models.Budget, error)
	DeleteBudget(ctx context.Context, userID, budgetID string) error
	GetBudgetProgress(ctx context.Context, userID, budgetID string) (*BudgetProgress, error)
	GetBudgetsOverview(ctx context.Context, userID string) (*BudgetsOverview, error)
	RecommendForCategory(ctx context.Context, userID, categoryID string, months int) (*CategoryRecommendation, error)
	GetRecommendations(ctx context.Context, userID string, months int) (*BudgetRecommendations, error)
	CloneBudget(ctx context.Context, userID, budgetID string, input CloneBudgetInput) (*models.Budget, error)
	DeactivateBudget(ctx context.Context, userID, budgetID string) (*models.Budget, error)
	ReactivateBudget(ctx context.Context, userID, budgetID string) (*models.Budget, error)
	BulkCreateBudgets(ctx context.Context, userID string, input BulkCreateInput) (*BulkCreateResult, error)
}

// CreateBudgetInput carries the fields for a new budget.
type CreateBudgetInput struct {
	CategoryID string
	Name       string
	Amount     decimal.Decimal
	PeriodType models.BudgetPeriod
	StartDate  time.Time
	EndDate    time.Time
}

// BudgetFilter holds the optional list filters for budgets.
type BudgetFilter struct {
	IsActive   *bool
	PeriodType *models.BudgetPeriod
	CategoryID *string
	Current    *bool
	Exceeded   *bool
	Ordering   string
}

// BudgetUpdateFields holds optional budget changes.
type BudgetUpdateFields struct {
	CategoryID *string
	Name       *string
	Amount     *decimal.Decimal
	PeriodType *models.BudgetPeriod
	StartDate  *time.Time
	EndDate    *time.Time
}

// BudgetProgress is the state of a budget's current period window.
type BudgetProgress struct {
	BudgetID              string               `json:"budget_id"`
	BudgetName            string               `json:"budget_name"`
	CategoryID            string               `json:"category_id"`
	CategoryName          string               `json:"category_name"`
	PeriodType            models.BudgetPeriod  `json:"period_type"`
	WindowStart           string               `json:"window_start"`
	WindowEnd             string               `json:"window_end"`
	BudgetAmount          decimal.Decimal      `json:"budget_amount"`
	Spent                 decimal.Decimal      `json:"spent"`
	Remaining             decimal.Decimal      `json:"remaining"`
	PercentageUsed        decimal.Decimal      `json:"percentage_used"`
	TimeElapsedPercentage decimal.Decimal      `json:"time_elapsed_percentage"`
	Pace                  string               `json:"pace"`
	PacePercentage        decimal.Decimal      `json:"pace_percentage"`
	Status                string               `json:"status"`
	TotalDays             int                  `json:"total_days"`
	DaysElapsed           int                  `json:"days_elapsed"`
	DaysRemaining         int                  `json:"days_remaining"`
	ExpectedSpend         decimal.Decimal      `json:"expected_spend"`
	DailyAllowance        decimal.Decimal      `json:"daily_allowance"`
	DailyBreakdown        []DailySpend         `json:"daily_breakdown,omitempty"`
	RecentTransactions    []models.Transaction `json:"recent_transactions,omitempty"`
}

// DailySpend is one day of a budget window with the running total.
type DailySpend struct {
	Date       string          `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// BudgetsOverview aggregates progress across a user's current budgets.
type BudgetsOverview struct {
	TotalBudgeted     decimal.Decimal  `json:"total_budgeted"`
	TotalSpent        decimal.Decimal  `json:"total_spent"`
	TotalRemaining    decimal.Decimal  `json:"total_remaining"`
	OverallPercentage decimal.Decimal  `json:"overall_percentage"`
	BudgetCount       int              `json:"budget_count"`
	StatusCounts      map[string]int   `json:"status_counts"`
	Budgets           []BudgetProgress `json:"budgets"`
	Upcoming          []models.Budget  `json:"upcoming"`
	ExpiringSoon      []models.Budget  `json:"expiring_soon"`
}

// CategoryRecommendation proposes a monthly budget from past spending.
type CategoryRecommendation struct {
	CategoryID          string           `json:"category_id"`
	CategoryName        string           `json:"category_name"`
	LookbackMonths      int              `json:"lookback_months"`
	PeriodsWithData     int              `json:"periods_with_data"`
	AverageMonthlySpend decimal.Decimal  `json:"average_monthly_spend"`
	SuggestedAmount     decimal.Decimal  `json:"suggested_amount"`
	MonthlySpend        []MonthlyAmount  `json:"monthly_spend"`
	ExistingBudget      *decimal.Decimal `json:"existing_budget_amount,omitempty"`
}

// BudgetRecommendations covers every active expense category of a user.
type BudgetRecommendations struct {
	LookbackMonths       int                      `json:"lookback_months"`
	Recommendations      []CategoryRecommendation `json:"recommendations"`
	InsufficientData     []string                 `json:"insufficient_data"`
	AdjustmentsNeeded    []BudgetAdjustment       `json:"adjustments_needed"`
	PeriodRecommendation *PeriodRecommendation    `json:"period_recommendation,omitempty"`
	UnbudgetedCategories []UnbudgetedCategory     `json:"unbudgeted_categories"`
	SavingsOpportunities []SavingsOpportunity     `json:"savings_opportunities"`
}

// UnbudgetedCategory is an expense category with recent spend and no
// current budget. Priority is "high" above 500 of spend, else "medium".
type UnbudgetedCategory struct {
	CategoryID      string          `json:"category_id"`
	CategoryName    string          `json:"category_name"`
	RecentSpending  decimal.Decimal `json:"recent_spending"`
	SuggestedAmount decimal.Decimal `json:"suggested_amount"`
	Priority        string          `json:"priority"`
}

// SavingsOpportunity is a discretionary category worth cutting back on.
type SavingsOpportunity struct {
	CategoryID       string          `json:"category_id"`
	CategoryName     string          `json:"category_name"`
	CurrentSpending  decimal.Decimal `json:"current_spending"`
	PotentialSavings decimal.Decimal `json:"potential_savings"`
	Suggestion       string          `json:"suggestion"`
}

// BudgetAdjustment flags a current budget that is heavily overspent.
type BudgetAdjustment struct {
	BudgetID        string          `json:"budget_id"`
	BudgetName      string          `json:"budget_name"`
	CurrentAmount   decimal.Decimal `json:"current_amount"`
	Spent           decimal.Decimal `json:"spent"`
	Utilization     decimal.Decimal `json:"utilization"`
	SuggestedAmount decimal.Decimal `json:"suggested_amount"`
}

// PeriodRecommendation suggests a budget period from spending volatility.
type PeriodRecommendation struct {
	Recommended            models.BudgetPeriod `json:"recommended"`
	CoefficientOfVariation decimal.Decimal     `json:"coefficient_of_variation"`
	Reason                 string              `json:"reason"`
}

// CloneBudgetInput controls how a budget is copied.
type CloneBudgetInput struct {
	PeriodShift string
	StartDate   *time.Time
	EndDate     *time.Time
	Amount      *decimal.Decimal
}

// BulkCreateInput selects a template of budgets to create.
type BulkCreateInput struct {
	Template   string
	PeriodType models.BudgetPeriod
	StartDate  *time.Time
}

// BulkCreateResult lists created budgets and the category names skipped.
type BulkCreateResult struct {
	Created []models.Budget `json:"created"`
	Skipped []string        `json:"skipped"`
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(ctx context.Context, userID, action, resourceType, resourceID, ipAddress string, changes map[string]any)
}
