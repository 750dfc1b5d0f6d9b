package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
	"budgetbox/internal/pagination"
)

const (
	accountTransactionCountSQL = "(SELECT COUNT(*) FROM transactions t WHERE t.account_id = accounts.id AND t.deleted_at IS NULL) AS transaction_count"

	// creditSQL and debitSQL split amounts by their effect on the balance.
	creditSQL = "CASE WHEN type = 'income' OR (type = 'transfer' AND transfer_direction = 'in') THEN amount ELSE 0 END"
	debitSQL  = "CASE WHEN type = 'expense' OR (type = 'transfer' AND transfer_direction = 'out') THEN amount ELSE 0 END"

	defaultStatementDays = 30
	maxStatementDays     = 365
	recentActivityLimit  = 10
)

var accountOrdering = pagination.Ordering{
	Allowed: map[string]string{
		"account_name":    "accounts.name",
		"account_type":    "accounts.type",
		"current_balance": "accounts.balance",
		"created_at":      "accounts.created_at",
	},
	Fallback: "accounts.name ASC",
}

// accountService handles account-related business logic.
type accountService struct {
	db     *gorm.DB
	ledger *LedgerCache
	now    func() time.Time
}

// NewAccountService creates a new AccountServicer.
func NewAccountService(db *gorm.DB, ledger *LedgerCache) AccountServicer {
	return &accountService{db: db, ledger: ledger, now: time.Now}
}

// CreateAccount opens an account. The opening balance must respect the
// account type's floor.
func (s *accountService) CreateAccount(ctx context.Context, userID string, input CreateAccountInput) (*models.Account, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
	}
	if !input.Type.Valid() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown account type")
	}

	currency, err := normalizeCurrency(input.Currency)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		UserID:       userID,
		Name:         name,
		Type:         input.Type,
		BankName:     strings.TrimSpace(input.BankName),
		MaskedNumber: input.MaskedNumber,
		Currency:     currency,
		Balance:      models.RoundMoney(input.InitialBalance),
		IsActive:     true,
	}
	if !account.ValidOpeningBalance(account.Balance) {
		return nil, apperrors.ErrInvalidBalance
	}

	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.ledger.InvalidateUser(ctx, userID)
	return account, nil
}

// ListAccounts retrieves a filtered, paginated list of the user's accounts.
func (s *accountService) ListAccounts(ctx context.Context, userID string, filter AccountFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	page.Defaults()

	base := s.db.WithContext(ctx).Model(&models.Account{}).Where("accounts.user_id = ?", userID)
	if filter.Type != nil {
		base = base.Where("accounts.type = ?", *filter.Type)
	}
	if filter.IsActive != nil {
		base = base.Where("accounts.is_active = ?", *filter.IsActive)
	}
	if filter.Currency != nil {
		base = base.Where("accounts.currency = ?", strings.ToUpper(*filter.Currency))
	}
	if filter.MinBalance != nil {
		base = base.Where("accounts.balance >= ?", *filter.MinBalance)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		base = base.Where("LOWER(accounts.name) LIKE ? OR LOWER(accounts.bank_name) LIKE ?", pattern, pattern)
	}
	base = base.Session(&gorm.Session{})

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var accounts []models.Account
	err := base.Select("accounts.*, " + accountTransactionCountSQL).
		Order(accountOrdering.Clause(filter.Ordering)).
		Scopes(pagination.Paginate(page)).
		Find(&accounts).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(accounts, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetAccountByID retrieves an account by ID for a specific user
func (s *accountService) GetAccountByID(ctx context.Context, userID, accountID string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).
		Select("accounts.*, "+accountTransactionCountSQL).
		Where("accounts.id = ? AND accounts.user_id = ?", accountID, userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// UpdateAccount applies descriptive changes. The balance is only moved by
// transactions, so a type change must keep it above the new floor, and the
// currency is fixed once transactions exist.
func (s *accountService) UpdateAccount(ctx context.Context, userID, accountID string, fields AccountUpdateFields) (*models.Account, error) {
	account, err := s.GetAccountByID(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})

	if fields.Name != nil {
		name := strings.TrimSpace(*fields.Name)
		if name == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
		}
		updates["name"] = name
	}
	if fields.BankName != nil {
		updates["bank_name"] = strings.TrimSpace(*fields.BankName)
	}
	if fields.MaskedNumber != nil {
		updates["account_number_masked"] = *fields.MaskedNumber
	}
	if fields.Type != nil && *fields.Type != account.Type {
		if !fields.Type.Valid() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown account type")
		}
		retyped := models.Account{Type: *fields.Type}
		if account.Balance.LessThan(retyped.BalanceFloor()) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidBalance, "current balance is below the floor of the new account type")
		}
		updates["type"] = *fields.Type
	}
	if fields.Currency != nil {
		currency, err := normalizeCurrency(*fields.Currency)
		if err != nil {
			return nil, err
		}
		if currency != account.Currency {
			if account.TransactionCount > 0 {
				return nil, apperrors.WithMessage(apperrors.ErrInvalidCurrency, "currency cannot change once the account has transactions")
			}
			updates["currency"] = currency
		}
	}

	if len(updates) == 0 {
		return account, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.ledger.InvalidateUser(ctx, userID)
	return s.GetAccountByID(ctx, userID, accountID)
}

// DeleteAccount soft-deletes an account that has never been used. The row
// stays locked from the usage check to the delete.
func (s *accountService) DeleteAccount(ctx context.Context, userID, accountID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, userID, accountID)
		if err != nil {
			return err
		}
		used, err := accountHasTransactions(tx, account.ID)
		if err != nil {
			return err
		}
		if used {
			return apperrors.ErrAccountHasTransactions
		}
		if err := tx.Delete(&models.Account{}, "id = ?", account.ID).Error; err != nil {
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

// DeactivateAccount closes an account whose balance is exactly zero. The
// balance is read under the row lock that balance writes also take.
func (s *accountService) DeactivateAccount(ctx context.Context, userID, accountID string) (*models.Account, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, userID, accountID)
		if err != nil {
			return err
		}
		if !account.Balance.IsZero() {
			return apperrors.ErrNonZeroBalance
		}
		if !account.IsActive {
			return nil
		}
		if err := tx.Model(&models.Account{}).Where("id = ?", account.ID).Update("is_active", false).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.ledger.InvalidateUser(ctx, userID)
	}
	return s.GetAccountByID(ctx, userID, accountID)
}

func accountHasTransactions(tx *gorm.DB, accountID string) (bool, error) {
	var count int64
	if err := tx.Model(&models.Transaction{}).Where("account_id = ?", accountID).Count(&count).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count > 0, nil
}

// GetAccountsSummary totals active balances by currency and type and adds
// each account's trailing 30-day flow.
func (s *accountService) GetAccountsSummary(ctx context.Context, userID string) (*AccountsSummary, error) {
	db := s.db.WithContext(ctx)
	summary := &AccountsSummary{PrimaryCurrency: models.DefaultCurrency}

	if err := db.Model(&models.Account{}).Where("user_id = ?", userID).Count(&summary.TotalAccounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	err := db.Model(&models.Account{}).
		Select("currency, "+sqlSum("balance")+" AS total, COUNT(*) AS count").
		Where("user_id = ? AND is_active = ?", userID, true).
		Group("currency").
		Order("count DESC, currency ASC").
		Scan(&summary.TotalsByCurrency).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range summary.TotalsByCurrency {
		summary.TotalsByCurrency[i].Total = models.RoundMoney(summary.TotalsByCurrency[i].Total)
		summary.ActiveAccounts += summary.TotalsByCurrency[i].Count
	}
	if len(summary.TotalsByCurrency) > 0 {
		summary.PrimaryCurrency = summary.TotalsByCurrency[0].Currency
	}

	err = db.Model(&models.Account{}).
		Select("type, "+sqlSum("balance")+" AS total, COUNT(*) AS count").
		Where("user_id = ? AND is_active = ?", userID, true).
		Group("type").
		Order("type ASC").
		Scan(&summary.TotalsByType).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range summary.TotalsByType {
		summary.TotalsByType[i].Total = models.RoundMoney(summary.TotalsByType[i].Total)
	}

	var accounts []models.Account
	if err := db.Where("user_id = ? AND is_active = ?", userID, true).Order("name ASC").Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var flows []struct {
		AccountID string
		Credits   decimal.Decimal
		Debits    decimal.Decimal
	}
	since := models.DateOnly(s.now()).AddDate(0, 0, -30)
	err = db.Model(&models.Transaction{}).
		Select("account_id, "+sqlSum(creditSQL)+" AS credits, "+sqlSum(debitSQL)+" AS debits").
		Where("user_id = ? AND date >= ?", userID, since).
		Group("account_id").
		Scan(&flows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	byAccount := make(map[string]int, len(flows))
	for i, f := range flows {
		byAccount[f.AccountID] = i
	}

	summary.Accounts = make([]AccountActivity, 0, len(accounts))
	for _, a := range accounts {
		activity := AccountActivity{
			AccountID:   a.ID,
			AccountName: a.Name,
			AccountType: a.Type,
			Currency:    a.Currency,
			Balance:     models.RoundMoney(a.Balance),
		}
		if i, ok := byAccount[a.ID]; ok {
			activity.Income = models.RoundMoney(flows[i].Credits)
			activity.Expenses = models.RoundMoney(flows[i].Debits)
		}
		activity.Net = activity.Income.Sub(activity.Expenses)
		summary.Accounts = append(summary.Accounts, activity)
	}

	err = db.Preload("Account").Preload("Category").
		Where("user_id = ?", userID).
		Order("date DESC, created_at DESC").
		Limit(recentActivityLimit).
		Find(&summary.RecentActivity).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return summary, nil
}

// GetAccountStatement lists the account's transactions over the trailing
// window with a running balance that ends at the current balance.
func (s *accountService) GetAccountStatement(ctx context.Context, userID, accountID string, days int) (*AccountStatement, error) {
	if days <= 0 {
		days = defaultStatementDays
	}
	if days > maxStatementDays {
		days = maxStatementDays
	}

	account, err := s.GetAccountByID(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	today := models.DateOnly(s.now())
	start := today.AddDate(0, 0, -(days - 1))

	var transactions []models.Transaction
	err = db.Preload("Category").
		Where("account_id = ? AND date >= ?", account.ID, start).
		Order("date ASC, created_at ASC").
		Find(&transactions).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	statement := &AccountStatement{
		Account:        account,
		Days:           days,
		PeriodStart:    start.Format(time.DateOnly),
		PeriodEnd:      today.Format(time.DateOnly),
		ClosingBalance: models.RoundMoney(account.Balance),
		Entries:        make([]StatementEntry, 0, len(transactions)),
	}

	net := decimal.Zero
	for _, t := range transactions {
		signed := t.SignedAmount()
		net = net.Add(signed)
		if signed.IsPositive() {
			statement.TotalCredits = statement.TotalCredits.Add(t.Amount)
		} else {
			statement.TotalDebits = statement.TotalDebits.Add(t.Amount)
		}
	}
	statement.NetChange = models.RoundMoney(net)
	statement.OpeningBalance = statement.ClosingBalance.Sub(statement.NetChange)

	running := statement.OpeningBalance
	for _, t := range transactions {
		running = running.Add(t.SignedAmount())
		statement.Entries = append(statement.Entries, StatementEntry{Transaction: t, RunningBalance: models.RoundMoney(running)})
	}

	return statement, nil
}

// normalizeCurrency upper-cases code, defaulting to GBP.
func normalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return models.DefaultCurrency, nil
	}
	if !models.SupportedCurrencies[code] {
		return "", apperrors.ErrInvalidCurrency
	}
	return code, nil
}
