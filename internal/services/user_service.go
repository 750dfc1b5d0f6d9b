package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/logger"
	"budgetbox/internal/models"
)

const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
)

// starterCategories are created for every new user.
var starterCategories = []struct {
	Name string
	Type models.CategoryType
}{
	{"Salary", models.CategoryTypeIncome},
	{"Freelance", models.CategoryTypeIncome},
	{"Other Income", models.CategoryTypeIncome},
	{"Rent/Mortgage", models.CategoryTypeExpense},
	{"Groceries", models.CategoryTypeExpense},
	{"Transport", models.CategoryTypeExpense},
	{"Utilities", models.CategoryTypeExpense},
	{"Entertainment", models.CategoryTypeExpense},
	{"Other Expense", models.CategoryTypeExpense},
}

// userService handles user-related business logic.
type userService struct {
	db       *gorm.DB
	hashCost int
	now      func() time.Time
}

// NewUserService creates a new UserServicer.
func NewUserService(db *gorm.DB) UserServicer {
	return &userService{db: db, hashCost: bcrypt.DefaultCost, now: time.Now}
}

// Register creates a user and seeds their starter categories.
func (s *userService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)
	if email == "" || username == "" || input.Password == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "username, email and password are required")
	}

	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.ErrDuplicateEmail
	}
	if err := db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.ErrDuplicateUsername
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	user := &models.User{
		Email:     email,
		Username:  username,
		Password:  string(hashedPassword),
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		IsActive:  true,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		categories := make([]models.Category, 0, len(starterCategories))
		for _, c := range starterCategories {
			categories = append(categories, models.Category{
				UserID:    user.ID,
				Name:      c.Name,
				Type:      c.Type,
				IsDefault: true,
				IsActive:  true,
			})
		}
		if err := tx.Create(&categories).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// AttemptLogin authenticates by username or email. Five consecutive
// failures lock the user out for fifteen minutes.
func (s *userService) AttemptLogin(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("username = ? OR email = ?", identifier, strings.ToLower(identifier)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !user.IsActive {
		return nil, apperrors.ErrInvalidCredentials
	}

	now := s.now()
	if user.IsLocked(now) {
		return nil, apperrors.ErrAccountLocked
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		updates := map[string]interface{}{"failed_login_attempts": user.FailedLoginAttempts + 1}
		locked := user.FailedLoginAttempts+1 >= maxFailedLogins
		if locked {
			updates["failed_login_attempts"] = 0
			updates["locked_until"] = now.Add(lockoutDuration)
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			logger.Get().Warnw("failed to record login failure", "user_id", user.ID, "error", err)
		}
		if locked {
			logger.Get().Infow("user locked after repeated login failures", "user_id", user.ID)
			return nil, apperrors.ErrAccountLocked
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	err = db.Model(&user).Updates(map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         now,
	}).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	return &user, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// UpdateProfile applies profile changes. A new email must not belong to
// another user.
func (s *userService) UpdateProfile(ctx context.Context, id string, fields ProfileUpdateFields) (*models.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	updates := make(map[string]interface{})

	if fields.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*fields.Email))
		if email != user.Email {
			var count int64
			if err := db.Model(&models.User{}).Where("email = ? AND id <> ?", email, id).Count(&count).Error; err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if count > 0 {
				return nil, apperrors.ErrDuplicateEmail
			}
			updates["email"] = email
		}
	}
	if fields.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*fields.FirstName)
	}
	if fields.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*fields.LastName)
	}

	if len(updates) == 0 {
		return user, nil
	}
	if err := db.Model(user).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return s.GetUserByID(ctx, id)
}

// StoreRefreshTokenHash saves the SHA-256 of the user's current refresh token.
func (s *userService) StoreRefreshTokenHash(ctx context.Context, userID, tokenHash string) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("refresh_token_hash", tokenHash)
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// GetRefreshTokenHash returns the stored refresh token hash, empty after logout.
func (s *userService) GetRefreshTokenHash(ctx context.Context, userID string) (string, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.RefreshTokenHash, nil
}

// GetLoginSummary counts the user's accounts, categories, transactions and
// active budgets.
func (s *userService) GetLoginSummary(ctx context.Context, userID string) (*LoginSummary, error) {
	db := s.db.WithContext(ctx)
	summary := &LoginSummary{}

	count := func(model any, dest *int64, query string, args ...any) error {
		return db.Model(model).Where(query, args...).Count(dest).Error
	}
	if err := count(&models.Account{}, &summary.Accounts, "user_id = ? AND is_active = ?", userID, true); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := count(&models.Category{}, &summary.Categories, "user_id = ? AND is_active = ?", userID, true); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := count(&models.Transaction{}, &summary.Transactions, "user_id = ?", userID); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := count(&models.Budget{}, &summary.ActiveBudgets, "user_id = ? AND is_active = ?", userID, true); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return summary, nil
}

// GetFinancialSummary reports net worth over active accounts and this
// calendar month's income and expenses.
func (s *userService) GetFinancialSummary(ctx context.Context, userID string) (*FinancialSummary, error) {
	db := s.db.WithContext(ctx)
	today := models.DateOnly(s.now())

	var netWorth decimal.Decimal
	err := db.Model(&models.Account{}).
		Select(sqlSum("balance")).
		Where("user_id = ? AND is_active = ?", userID, true).
		Scan(&netWorth).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var flow struct {
		Income   decimal.Decimal
		Expenses decimal.Decimal
	}
	err = db.Model(&models.Transaction{}).
		Select(sqlSum("CASE WHEN type = 'income' THEN amount ELSE 0 END")+" AS income, "+
			sqlSum("CASE WHEN type = 'expense' THEN amount ELSE 0 END")+" AS expenses").
		Where("user_id = ? AND date >= ? AND date <= ?", userID, monthStart(today), monthEnd(today)).
		Scan(&flow).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	income := models.RoundMoney(flow.Income)
	expenses := models.RoundMoney(flow.Expenses)
	return &FinancialSummary{
		Month:           today.Format("2006-01"),
		NetWorth:        models.RoundMoney(netWorth),
		MonthlyIncome:   income,
		MonthlyExpenses: expenses,
		MonthlySavings:  income.Sub(expenses),
	}, nil
}
