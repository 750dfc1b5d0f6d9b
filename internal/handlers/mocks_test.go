package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"budgetbox/internal/middleware"
	"budgetbox/internal/models"
	"budgetbox/internal/pagination"
	"budgetbox/internal/services"
	"budgetbox/internal/validator"
)

const (
	testUserID  = "0190a3c4-1111-7000-8000-000000000001"
	testOtherID = "0190a3c4-2222-7000-8000-000000000002"
)

// --- mock services ---

type mockUserService struct {
	registerFn              func(ctx context.Context, input services.RegisterInput) (*models.User, error)
	attemptLoginFn          func(ctx context.Context, identifier, password string) (*models.User, error)
	getUserByIDFn           func(ctx context.Context, id string) (*models.User, error)
	updateProfileFn         func(ctx context.Context, id string, fields services.ProfileUpdateFields) (*models.User, error)
	storeRefreshTokenHashFn func(ctx context.Context, userID, tokenHash string) error
	getRefreshTokenHashFn   func(ctx context.Context, userID string) (string, error)
	getLoginSummaryFn       func(ctx context.Context, userID string) (*services.LoginSummary, error)
	getFinancialSummaryFn   func(ctx context.Context, userID string) (*services.FinancialSummary, error)
}

func (m *mockUserService) Register(ctx context.Context, input services.RegisterInput) (*models.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, input)
	}
	return &models.User{Base: models.Base{ID: testUserID}, Username: input.Username, Email: input.Email, IsActive: true}, nil
}

func (m *mockUserService) AttemptLogin(ctx context.Context, identifier, password string) (*models.User, error) {
	if m.attemptLoginFn != nil {
		return m.attemptLoginFn(ctx, identifier, password)
	}
	return &models.User{Base: models.Base{ID: testUserID}, Username: identifier, IsActive: true}, nil
}

func (m *mockUserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(ctx, id)
	}
	return &models.User{Base: models.Base{ID: id}, IsActive: true}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, id string, fields services.ProfileUpdateFields) (*models.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, id, fields)
	}
	return &models.User{Base: models.Base{ID: id}}, nil
}

func (m *mockUserService) StoreRefreshTokenHash(ctx context.Context, userID, tokenHash string) error {
	if m.storeRefreshTokenHashFn != nil {
		return m.storeRefreshTokenHashFn(ctx, userID, tokenHash)
	}
	return nil
}

func (m *mockUserService) GetRefreshTokenHash(ctx context.Context, userID string) (string, error) {
	if m.getRefreshTokenHashFn != nil {
		return m.getRefreshTokenHashFn(ctx, userID)
	}
	return "", nil
}

func (m *mockUserService) GetLoginSummary(ctx context.Context, userID string) (*services.LoginSummary, error) {
	if m.getLoginSummaryFn != nil {
		return m.getLoginSummaryFn(ctx, userID)
	}
	return &services.LoginSummary{}, nil
}

func (m *mockUserService) GetFinancialSummary(ctx context.Context, userID string) (*services.FinancialSummary, error) {
	if m.getFinancialSummaryFn != nil {
		return m.getFinancialSummaryFn(ctx, userID)
	}
	return &services.FinancialSummary{}, nil
}

type mockTokenService struct {
	revokeTokenFn func(ctx context.Context, jti, userID string, expiresAt time.Time) error
}

func (m *mockTokenService) RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	if m.revokeTokenFn != nil {
		return m.revokeTokenFn(ctx, jti, userID, expiresAt)
	}
	return nil
}

func (m *mockTokenService) IsRevoked(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (m *mockTokenService) PurgeExpired(_ context.Context) (int64, error) {
	return 0, nil
}

type mockAccountService struct {
	createAccountFn       func(ctx context.Context, userID string, input services.CreateAccountInput) (*models.Account, error)
	listAccountsFn        func(ctx context.Context, userID string, filter services.AccountFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	getAccountByIDFn      func(ctx context.Context, userID, accountID string) (*models.Account, error)
	updateAccountFn       func(ctx context.Context, userID, accountID string, fields services.AccountUpdateFields) (*models.Account, error)
	deleteAccountFn       func(ctx context.Context, userID, accountID string) error
	deactivateAccountFn   func(ctx context.Context, userID, accountID string) (*models.Account, error)
	getAccountsSummaryFn  func(ctx context.Context, userID string) (*services.AccountsSummary, error)
	getAccountStatementFn func(ctx context.Context, userID, accountID string, days int) (*services.AccountStatement, error)
	transferFn            func(ctx context.Context, userID, sourceAccountID string, input services.TransferInput) (*services.TransferResult, error)
}

func (m *mockAccountService) CreateAccount(ctx context.Context, userID string, input services.CreateAccountInput) (*models.Account, error) {
	if m.createAccountFn != nil {
		return m.createAccountFn(ctx, userID, input)
	}
	return &models.Account{Base: models.Base{ID: models.NewID()}, UserID: userID, Name: input.Name}, nil
}

func (m *mockAccountService) ListAccounts(ctx context.Context, userID string, filter services.AccountFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	if m.listAccountsFn != nil {
		return m.listAccountsFn(ctx, userID, filter, page)
	}
	return &pagination.PageResponse[models.Account]{Data: []models.Account{}}, nil
}

func (m *mockAccountService) GetAccountByID(ctx context.Context, userID, accountID string) (*models.Account, error) {
	if m.getAccountByIDFn != nil {
		return m.getAccountByIDFn(ctx, userID, accountID)
	}
	return &models.Account{Base: models.Base{ID: accountID}, UserID: userID}, nil
}

func (m *mockAccountService) UpdateAccount(ctx context.Context, userID, accountID string, fields services.AccountUpdateFields) (*models.Account, error) {
	if m.updateAccountFn != nil {
		return m.updateAccountFn(ctx, userID, accountID, fields)
	}
	return &models.Account{Base: models.Base{ID: accountID}, UserID: userID}, nil
}

func (m *mockAccountService) DeleteAccount(ctx context.Context, userID, accountID string) error {
	if m.deleteAccountFn != nil {
		return m.deleteAccountFn(ctx, userID, accountID)
	}
	return nil
}

func (m *mockAccountService) DeactivateAccount(ctx context.Context, userID, accountID string) (*models.Account, error) {
	if m.deactivateAccountFn != nil {
		return m.deactivateAccountFn(ctx, userID, accountID)
	}
	return &models.Account{Base: models.Base{ID: accountID}, UserID: userID}, nil
}

func (m *mockAccountService) GetAccountsSummary(ctx context.Context, userID string) (*services.AccountsSummary, error) {
	if m.getAccountsSummaryFn != nil {
		return m.getAccountsSummaryFn(ctx, userID)
	}
	return &services.AccountsSummary{}, nil
}

func (m *mockAccountService) GetAccountStatement(ctx context.Context, userID, accountID string, days int) (*services.AccountStatement, error) {
	if m.getAccountStatementFn != nil {
		return m.getAccountStatementFn(ctx, userID, accountID, days)
	}
	return &services.AccountStatement{Days: days}, nil
}

func (m *mockAccountService) Transfer(ctx context.Context, userID, sourceAccountID string, input services.TransferInput) (*services.TransferResult, error) {
	if m.transferFn != nil {
		return m.transferFn(ctx, userID, sourceAccountID, input)
	}
	return &services.TransferResult{Amount: input.Amount}, nil
}

type mockCategoryService struct {
	createCategoryFn       func(ctx context.Context, userID string, input services.CreateCategoryInput) (*models.Category, error)
	listCategoriesFn       func(ctx context.Context, userID string, filter services.CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	getCategoryByIDFn      func(ctx context.Context, userID, categoryID string) (*models.Category, error)
	updateCategoryFn       func(ctx context.Context, userID, categoryID string, fields services.CategoryUpdateFields) (*models.Category, error)
	deleteCategoryFn       func(ctx context.Context, userID, categoryID string) error
	getCategoryUsageFn     func(ctx context.Context, userID, categoryID string, days int) (*services.CategoryUsage, error)
	setDefaultCategoriesFn func(ctx context.Context, userID string) ([]models.Category, error)
	reassignFn             func(ctx context.Context, userID, sourceID, targetID string) (*services.ReassignResult, error)
}

func (m *mockCategoryService) CreateCategory(ctx context.Context, userID string, input services.CreateCategoryInput) (*models.Category, error) {
	if m.createCategoryFn != nil {
		return m.createCategoryFn(ctx, userID, input)
	}
	return &models.Category{Base: models.Base{ID: models.NewID()}, UserID: userID, Name: input.Name, Type: input.Type}, nil
}

func (m *mockCategoryService) ListCategories(ctx context.Context, userID string, filter services.CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx, userID, filter, page)
	}
	return &pagination.PageResponse[models.Category]{Data: []models.Category{}}, nil
}

func (m *mockCategoryService) GetCategoryByID(ctx context.Context, userID, categoryID string) (*models.Category, error) {
	if m.getCategoryByIDFn != nil {
		return m.getCategoryByIDFn(ctx, userID, categoryID)
	}
	return &models.Category{Base: models.Base{ID: categoryID}, UserID: userID}, nil
}

func (m *mockCategoryService) UpdateCategory(ctx context.Context, userID, categoryID string, fields services.CategoryUpdateFields) (*models.Category, error) {
	if m.updateCategoryFn != nil {
		return m.updateCategoryFn(ctx, userID, categoryID, fields)
	}
	return &models.Category{Base: models.Base{ID: categoryID}, UserID: userID}, nil
}

func (m *mockCategoryService) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	if m.deleteCategoryFn != nil {
		return m.deleteCategoryFn(ctx, userID, categoryID)
	}
	return nil
}

func (m *mockCategoryService) GetCategoryUsage(ctx context.Context, userID, categoryID string, days int) (*services.CategoryUsage, error) {
	if m.getCategoryUsageFn != nil {
		return m.getCategoryUsageFn(ctx, userID, categoryID, days)
	}
	return &services.CategoryUsage{Days: days}, nil
}

func (m *mockCategoryService) SetDefaultCategories(ctx context.Context, userID string) ([]models.Category, error) {
	if m.setDefaultCategoriesFn != nil {
		return m.setDefaultCategoriesFn(ctx, userID)
	}
	return []models.Category{}, nil
}

func (m *mockCategoryService) ReassignTransactions(ctx context.Context, userID, sourceID, targetID string) (*services.ReassignResult, error) {
	if m.reassignFn != nil {
		return m.reassignFn(ctx, userID, sourceID, targetID)
	}
	return &services.ReassignResult{SourceCategoryID: sourceID, TargetCategoryID: targetID}, nil
}

type mockTransactionService struct {
	createTransactionFn    func(ctx context.Context, userID string, input services.CreateTransactionInput) (*models.Transaction, error)
	listTransactionsFn     func(ctx context.Context, userID string, filter services.TransactionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
	getTransactionByIDFn   func(ctx context.Context, userID, transactionID string) (*models.Transaction, error)
	updateTransactionFn    func(ctx context.Context, userID, transactionID string, fields services.TransactionUpdateFields) (*models.Transaction, error)
	deleteTransactionFn    func(ctx context.Context, userID, transactionID string) error
	getStatisticsFn        func(ctx context.Context, userID string, filter services.StatisticsFilter) (*services.TransactionStatistics, error)
	getMonthlySummaryFn    func(ctx context.Context, userID string, from, to time.Time) (*services.MonthlySummary, error)
	bulkCategorizeFn       func(ctx context.Context, userID string, transactionIDs []string, categoryID string) (*services.BulkCategorizeResult, error)
	duplicateTransactionFn func(ctx context.Context, userID, transactionID string, date *time.Time) (*models.Transaction, error)
}

func (m *mockTransactionService) CreateTransaction(ctx context.Context, userID string, input services.CreateTransactionInput) (*models.Transaction, error) {
	if m.createTransactionFn != nil {
		return m.createTransactionFn(ctx, userID, input)
	}
	return &models.Transaction{Base: models.Base{ID: models.NewID()}, UserID: userID, Amount: input.Amount}, nil
}

func (m *mockTransactionService) ListTransactions(ctx context.Context, userID string, filter services.TransactionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	if m.listTransactionsFn != nil {
		return m.listTransactionsFn(ctx, userID, filter, page)
	}
	return &pagination.PageResponse[models.Transaction]{Data: []models.Transaction{}}, nil
}

func (m *mockTransactionService) GetTransactionByID(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	if m.getTransactionByIDFn != nil {
		return m.getTransactionByIDFn(ctx, userID, transactionID)
	}
	return &models.Transaction{Base: models.Base{ID: transactionID}, UserID: userID}, nil
}

func (m *mockTransactionService) UpdateTransaction(ctx context.Context, userID, transactionID string, fields services.TransactionUpdateFields) (*models.Transaction, error) {
	if m.updateTransactionFn != nil {
		return m.updateTransactionFn(ctx, userID, transactionID, fields)
	}
	return &models.Transaction{Base: models.Base{ID: transactionID}, UserID: userID}, nil
}

func (m *mockTransactionService) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	if m.deleteTransactionFn != nil {
		return m.deleteTransactionFn(ctx, userID, transactionID)
	}
	return nil
}

func (m *mockTransactionService) GetStatistics(ctx context.Context, userID string, filter services.StatisticsFilter) (*services.TransactionStatistics, error) {
	if m.getStatisticsFn != nil {
		return m.getStatisticsFn(ctx, userID, filter)
	}
	return &services.TransactionStatistics{}, nil
}

func (m *mockTransactionService) GetMonthlySummary(ctx context.Context, userID string, from, to time.Time) (*services.MonthlySummary, error) {
	if m.getMonthlySummaryFn != nil {
		return m.getMonthlySummaryFn(ctx, userID, from, to)
	}
	return &services.MonthlySummary{Months: []services.MonthSummary{}}, nil
}

func (m *mockTransactionService) BulkCategorize(ctx context.Context, userID string, transactionIDs []string, categoryID string) (*services.BulkCategorizeResult, error) {
	if m.bulkCategorizeFn != nil {
		return m.bulkCategorizeFn(ctx, userID, transactionIDs, categoryID)
	}
	return &services.BulkCategorizeResult{CategoryID: categoryID, Updated: int64(len(transactionIDs))}, nil
}

func (m *mockTransactionService) DuplicateTransaction(ctx context.Context, userID, transactionID string, date *time.Time) (*models.Transaction, error) {
	if m.duplicateTransactionFn != nil {
		return m.duplicateTransactionFn(ctx, userID, transactionID, date)
	}
	return &models.Transaction{Base: models.Base{ID: models.NewID()}, UserID: userID}, nil
}

type mockBudgetService struct {
	createBudgetFn         func(ctx context.Context, userID string, input services.CreateBudgetInput) (*models.Budget, error)
	listBudgetsFn          func(ctx context.Context, userID string, filter services.BudgetFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Budget], error)
	getBudgetByIDFn        func(ctx context.Context, userID, budgetID string) (*models.Budget, error)
	updateBudgetFn         func(ctx context.Context, userID, budgetID string, fields services.BudgetUpdateFields) (*models.Budget, error)
	deleteBudgetFn         func(ctx context.Context, userID, budgetID string) error
	getBudgetProgressFn    func(ctx context.Context, userID, budgetID string) (*services.BudgetProgress, error)
	getBudgetsOverviewFn   func(ctx context.Context, userID string) (*services.BudgetsOverview, error)
	recommendForCategoryFn func(ctx context.Context, userID, categoryID string, months int) (*services.CategoryRecommendation, error)
	getRecommendationsFn   func(ctx context.Context, userID string, months int) (*services.BudgetRecommendations, error)
	cloneBudgetFn          func(ctx context.Context, userID, budgetID string, input services.CloneBudgetInput) (*models.Budget, error)
	setActiveFn            func(ctx context.Context, userID, budgetID string, active bool) (*models.Budget, error)
	bulkCreateBudgetsFn    func(ctx context.Context, userID string, input services.BulkCreateInput) (*services.BulkCreateResult, error)
}

func (m *mockBudgetService) CreateBudget(ctx context.Context, userID string, input services.CreateBudgetInput) (*models.Budget, error) {
	if m.createBudgetFn != nil {
		return m.createBudgetFn(ctx, userID, input)
	}
	return &models.Budget{Base: models.Base{ID: models.NewID()}, UserID: userID, Name: input.Name}, nil
}

func (m *mockBudgetService) ListBudgets(ctx context.Context, userID string, filter services.BudgetFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Budget], error) {
	if m.listBudgetsFn != nil {
		return m.listBudgetsFn(ctx, userID, filter, page)
	}
	return &pagination.PageResponse[models.Budget]{Data: []models.Budget{}}, nil
}

func (m *mockBudgetService) GetBudgetByID(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	if m.getBudgetByIDFn != nil {
		return m.getBudgetByIDFn(ctx, userID, budgetID)
	}
	return &models.Budget{Base: models.Base{ID: budgetID}, UserID: userID}, nil
}

func (m *mockBudgetService) UpdateBudget(ctx context.Context, userID, budgetID string, fields services.BudgetUpdateFields) (*models.Budget, error) {
	if m.updateBudgetFn != nil {
		return m.updateBudgetFn(ctx, userID, budgetID, fields)
	}
	return &models.Budget{Base: models.Base{ID: budgetID}, UserID: userID}, nil
}

func (m *mockBudgetService) DeleteBudget(ctx context.Context, userID, budgetID string) error {
	if m.deleteBudgetFn != nil {
		return m.deleteBudgetFn(ctx, userID, budgetID)
	}
	return nil
}

func (m *mockBudgetService) GetBudgetProgress(ctx context.Context, userID, budgetID string) (*services.BudgetProgress, error) {
	if m.getBudgetProgressFn != nil {
		return m.getBudgetProgressFn(ctx, userID, budgetID)
	}
	return &services.BudgetProgress{BudgetID: budgetID}, nil
}

func (m *mockBudgetService) GetBudgetsOverview(ctx context.Context, userID string) (*services.BudgetsOverview, error) {
	if m.getBudgetsOverviewFn != nil {
		return m.getBudgetsOverviewFn(ctx, userID)
	}
	return &services.BudgetsOverview{}, nil
}

func (m *mockBudgetService) RecommendForCategory(ctx context.Context, userID, categoryID string, months int) (*services.CategoryRecommendation, error) {
	if m.recommendForCategoryFn != nil {
		return m.recommendForCategoryFn(ctx, userID, categoryID, months)
	}
	return &services.CategoryRecommendation{CategoryID: categoryID, LookbackMonths: months}, nil
}

func (m *mockBudgetService) GetRecommendations(ctx context.Context, userID string, months int) (*services.BudgetRecommendations, error) {
	if m.getRecommendationsFn != nil {
		return m.getRecommendationsFn(ctx, userID, months)
	}
	return &services.BudgetRecommendations{LookbackMonths: months}, nil
}

func (m *mockBudgetService) CloneBudget(ctx context.Context, userID, budgetID string, input services.CloneBudgetInput) (*models.Budget, error) {
	if m.cloneBudgetFn != nil {
		return m.cloneBudgetFn(ctx, userID, budgetID, input)
	}
	return &models.Budget{Base: models.Base{ID: models.NewID()}, UserID: userID}, nil
}

func (m *mockBudgetService) DeactivateBudget(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, userID, budgetID, false)
	}
	return &models.Budget{Base: models.Base{ID: budgetID}, UserID: userID}, nil
}

func (m *mockBudgetService) ReactivateBudget(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, userID, budgetID, true)
	}
	return &models.Budget{Base: models.Base{ID: budgetID}, UserID: userID, IsActive: true}, nil
}

func (m *mockBudgetService) BulkCreateBudgets(ctx context.Context, userID string, input services.BulkCreateInput) (*services.BulkCreateResult, error) {
	if m.bulkCreateBudgetsFn != nil {
		return m.bulkCreateBudgetsFn(ctx, userID, input)
	}
	return &services.BulkCreateResult{Created: []models.Budget{}, Skipped: []string{}}, nil
}

// mockAuditService records the actions it was asked to log.
type mockAuditService struct {
	actions []string
}

func (m *mockAuditService) Log(_ context.Context, _, action, _, _, _ string, _ map[string]any) {
	m.actions = append(m.actions, action)
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(_ context.Context) error {
	return m.err
}

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func injectUserID(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, uid)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}
