package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"budgetbox/internal/cache"
	"budgetbox/internal/middleware"
	"budgetbox/internal/testutil"
	"budgetbox/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

type dbHealth struct {
	db *gorm.DB
}

func (h dbHealth) HealthCheck(ctx context.Context) error {
	return h.db.WithContext(ctx).Exec("SELECT 1").Error
}

// testApp holds the full application stack over an isolated sqlite database.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	svc := NewServices(db, cache.NewMemoryCache(), time.Minute)
	r := New(svc, Options{
		TokenManager: middleware.NewTokenManager("test-secret", 15*time.Minute, time.Hour),
		LoginLimiter: middleware.NewClientLimiter(100, 100),
		Health:       dbHealth{db: db},
	})
	return &testApp{DB: db, Router: r}
}

func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result), "body: %s", rec.Body.String())
	return result
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := parseJSON(t, rec)["error"].(map[string]interface{})
	require.True(t, ok, "expected error object, body: %s", rec.Body.String())
	code, _ := errObj["code"].(string)
	return code
}

func assertMoney(t *testing.T, expected string, got interface{}) {
	t.Helper()
	s, ok := got.(string)
	require.True(t, ok, "expected decimal string, got %T %v", got, got)
	assert.True(t, decimal.RequireFromString(expected).Equal(decimal.RequireFromString(s)),
		"expected %s, got %s", expected, s)
}

// registerUser registers a new user and returns the access token and user id.
func (app *testApp) registerUser(t *testing.T, username string) (string, string) {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"email":"%s@test.com","password":"password123"}`, username, username)
	rec := app.request("POST", "/api/auth/register", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	result := parseJSON(t, rec)
	user := result["user"].(map[string]interface{})
	return result["access_token"].(string), user["id"].(string)
}

func (app *testApp) createAccount(t *testing.T, token, name, balance string) string {
	t.Helper()
	body := fmt.Sprintf(`{"account_name":%q,"account_type":"current","current_balance":%q}`, name, balance)
	rec := app.request("POST", "/api/accounts", body, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return parseJSON(t, rec)["account"].(map[string]interface{})["id"].(string)
}

func (app *testApp) balance(t *testing.T, token, accountID string) interface{} {
	t.Helper()
	rec := app.request("GET", "/api/accounts/"+accountID, "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return parseJSON(t, rec)["account"].(map[string]interface{})["current_balance"]
}

func (app *testApp) categoryID(t *testing.T, token, name string) string {
	t.Helper()
	rec := app.request("GET", "/api/categories?page_size=100", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, item := range parseJSON(t, rec)["data"].([]interface{}) {
		category := item.(map[string]interface{})
		if category["category_name"] == name {
			return category["id"].(string)
		}
	}
	t.Fatalf("category %q not found", name)
	return ""
}

func TestHealth(t *testing.T) {
	app := setupApp(t)

	rec := app.request("GET", "/api/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", parseJSON(t, rec)["database"])
}

func TestAuthFlow(t *testing.T) {
	app := setupApp(t)
	_, _ = app.registerUser(t, "alice")

	rec := app.request("POST", "/api/auth/login", `{"username":"alice@test.com","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := parseJSON(t, rec)
	token := login["access_token"].(string)
	assert.NotEmpty(t, login["refresh_token"])
	assert.NotNil(t, login["summary"])

	rec = app.request("GET", "/api/auth/profile", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, parseJSON(t, rec)["financial_summary"])

	rec = app.request("PATCH", "/api/auth/profile/update", `{"first_name":"Alice"}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.request("POST", "/api/auth/logout", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.request("GET", "/api/auth/profile", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := setupApp(t)

	for _, path := range []string{"/api/accounts", "/api/transactions", "/api/categories", "/api/budgets"} {
		rec := app.request("GET", path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestWrongPassword(t *testing.T) {
	app := setupApp(t)
	_, _ = app.registerUser(t, "bob")

	rec := app.request("POST", "/api/auth/login", `{"username":"bob","password":"wrong-password"}`, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTransferFlow(t *testing.T) {
	app := setupApp(t)
	token, _ := app.registerUser(t, "xfer")

	source := app.createAccount(t, token, "Main", "200.00")
	target := app.createAccount(t, token, "Savings Pot", "50.00")

	rec := app.request("POST", "/api/accounts/"+source+"/transfer",
		fmt.Sprintf(`{"target_account_id":%q,"amount":"75.00","description":"Rent money"}`, target), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := parseJSON(t, rec)
	assertMoney(t, "125", result["source_account"].(map[string]interface{})["new_balance"])
	assertMoney(t, "125", result["target_account"].(map[string]interface{})["new_balance"])

	assertMoney(t, "125", app.balance(t, token, source))
	assertMoney(t, "125", app.balance(t, token, target))

	t.Run("deleting one leg reverses both", func(t *testing.T) {
		outgoing := result["outgoing_transaction_id"].(string)
		rec := app.request("DELETE", "/api/transactions/"+outgoing, "", token)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		assertMoney(t, "200", app.balance(t, token, source))
		assertMoney(t, "50", app.balance(t, token, target))
	})

	t.Run("same account is rejected", func(t *testing.T) {
		rec := app.request("POST", "/api/accounts/"+source+"/transfer",
			fmt.Sprintf(`{"target_account_id":%q,"amount":"10"}`, source), token)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "SAME_ACCOUNT_TRANSFER", errorCode(t, rec))
	})

	t.Run("insufficient funds leaves balances untouched", func(t *testing.T) {
		rec := app.request("POST", "/api/accounts/"+target+"/transfer",
			fmt.Sprintf(`{"target_account_id":%q,"amount":"500"}`, source), token)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "INSUFFICIENT_FUNDS", errorCode(t, rec))

		assertMoney(t, "50", app.balance(t, token, target))
	})
}

func TestTransactionsAdjustBalance(t *testing.T) {
	app := setupApp(t)
	token, _ := app.registerUser(t, "spender")
	account := app.createAccount(t, token, "Main", "100")
	groceries := app.categoryID(t, token, "Groceries")

	rec := app.request("POST", "/api/transactions", fmt.Sprintf(
		`{"account_id":%q,"category_id":%q,"transaction_description":"Weekly shop","transaction_type":"expense","transaction_amount":"40.50"}`,
		account, groceries), token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	txID := parseJSON(t, rec)["transaction"].(map[string]interface{})["id"].(string)

	assertMoney(t, "59.50", app.balance(t, token, account))

	rec = app.request("PATCH", "/api/transactions/"+txID, `{"transaction_amount":"10"}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assertMoney(t, "90", app.balance(t, token, account))

	rec = app.request("POST", "/api/transactions/"+txID+"/duplicate", "", token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assertMoney(t, "80", app.balance(t, token, account))

	rec = app.request("GET", "/api/transactions/statistics", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.request("GET", "/api/transactions/monthly_summary", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("delete with remaining transactions is refused", func(t *testing.T) {
		rec := app.request("DELETE", "/api/accounts/"+account, "", token)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "ACCOUNT_HAS_TRANSACTIONS", errorCode(t, rec))
	})
}

func TestBudgetProgressFlow(t *testing.T) {
	app := setupApp(t)
	token, _ := app.registerUser(t, "budgeter")
	account := app.createAccount(t, token, "Main", "1000")
	groceries := app.categoryID(t, token, "Groceries")

	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	rec := app.request("POST", "/api/budgets", fmt.Sprintf(
		`{"category_id":%q,"budget_name":"Food","budget_amount":"400","period_type":"monthly","start_date":%q,"end_date":%q}`,
		groceries, start.Format("2006-01-02"), end.Format("2006-01-02")), token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	budgetID := parseJSON(t, rec)["budget"].(map[string]interface{})["id"].(string)

	rec = app.request("POST", "/api/transactions", fmt.Sprintf(
		`{"account_id":%q,"category_id":%q,"transaction_description":"Market","transaction_type":"expense","transaction_amount":"100","transaction_date":%q}`,
		account, groceries, start.Format("2006-01-02")), token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = app.request("GET", "/api/budgets/"+budgetID+"/progress", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	progress := parseJSON(t, rec)
	assertMoney(t, "100", progress["spent"])
	assertMoney(t, "300", progress["remaining"])
	assertMoney(t, "25", progress["percentage_used"])

	t.Run("overlapping budget is rejected", func(t *testing.T) {
		rec := app.request("POST", "/api/budgets", fmt.Sprintf(
			`{"category_id":%q,"budget_name":"Food again","budget_amount":"200","period_type":"monthly","start_date":%q,"end_date":%q}`,
			groceries, start.Format("2006-01-02"), end.Format("2006-01-02")), token)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "BUDGET_OVERLAP", errorCode(t, rec))
	})

	t.Run("overview includes the budget", func(t *testing.T) {
		rec := app.request("GET", "/api/budgets/overview", "", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("deactivate then reactivate", func(t *testing.T) {
		rec := app.request("POST", "/api/budgets/"+budgetID+"/deactivate", "", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, false, parseJSON(t, rec)["budget"].(map[string]interface{})["is_active"])

		rec = app.request("POST", "/api/budgets/"+budgetID+"/reactivate", "", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, true, parseJSON(t, rec)["budget"].(map[string]interface{})["is_active"])
	})
}

func TestOwnershipIsolation(t *testing.T) {
	app := setupApp(t)
	ownerToken, _ := app.registerUser(t, "owner")
	otherToken, _ := app.registerUser(t, "intruder")
	account := app.createAccount(t, ownerToken, "Private", "10")

	rec := app.request("GET", "/api/accounts/"+account, "", otherToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ACCOUNT_NOT_FOUND", errorCode(t, rec))

	rec = app.request("DELETE", "/api/accounts/"+account, "", otherToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assertMoney(t, "10", app.balance(t, ownerToken, account))
}

func TestLoginRateLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	r := New(NewServices(db, cache.NewMemoryCache(), time.Minute), Options{
		TokenManager: middleware.NewTokenManager("test-secret", time.Minute, time.Hour),
		LoginLimiter: middleware.NewClientLimiter(0.001, 2),
		Health:       dbHealth{db: db},
	})
	app := &testApp{DB: db, Router: r}

	var last int
	for i := 0; i < 3; i++ {
		last = app.request("POST", "/api/auth/login", `{"username":"nobody","password":"password123"}`, "").Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}
