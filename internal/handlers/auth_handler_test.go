package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/middleware"
	"budgetbox/internal/models"
	"budgetbox/internal/services"
)

func newTestTokens() *middleware.TokenManager {
	return middleware.NewTokenManager("test-secret", time.Hour, 24*time.Hour)
}

func setupAuthRouter(handler *AuthHandler) *gin.Engine {
	r := gin.New()
	r.POST("/auth/register", handler.Register)
	r.POST("/auth/login", handler.Login)
	r.POST("/auth/refresh", handler.Refresh)
	r.POST("/auth/logout", injectUserID(testUserID), func(c *gin.Context) {
		c.Set(middleware.TokenIDKey, "jti-1")
		c.Next()
	}, handler.Logout)
	r.GET("/auth/profile", injectUserID(testUserID), handler.GetProfile)
	r.GET("/anonymous/profile", handler.GetProfile)
	r.PUT("/auth/profile/update", injectUserID(testUserID), handler.UpdateProfile)
	return r
}

func TestAuthHandler_Register(t *testing.T) {
	t.Run("returns 201 with tokens", func(t *testing.T) {
		var storedHash string
		userSvc := &mockUserService{
			storeRefreshTokenHashFn: func(_ context.Context, _, tokenHash string) error {
				storedHash = tokenHash
				return nil
			},
		}
		audit := &mockAuditService{}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockTokenService{}, audit, newTestTokens()))

		rec := doRequest(r, "POST", "/auth/register",
			`{"username":"alice","email":"alice@example.com","password":"password123","first_name":"Alice"}`)

		assertStatus(t, rec, http.StatusCreated)
		result := parseJSON(t, rec)
		refresh, _ := result["refresh_token"].(string)
		if result["access_token"] == "" || refresh == "" {
			t.Fatal("expected both tokens")
		}
		if storedHash != middleware.HashToken(refresh) {
			t.Error("expected the refresh token hash to be stored")
		}
		if len(audit.actions) != 1 || audit.actions[0] != "REGISTER" {
			t.Errorf("expected REGISTER audit entry, got %v", audit.actions)
		}
	})

	t.Run("returns 400 on missing email", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockTokenService{}, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "POST", "/auth/register", `{"username":"alice","password":"password123"}`)

		assertStatus(t, rec, http.StatusBadRequest)
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on short password", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockTokenService{}, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "POST", "/auth/register", `{"username":"alice","email":"alice@example.com","password":"short"}`)

		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("returns 409 on duplicate email", func(t *testing.T) {
		userSvc := &mockUserService{
			registerFn: func(_ context.Context, _ services.RegisterInput) (*models.User, error) {
				return nil, apperrors.ErrDuplicateEmail
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockTokenService{}, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "POST", "/auth/register",
			`{"username":"alice","email":"alice@example.com","password":"password123"}`)

		assertStatus(t, rec, http.StatusConflict)
		assertErrorCode(t, parseJSON(t, rec), "DUPLICATE_EMAIL")
	})
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("returns 200 with summary", func(t *testing.T) {
		userSvc := &mockUserService{
			getLoginSummaryFn: func(_ context.Context, _ string) (*services.LoginSummary, error) {
				return &services.LoginSummary{Accounts: 2, Categories: 9}, nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockTokenService{}, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "POST", "/auth/login", `{"username":"alice","password":"password123"}`)

		assertStatus(t, rec, http.StatusOK)
		summary, ok := parseJSON(t, rec)["summary"].(map[string]interface{})
		if !ok {
			t.Fatal("expected summary object")
		}
		if summary["accounts"] != float64(2) || summary["categories"] != float64(9) {
			t.Errorf("unexpected summary %v", summary)
		}
	})

	t.Run("returns 401 on invalid credentials", func(t *testing.T) {
		userSvc := &mockUserService{
			attemptLoginFn: func(_ context.Context, _, _ string) (*models.User, error) {
				return nil, apperrors.ErrInvalidCredentials
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockTokenService{}, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "POST", "/auth/login", `{"username":"alice","password":"wrong"}`)

		assertStatus(t, rec, http.StatusUnauthorized)
		assertErrorCode(t, parseJSON(t, rec), "INVALID_CREDENTIALS")
	})

	t.Run("returns 423 when locked", func(t *testing.T) {
		userSvc := &mockUserService{
			attemptLoginFn: func(_ context.Context, _, _ string) (*models.User, error) {
				return nil, apperrors.ErrAccountLocked
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockTokenService{}, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "POST", "/auth/login", `{"username":"alice","password":"password123"}`)

		assertStatus(t, rec, http.StatusLocked)
		assertErrorCode(t, parseJSON(t, rec), "ACCOUNT_LOCKED")
	})
}

func TestAuthHandler_Refresh(t *testing.T) {
	tokens := newTestTokens()
	user := &models.User{Base: models.Base{ID: testUserID}, Username: "alice", IsActive: true}
	refresh, err := tokens.GenerateRefreshToken(user)
	if err != nil {
		t.Fatalf("failed to sign refresh token: %v", err)
	}

	t.Run("returns 200 for the stored token", func(t *testing.T) {
		userSvc := &mockUserService{
			getRefreshTokenHashFn: func(_ context.Context, _ string) (string, error) {
				return middleware.HashToken(refresh), nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockTokenService{}, &mockAuditService{}, tokens))

		rec := doRequest(r, "POST", "/auth/refresh", `{"refresh_token":"`+refresh+`"}`)

		assertStatus(t, rec, http.StatusOK)
	})

	t.Run("returns 401 when the token was rotated", func(t *testing.T) {
		userSvc := &mockUserService{
			getRefreshTokenHashFn: func(_ context.Context, _ string) (string, error) {
				return middleware.HashToken("something-else"), nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockTokenService{}, &mockAuditService{}, tokens))

		rec := doRequest(r, "POST", "/auth/refresh", `{"refresh_token":"`+refresh+`"}`)

		assertStatus(t, rec, http.StatusUnauthorized)
		assertErrorCode(t, parseJSON(t, rec), "INVALID_TOKEN")
	})

	t.Run("returns 401 for an access token", func(t *testing.T) {
		access, err := tokens.GenerateAccessToken(user)
		if err != nil {
			t.Fatalf("failed to sign access token: %v", err)
		}
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockTokenService{}, &mockAuditService{}, tokens))

		rec := doRequest(r, "POST", "/auth/refresh", `{"refresh_token":"`+access+`"}`)

		assertStatus(t, rec, http.StatusUnauthorized)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	var revokedJTI string
	var clearedHash = "unset"
	tokenSvc := &mockTokenService{
		revokeTokenFn: func(_ context.Context, jti, userID string, _ time.Time) error {
			if userID != testUserID {
				t.Errorf("expected user %s, got %s", testUserID, userID)
			}
			revokedJTI = jti
			return nil
		},
	}
	userSvc := &mockUserService{
		storeRefreshTokenHashFn: func(_ context.Context, _, tokenHash string) error {
			clearedHash = tokenHash
			return nil
		},
	}
	audit := &mockAuditService{}
	r := setupAuthRouter(NewAuthHandler(userSvc, tokenSvc, audit, newTestTokens()))

	rec := doRequest(r, "POST", "/auth/logout", "")

	assertStatus(t, rec, http.StatusOK)
	if revokedJTI != "jti-1" {
		t.Errorf("expected jti-1 revoked, got %q", revokedJTI)
	}
	if clearedHash != "" {
		t.Errorf("expected refresh hash cleared, got %q", clearedHash)
	}
	if len(audit.actions) != 1 || audit.actions[0] != "LOGOUT" {
		t.Errorf("expected LOGOUT audit entry, got %v", audit.actions)
	}
}

func TestAuthHandler_Profile(t *testing.T) {
	t.Run("includes the financial summary", func(t *testing.T) {
		userSvc := &mockUserService{
			getFinancialSummaryFn: func(_ context.Context, _ string) (*services.FinancialSummary, error) {
				return &services.FinancialSummary{Month: "2026-03", NetWorth: decimal.RequireFromString("1500.50")}, nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockTokenService{}, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "GET", "/auth/profile", "")

		assertStatus(t, rec, http.StatusOK)
		summary, ok := parseJSON(t, rec)["financial_summary"].(map[string]interface{})
		if !ok {
			t.Fatal("expected financial_summary object")
		}
		if summary["net_worth"] != "1500.5" {
			t.Errorf("expected net_worth 1500.5, got %v", summary["net_worth"])
		}
	})

	t.Run("returns 401 without a user", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockTokenService{}, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "GET", "/anonymous/profile", "")

		assertStatus(t, rec, http.StatusUnauthorized)
		assertErrorCode(t, parseJSON(t, rec), "UNAUTHORIZED")
	})

	t.Run("update passes only the given fields", func(t *testing.T) {
		userSvc := &mockUserService{
			updateProfileFn: func(_ context.Context, id string, fields services.ProfileUpdateFields) (*models.User, error) {
				if fields.Email != nil || fields.LastName != nil {
					t.Error("expected only first_name to be set")
				}
				return &models.User{Base: models.Base{ID: id}, FirstName: *fields.FirstName}, nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockTokenService{}, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "PUT", "/auth/profile/update", `{"first_name":"Dana"}`)

		assertStatus(t, rec, http.StatusOK)
	})
}
