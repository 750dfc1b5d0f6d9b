package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
	"budgetbox/internal/pagination"
	"budgetbox/internal/services"
)

const testTransactionID = "0190a3c4-5555-7000-8000-000000000005"

func setupTransactionRouter(handler *TransactionHandler) *gin.Engine {
	r := gin.New()
	g := r.Group("/transactions", injectUserID(testUserID))
	g.POST("", handler.CreateTransaction)
	g.GET("", handler.ListTransactions)
	g.GET("/statistics", handler.GetStatistics)
	g.GET("/monthly_summary", handler.GetMonthlySummary)
	g.POST("/bulk_categorize", handler.BulkCategorize)
	g.GET("/:id", handler.GetTransaction)
	g.PUT("/:id", handler.UpdateTransaction)
	g.DELETE("/:id", handler.DeleteTransaction)
	g.POST("/:id/duplicate", handler.DuplicateTransaction)
	return r
}

func TestTransactionHandler_CreateTransaction(t *testing.T) {
	t.Run("returns 201", func(t *testing.T) {
		svc := &mockTransactionService{
			createTransactionFn: func(_ context.Context, _ string, input services.CreateTransactionInput) (*models.Transaction, error) {
				if input.Type != models.TransactionTypeExpense || !input.Amount.Equal(decimal.RequireFromString("12.40")) {
					t.Errorf("unexpected input %+v", input)
				}
				if !input.Date.Equal(time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)) {
					t.Errorf("unexpected date %s", input.Date)
				}
				if input.CategoryID == nil || *input.CategoryID != testCategoryID {
					t.Error("expected category id to be passed")
				}
				return &models.Transaction{Base: models.Base{ID: testTransactionID}, Amount: input.Amount}, nil
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions", `{
			"account_id":"`+testAccountID+`",
			"category_id":"`+testCategoryID+`",
			"transaction_description":"Lunch",
			"transaction_type":"expense",
			"transaction_amount":"12.40",
			"transaction_date":"2026-03-14"
		}`)

		assertStatus(t, rec, http.StatusCreated)
	})

	t.Run("returns 400 on bad date", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions", `{
			"account_id":"`+testAccountID+`",
			"transaction_description":"Lunch",
			"transaction_type":"expense",
			"transaction_amount":"12.40",
			"transaction_date":"14/03/2026"
		}`)

		assertStatus(t, rec, http.StatusBadRequest)
		assertErrorCode(t, parseJSON(t, rec), "INVALID_DATE")
	})

	t.Run("returns 422 on insufficient funds", func(t *testing.T) {
		svc := &mockTransactionService{
			createTransactionFn: func(_ context.Context, _ string, _ services.CreateTransactionInput) (*models.Transaction, error) {
				return nil, apperrors.ErrInsufficientFunds
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions", `{
			"account_id":"`+testAccountID+`",
			"transaction_description":"Laptop",
			"transaction_type":"expense",
			"transaction_amount":"2000"
		}`)

		assertStatus(t, rec, http.StatusUnprocessableEntity)
	})
}

func TestTransactionHandler_ListTransactions(t *testing.T) {
	t.Run("maps the query names", func(t *testing.T) {
		svc := &mockTransactionService{
			listTransactionsFn: func(_ context.Context, _ string, filter services.TransactionFilter, _ pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
				if filter.AccountID == nil || *filter.AccountID != testAccountID {
					t.Error("expected bank_account to map to the account filter")
				}
				if filter.CategoryID == nil || *filter.CategoryID != testCategoryID {
					t.Error("expected category filter")
				}
				if filter.DateFrom == nil || filter.DateFrom.Format(time.DateOnly) != "2026-03-01" {
					t.Errorf("unexpected date_from %v", filter.DateFrom)
				}
				if filter.IsRecurring == nil || !*filter.IsRecurring {
					t.Error("expected is_recurring=true")
				}
				return &pagination.PageResponse[models.Transaction]{Data: []models.Transaction{}}, nil
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/transactions?bank_account="+testAccountID+"&category="+testCategoryID+
			"&date_from=2026-03-01&is_recurring=TRUE", "")

		assertStatus(t, rec, http.StatusOK)
	})

	t.Run("rejects malformed account filter", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/transactions?bank_account=7", "")

		assertStatus(t, rec, http.StatusBadRequest)
	})
}

func TestTransactionHandler_UpdateTransaction(t *testing.T) {
	t.Run("empty category clears it", func(t *testing.T) {
		svc := &mockTransactionService{
			updateTransactionFn: func(_ context.Context, _, id string, fields services.TransactionUpdateFields) (*models.Transaction, error) {
				if !fields.ClearCategory || fields.CategoryID != nil {
					t.Error("expected category to be cleared")
				}
				return &models.Transaction{Base: models.Base{ID: id}}, nil
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "PUT", "/transactions/"+testTransactionID, `{"category_id":""}`)

		assertStatus(t, rec, http.StatusOK)
	})

	t.Run("transfers are not editable", func(t *testing.T) {
		svc := &mockTransactionService{
			updateTransactionFn: func(_ context.Context, _, _ string, _ services.TransactionUpdateFields) (*models.Transaction, error) {
				return nil, apperrors.ErrTransactionNotEditable
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "PUT", "/transactions/"+testTransactionID, `{"transaction_amount":"5"}`)

		assertStatus(t, rec, http.StatusBadRequest)
		assertErrorCode(t, parseJSON(t, rec), "TRANSACTION_NOT_EDITABLE")
	})
}

func TestTransactionHandler_DeleteTransaction(t *testing.T) {
	audit := &mockAuditService{}
	r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, audit))

	rec := doRequest(r, "DELETE", "/transactions/"+testTransactionID, "")

	assertStatus(t, rec, http.StatusNoContent)
	if len(audit.actions) != 1 || audit.actions[0] != "DELETE_TRANSACTION" {
		t.Errorf("expected DELETE_TRANSACTION audit, got %v", audit.actions)
	}
}

func TestTransactionHandler_Statistics(t *testing.T) {
	svc := &mockTransactionService{
		getStatisticsFn: func(_ context.Context, _ string, filter services.StatisticsFilter) (*services.TransactionStatistics, error) {
			if filter.Type == nil || *filter.Type != models.TransactionTypeExpense {
				t.Error("expected expense type")
			}
			if filter.DateFrom != nil {
				t.Error("expected date_from to default in the service")
			}
			return &services.TransactionStatistics{TotalExpenses: decimal.NewFromInt(80)}, nil
		},
	}
	r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/transactions/statistics?type=expense", "")

	assertStatus(t, rec, http.StatusOK)
	if parseJSON(t, rec)["total_expenses"] != "80" {
		t.Error("expected total_expenses 80")
	}
}

func TestTransactionHandler_MonthlySummary(t *testing.T) {
	var gotFrom, gotTo time.Time
	svc := &mockTransactionService{
		getMonthlySummaryFn: func(_ context.Context, _ string, from, to time.Time) (*services.MonthlySummary, error) {
			gotFrom, gotTo = from, to
			return &services.MonthlySummary{Months: []services.MonthSummary{}}, nil
		},
	}
	r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

	t.Run("year and month select one month", func(t *testing.T) {
		rec := doRequest(r, "GET", "/transactions/monthly_summary?year=2024&month=2", "")

		assertStatus(t, rec, http.StatusOK)
		if gotFrom.Format(time.DateOnly) != "2024-02-01" || gotTo.Format(time.DateOnly) != "2024-02-29" {
			t.Errorf("unexpected range %s..%s", gotFrom, gotTo)
		}
	})

	t.Run("explicit range", func(t *testing.T) {
		rec := doRequest(r, "GET", "/transactions/monthly_summary?date_from=2025-11-01&date_to=2026-01-31", "")

		assertStatus(t, rec, http.StatusOK)
		if gotFrom.Format(time.DateOnly) != "2025-11-01" || gotTo.Format(time.DateOnly) != "2026-01-31" {
			t.Errorf("unexpected range %s..%s", gotFrom, gotTo)
		}
	})

	t.Run("month out of range", func(t *testing.T) {
		rec := doRequest(r, "GET", "/transactions/monthly_summary?year=2026&month=13", "")

		assertStatus(t, rec, http.StatusBadRequest)
		assertErrorCode(t, parseJSON(t, rec), "INVALID_DATE")
	})
}

func TestTransactionHandler_BulkCategorize(t *testing.T) {
	t.Run("returns the updated count", func(t *testing.T) {
		audit := &mockAuditService{}
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, audit))

		rec := doRequest(r, "POST", "/transactions/bulk_categorize",
			`{"transaction_ids":["`+testTransactionID+`","`+testOtherID+`"],"category_id":"`+testCategoryID+`"}`)

		assertStatus(t, rec, http.StatusOK)
		if parseJSON(t, rec)["updated"] != float64(2) {
			t.Error("expected 2 updated")
		}
		if len(audit.actions) != 1 || audit.actions[0] != "BULK_CATEGORIZE" {
			t.Errorf("expected BULK_CATEGORIZE audit, got %v", audit.actions)
		}
	})

	t.Run("rejects an empty id list", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions/bulk_categorize",
			`{"transaction_ids":[],"category_id":"`+testCategoryID+`"}`)

		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("rejects a malformed id", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions/bulk_categorize",
			`{"transaction_ids":["nope"],"category_id":"`+testCategoryID+`"}`)

		assertStatus(t, rec, http.StatusBadRequest)
	})
}

func TestTransactionHandler_Duplicate(t *testing.T) {
	t.Run("without a body keeps the service default", func(t *testing.T) {
		svc := &mockTransactionService{
			duplicateTransactionFn: func(_ context.Context, _, _ string, date *time.Time) (*models.Transaction, error) {
				if date != nil {
					t.Error("expected no override date")
				}
				return &models.Transaction{Description: "Copy of Lunch"}, nil
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions/"+testTransactionID+"/duplicate", "")

		assertStatus(t, rec, http.StatusCreated)
	})

	t.Run("with a date override", func(t *testing.T) {
		svc := &mockTransactionService{
			duplicateTransactionFn: func(_ context.Context, _, _ string, date *time.Time) (*models.Transaction, error) {
				if date == nil || date.Format(time.DateOnly) != "2026-03-10" {
					t.Errorf("unexpected date %v", date)
				}
				return &models.Transaction{}, nil
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions/"+testTransactionID+"/duplicate", `{"transaction_date":"2026-03-10"}`)

		assertStatus(t, rec, http.StatusCreated)
	})
}
