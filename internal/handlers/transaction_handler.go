package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
	"budgetbox/internal/pagination"
	"budgetbox/internal/services"
)

// TransactionHandler handles transaction-related requests
type TransactionHandler struct {
	transactionService services.TransactionServicer
	auditService       services.AuditServicer
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(transactionService services.TransactionServicer, auditService services.AuditServicer) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		auditService:       auditService,
	}
}

// CreateTransactionRequest represents the request body for creating a
// transaction. Transfers go through the account transfer endpoint.
type CreateTransactionRequest struct {
	AccountID   string          `json:"account_id" binding:"required,uuid"`
	CategoryID  *string         `json:"category_id" binding:"omitempty,uuid"`
	Description string          `json:"transaction_description" binding:"required,max=255"`
	Type        string          `json:"transaction_type" binding:"required"`
	Amount      decimal.Decimal `json:"transaction_amount"`
	Date        string          `json:"transaction_date"`
	Note        string          `json:"transaction_note"`
	Reference   string          `json:"reference_number" binding:"max=100"`
	IsRecurring bool            `json:"is_recurring"`
}

// UpdateTransactionRequest represents the request body for updating a
// transaction. An empty category_id removes the category.
type UpdateTransactionRequest struct {
	AccountID   *string          `json:"account_id" binding:"omitempty,uuid"`
	CategoryID  *string          `json:"category_id"`
	Description *string          `json:"transaction_description" binding:"omitempty,max=255"`
	Type        *string          `json:"transaction_type"`
	Amount      *decimal.Decimal `json:"transaction_amount"`
	Date        *string          `json:"transaction_date"`
	Note        *string          `json:"transaction_note"`
	Reference   *string          `json:"reference_number" binding:"omitempty,max=100"`
	IsRecurring *bool            `json:"is_recurring"`
}

// BulkCategorizeRequest assigns one category to many transactions.
type BulkCategorizeRequest struct {
	TransactionIDs []string `json:"transaction_ids" binding:"required,min=1,max=500,dive,uuid"`
	CategoryID     string   `json:"category_id" binding:"required,uuid"`
}

// DuplicateTransactionRequest optionally overrides the copy's date.
type DuplicateTransactionRequest struct {
	Date string `json:"transaction_date"`
}

type listTransactionsQuery struct {
	pagination.PageRequest
	BankAccount string `form:"bank_account" binding:"omitempty,uuid"`
	Category    string `form:"category" binding:"omitempty,uuid"`
	Type        string `form:"type" binding:"omitempty,transaction_type"`
	DateFrom    string `form:"date_from"`
	DateTo      string `form:"date_to"`
	MinAmount   string `form:"min_amount"`
	IsRecurring string `form:"is_recurring"`
	Search      string `form:"search"`
	Ordering    string `form:"ordering"`
}

type statisticsQuery struct {
	Type        string `form:"type" binding:"omitempty,transaction_type"`
	DateFrom    string `form:"date_from"`
	DateTo      string `form:"date_to"`
	BankAccount string `form:"bank_account" binding:"omitempty,uuid"`
	Category    string `form:"category" binding:"omitempty,uuid"`
}

// CreateTransaction handles the creation of a new transaction
// @Summary     Create a transaction
// @Description Record an income or expense and apply it to the account balance
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateTransactionRequest true "Transaction details"
// @Success     201 {object} models.Transaction "Transaction created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account or category not found"
// @Failure     422 {object} ErrorResponse "Insufficient funds"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	input := services.CreateTransactionInput{
		AccountID:   req.AccountID,
		CategoryID:  req.CategoryID,
		Description: req.Description,
		Type:        models.TransactionType(req.Type),
		Amount:      req.Amount,
		Note:        req.Note,
		Reference:   req.Reference,
		IsRecurring: req.IsRecurring,
	}
	if req.Date != "" {
		if input.Date, err = parseDate("transaction_date", req.Date); err != nil {
			respondWithError(c, err)
			return
		}
	}

	transaction, err := h.transactionService.CreateTransaction(c.Request.Context(), userID, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": transaction})
}

// ListTransactions returns the user's transactions
// @Summary     List transactions
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       bank_account query string false "Account ID"
// @Param       category     query string false "Category ID"
// @Param       type         query string false "income, expense or transfer"
// @Param       date_from    query string false "From date (YYYY-MM-DD)"
// @Param       date_to      query string false "To date (YYYY-MM-DD)"
// @Param       min_amount   query number false "Minimum absolute amount"
// @Param       is_recurring query bool   false "Recurring flag"
// @Param       search       query string false "Description, note or reference search"
// @Param       ordering     query string false "Sort fields, prefix - for descending"
// @Param       page         query int    false "Page number (default 1)"
// @Param       page_size    query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Transaction] "Paginated transactions"
// @Failure     400 {object} ErrorResponse "Invalid filter"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [get]
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q listTransactionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	filter := services.TransactionFilter{
		AccountID:  optionalString(q.BankAccount),
		CategoryID: optionalString(q.Category),
		Search:     q.Search,
		Ordering:   q.Ordering,
	}
	if q.Type != "" {
		t := models.TransactionType(q.Type)
		filter.Type = &t
	}
	if filter.DateFrom, err = optionalDate("date_from", q.DateFrom); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.DateTo, err = optionalDate("date_to", q.DateTo); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.MinAmount, err = optionalDecimal("min_amount", q.MinAmount); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.IsRecurring, err = optionalBool("is_recurring", q.IsRecurring); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.transactionService.ListTransactions(c.Request.Context(), userID, filter, q.PageRequest)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTransaction returns a single transaction
// @Summary     Get transaction by ID
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} models.Transaction "Transaction"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id", apperrors.ErrTransactionNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.GetTransactionByID(c.Request.Context(), userID, transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// UpdateTransaction updates a transaction and replays its balance effect
// @Summary     Update transaction
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Param       request body UpdateTransactionRequest true "Transaction changes"
// @Success     200 {object} models.Transaction "Updated transaction"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     422 {object} ErrorResponse "Insufficient funds"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [put]
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id", apperrors.ErrTransactionNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	fields := services.TransactionUpdateFields{
		AccountID:   req.AccountID,
		Description: req.Description,
		Amount:      req.Amount,
		Note:        req.Note,
		Reference:   req.Reference,
		IsRecurring: req.IsRecurring,
	}
	if req.CategoryID != nil {
		if *req.CategoryID == "" {
			fields.ClearCategory = true
		} else {
			if err := checkID(*req.CategoryID, apperrors.ErrCategoryNotFound); err != nil {
				respondWithError(c, err)
				return
			}
			fields.CategoryID = req.CategoryID
		}
	}
	if req.Type != nil {
		t := models.TransactionType(*req.Type)
		fields.Type = &t
	}
	if req.Date != nil {
		date, err := parseDate("transaction_date", *req.Date)
		if err != nil {
			respondWithError(c, err)
			return
		}
		fields.Date = &date
	}

	transaction, err := h.transactionService.UpdateTransaction(c.Request.Context(), userID, transactionID, fields)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// DeleteTransaction deletes a transaction and reverses its balance effect.
// Deleting either leg of a transfer removes both.
// @Summary     Delete transaction
// @Tags        transactions
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     204 "Transaction deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     422 {object} ErrorResponse "Reversal would break a balance limit"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [delete]
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id", apperrors.ErrTransactionNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.transactionService.DeleteTransaction(c.Request.Context(), userID, transactionID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, "DELETE_TRANSACTION", "transaction", transactionID, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// GetStatistics aggregates the user's transactions
// @Summary     Transaction statistics
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       type         query string false "income, expense or transfer"
// @Param       date_from    query string false "From date (default today - 30 days)"
// @Param       date_to      query string false "To date (default today)"
// @Param       bank_account query string false "Account ID"
// @Param       category     query string false "Category ID"
// @Success     200 {object} services.TransactionStatistics "Statistics"
// @Failure     400 {object} ErrorResponse "Invalid filter"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/statistics [get]
func (h *TransactionHandler) GetStatistics(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q statisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	filter := services.StatisticsFilter{
		AccountID:  optionalString(q.BankAccount),
		CategoryID: optionalString(q.Category),
	}
	if q.Type != "" {
		t := models.TransactionType(q.Type)
		filter.Type = &t
	}
	if filter.DateFrom, err = optionalDate("date_from", q.DateFrom); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.DateTo, err = optionalDate("date_to", q.DateTo); err != nil {
		respondWithError(c, err)
		return
	}

	stats, err := h.transactionService.GetStatistics(c.Request.Context(), userID, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetMonthlySummary returns per-month income and expenses
// @Summary     Monthly summary
// @Description Either date_from/date_to, or year and month for a single month. Defaults to the last 12 months.
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       date_from query string false "From date (YYYY-MM-DD)"
// @Param       date_to   query string false "To date (YYYY-MM-DD)"
// @Param       year      query int    false "Year"
// @Param       month     query int    false "Month (1-12)"
// @Success     200 {object} services.MonthlySummary "Monthly summary"
// @Failure     400 {object} ErrorResponse "Invalid range"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/monthly_summary [get]
func (h *TransactionHandler) GetMonthlySummary(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	from, to, err := monthlySummaryRange(c, time.Now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.transactionService.GetMonthlySummary(c.Request.Context(), userID, from, to)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// monthlySummaryRange reads year/month when both are present, otherwise
// date_from/date_to with the default twelve month window.
func monthlySummaryRange(c *gin.Context, now time.Time) (time.Time, time.Time, error) {
	year, month := c.Query("year"), c.Query("month")
	if year != "" || month != "" {
		y, yErr := strconv.Atoi(year)
		m, mErr := strconv.Atoi(month)
		if yErr != nil || mErr != nil || m < 1 || m > 12 || y < 1900 || y > 9999 {
			return time.Time{}, time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidDate, "year and month must both be given, month 1-12")
		}
		start := time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1), nil
	}

	from, err := optionalDate("date_from", c.Query("date_from"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := optionalDate("date_to", c.Query("date_to"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end := services.SummaryRange(now, from, to)
	return start, end, nil
}

// BulkCategorize assigns a category to several transactions at once
// @Summary     Bulk categorize transactions
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body BulkCategorizeRequest true "Transactions and category"
// @Success     200 {object} services.BulkCategorizeResult "Result"
// @Failure     400 {object} ErrorResponse "Invalid input or type mismatch"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category or transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/bulk_categorize [post]
func (h *TransactionHandler) BulkCategorize(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req BulkCategorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	result, err := h.transactionService.BulkCategorize(c.Request.Context(), userID, req.TransactionIDs, req.CategoryID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, "BULK_CATEGORIZE", "category", req.CategoryID, c.ClientIP(),
		map[string]any{"transaction_ids": req.TransactionIDs, "updated": result.Updated})

	c.JSON(http.StatusOK, result)
}

// DuplicateTransaction copies a transaction, optionally on another date
// @Summary     Duplicate transaction
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Param       request body DuplicateTransactionRequest false "Override date"
// @Success     201 {object} models.Transaction "Copy created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     422 {object} ErrorResponse "Insufficient funds"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id}/duplicate [post]
func (h *TransactionHandler) DuplicateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id", apperrors.ErrTransactionNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req DuplicateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(c, bindError(err))
		return
	}
	date, err := optionalDate("transaction_date", req.Date)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.DuplicateTransaction(c.Request.Context(), userID, transactionID, date)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": transaction})
}
