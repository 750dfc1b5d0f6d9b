package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
	"budgetbox/internal/pagination"
	"budgetbox/internal/services"
)

// AccountHandler handles account-related requests.
type AccountHandler struct {
	accountService services.AccountServicer
	auditService   services.AuditServicer
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService services.AccountServicer, auditService services.AuditServicer) *AccountHandler {
	return &AccountHandler{accountService: accountService, auditService: auditService}
}

// CreateAccountRequest represents the request payload for creating an account.
// Currency is checked by the service so unsupported codes report INVALID_CURRENCY.
type CreateAccountRequest struct {
	Name           string          `json:"account_name" binding:"required,min=2,max=100"`
	Type           string          `json:"account_type" binding:"required,account_type"`
	BankName       string          `json:"bank_name" binding:"max=100"`
	MaskedNumber   string          `json:"account_number_masked" binding:"omitempty,masked_account"`
	Currency       string          `json:"currency" binding:"max=3"`
	InitialBalance decimal.Decimal `json:"current_balance"`
}

// UpdateAccountRequest represents the request payload for updating an account.
// The balance is not updatable.
type UpdateAccountRequest struct {
	Name         *string `json:"account_name" binding:"omitempty,min=2,max=100"`
	Type         *string `json:"account_type" binding:"omitempty,account_type"`
	BankName     *string `json:"bank_name" binding:"omitempty,max=100"`
	MaskedNumber *string `json:"account_number_masked" binding:"omitempty,masked_account"`
	Currency     *string `json:"currency" binding:"omitempty,max=3"`
}

// TransferRequest moves money from the path account to the target account.
type TransferRequest struct {
	TargetAccountID string          `json:"target_account_id" binding:"required,uuid"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description" binding:"max=255"`
}

type listAccountsQuery struct {
	pagination.PageRequest
	Type       string `form:"type" binding:"omitempty,account_type"`
	IsActive   string `form:"is_active"`
	Currency   string `form:"currency" binding:"omitempty,currency"`
	MinBalance string `form:"min_balance"`
	Search     string `form:"search"`
	Ordering   string `form:"ordering"`
}

// CreateAccount handles the creation of a new bank account
// @Summary     Create an account
// @Description Create a bank account for the authenticated user
// @Tags        accounts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateAccountRequest true "Account details"
// @Success     201 {object} models.Account "Account created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts [post]
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	account, err := h.accountService.CreateAccount(c.Request.Context(), userID, services.CreateAccountInput{
		Name:           req.Name,
		Type:           models.AccountType(req.Type),
		BankName:       req.BankName,
		MaskedNumber:   req.MaskedNumber,
		Currency:       req.Currency,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, "CREATE_ACCOUNT", "account", account.ID, c.ClientIP(),
		map[string]interface{}{"account_name": account.Name, "currency": account.Currency, "opening_balance": account.Balance})

	c.JSON(http.StatusCreated, gin.H{"account": account})
}

// ListAccounts handles the retrieval of accounts for a user
// @Summary     List accounts
// @Description Get a filtered, paginated list of the user's accounts
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Param       type        query string false "Account type"
// @Param       is_active   query bool   false "Active flag"
// @Param       currency    query string false "Currency code"
// @Param       min_balance query number false "Minimum balance"
// @Param       search      query string false "Name or bank search"
// @Param       ordering    query string false "Sort fields, prefix - for descending"
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Account] "Paginated accounts"
// @Failure     400 {object} ErrorResponse "Invalid filter"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts [get]
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q listAccountsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	filter := services.AccountFilter{Currency: optionalString(q.Currency), Search: q.Search, Ordering: q.Ordering}
	if q.Type != "" {
		t := models.AccountType(q.Type)
		filter.Type = &t
	}
	if filter.IsActive, err = optionalBool("is_active", q.IsActive); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.MinBalance, err = optionalDecimal("min_balance", q.MinBalance); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.accountService.ListAccounts(c.Request.Context(), userID, filter, q.PageRequest)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAccountByID handles the retrieval of a specific account for a user
// @Summary     Get account by ID
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Account ID"
// @Success     200 {object} models.Account "Account details"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id} [get]
func (h *AccountHandler) GetAccountByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accountID, err := parsePathID(c, "id", apperrors.ErrAccountNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	account, err := h.accountService.GetAccountByID(c.Request.Context(), userID, accountID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": account})
}

// UpdateAccount handles updating an account.
// @Summary     Update account
// @Description Update an account's details. Currency is frozen once the account has transactions.
// @Tags        accounts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Account ID"
// @Param       request body UpdateAccountRequest true "Updated account details"
// @Success     200 {object} models.Account "Updated account"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id} [put]
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accountID, err := parsePathID(c, "id", apperrors.ErrAccountNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	fields := services.AccountUpdateFields{
		Name:         req.Name,
		BankName:     req.BankName,
		MaskedNumber: req.MaskedNumber,
		Currency:     req.Currency,
	}
	if req.Type != nil {
		t := models.AccountType(*req.Type)
		fields.Type = &t
	}

	account, err := h.accountService.UpdateAccount(c.Request.Context(), userID, accountID, fields)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, "UPDATE_ACCOUNT", "account", accountID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"account": account})
}

// DeleteAccount removes an account that has no transactions
// @Summary     Delete account
// @Tags        accounts
// @Security    BearerAuth
// @Param       id path string true "Account ID"
// @Success     204 "Account deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     409 {object} ErrorResponse "Account has transactions"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id} [delete]
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accountID, err := parsePathID(c, "id", apperrors.ErrAccountNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.accountService.DeleteAccount(c.Request.Context(), userID, accountID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, "DELETE_ACCOUNT", "account", accountID, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// DeactivateAccount marks a zero-balance account inactive
// @Summary     Deactivate account
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Account ID"
// @Success     200 {object} models.Account "Deactivated account"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     409 {object} ErrorResponse "Balance is not zero"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id}/deactivate [post]
func (h *AccountHandler) DeactivateAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accountID, err := parsePathID(c, "id", apperrors.ErrAccountNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	account, err := h.accountService.DeactivateAccount(c.Request.Context(), userID, accountID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, "DEACTIVATE_ACCOUNT", "account", accountID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"account": account})
}

// GetAccountsSummary returns totals across the user's accounts
// @Summary     Accounts summary
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.AccountsSummary "Summary"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/summary [get]
func (h *AccountHandler) GetAccountsSummary(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.accountService.GetAccountsSummary(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetAccountStatement lists an account's entries with running balances
// @Summary     Account statement
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string true  "Account ID"
// @Param       days query int    false "Trailing days (default 30, max 365)"
// @Success     200 {object} services.AccountStatement "Statement"
// @Failure     400 {object} ErrorResponse "Invalid days"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id}/statement [get]
func (h *AccountHandler) GetAccountStatement(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accountID, err := parsePathID(c, "id", apperrors.ErrAccountNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}
	days, err := queryDays(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	statement, err := h.accountService.GetAccountStatement(c.Request.Context(), userID, accountID, days)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, statement)
}

// Transfer moves money between two of the user's accounts
// @Summary     Transfer between accounts
// @Description Debit the path account and credit the target in one database transaction
// @Tags        accounts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Source account ID"
// @Param       request body TransferRequest true "Transfer details"
// @Success     200 {object} services.TransferResult "Transfer completed"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     422 {object} ErrorResponse "Insufficient funds, same account or currency mismatch"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id}/transfer [post]
func (h *AccountHandler) Transfer(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	sourceID, err := parsePathID(c, "id", apperrors.ErrAccountNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	result, err := h.accountService.Transfer(c.Request.Context(), userID, sourceID, services.TransferInput{
		TargetAccountID: req.TargetAccountID,
		Amount:          req.Amount,
		Description:     req.Description,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, "TRANSFER", "account", sourceID, c.ClientIP(),
		map[string]interface{}{
			"target_account_id": req.TargetAccountID,
			"amount":            result.Amount,
			"reference":         result.Reference,
		})

	c.JSON(http.StatusOK, result)
}
