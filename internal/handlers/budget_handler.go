package handlers

import (
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

// BudgetHandler handles budget-related requests
type BudgetHandler struct {
	budgetService services.BudgetServicer
	auditService  services.AuditServicer
}

// NewBudgetHandler creates a new BudgetHandler
func NewBudgetHandler(budgetService services.BudgetServicer, auditService services.AuditServicer) *BudgetHandler {
	return &BudgetHandler{
		budgetService: budgetService,
		auditService:  auditService,
	}
}

// CreateBudgetRequest represents the request body for creating a budget
type CreateBudgetRequest struct {
	CategoryID string          `json:"category_id" binding:"required,uuid"`
	Name       string          `json:"budget_name" binding:"required,max=100"`
	Amount     decimal.Decimal `json:"budget_amount"`
	PeriodType string          `json:"period_type" binding:"required"`
	StartDate  string          `json:"start_date" binding:"required"`
	EndDate    string          `json:"end_date" binding:"required"`
}

// UpdateBudgetRequest represents the request body for updating a budget
type UpdateBudgetRequest struct {
	CategoryID *string          `json:"category_id" binding:"omitempty,uuid"`
	Name       *string          `json:"budget_name" binding:"omitempty,max=100"`
	Amount     *decimal.Decimal `json:"budget_amount"`
	PeriodType *string          `json:"period_type"`
	StartDate  *string          `json:"start_date"`
	EndDate    *string          `json:"end_date"`
}

// CloneBudgetRequest controls where a cloned budget lands.
type CloneBudgetRequest struct {
	PeriodShift string           `json:"period_shift" binding:"omitempty,period_shift"`
	Amount      *decimal.Decimal `json:"budget_amount"`
	StartDate   string           `json:"start_date"`
	EndDate     string           `json:"end_date"`
}

// BulkCreateRequest selects a budget template.
type BulkCreateRequest struct {
	Template   string `json:"template" binding:"required,budget_template"`
	PeriodType string `json:"period_type" binding:"omitempty,budget_period"`
	StartDate  string `json:"start_date"`
}

type listBudgetsQuery struct {
	pagination.PageRequest
	IsActive   string `form:"is_active"`
	PeriodType string `form:"period_type" binding:"omitempty,budget_period"`
	Category   string `form:"category" binding:"omitempty,uuid"`
	Current    string `form:"current"`
	Exceeded   string `form:"exceeded"`
	Ordering   string `form:"ordering"`
}

// CreateBudget handles the creation of a new budget
// @Summary     Create a budget
// @Description Create a budget for an expense category. Active budgets of one category may not overlap.
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateBudgetRequest true "Budget details"
// @Success     201 {object} models.Budget "Budget created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Overlapping budget"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [post]
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		respondWithError(c, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budget, err := h.budgetService.CreateBudget(c.Request.Context(), userID, services.CreateBudgetInput{
		CategoryID: req.CategoryID,
		Name:       req.Name,
		Amount:     req.Amount,
		PeriodType: models.BudgetPeriod(req.PeriodType),
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"budget": budget})
}

// ListBudgets returns the user's budgets annotated with spend
// @Summary     List budgets
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       is_active   query bool   false "Active flag"
// @Param       period_type query string false "weekly, monthly, quarterly or yearly"
// @Param       category    query string false "Category ID"
// @Param       current     query bool   false "Budgets containing today"
// @Param       exceeded    query bool   false "Spent above amount"
// @Param       ordering    query string false "Sort fields, prefix - for descending"
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Budget] "Paginated budgets"
// @Failure     400 {object} ErrorResponse "Invalid filter"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [get]
func (h *BudgetHandler) ListBudgets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q listBudgetsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	filter := services.BudgetFilter{CategoryID: optionalString(q.Category), Ordering: q.Ordering}
	if q.PeriodType != "" {
		p := models.BudgetPeriod(q.PeriodType)
		filter.PeriodType = &p
	}
	if filter.IsActive, err = optionalBool("is_active", q.IsActive); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.Current, err = optionalBool("current", q.Current); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.Exceeded, err = optionalBool("exceeded", q.Exceeded); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.budgetService.ListBudgets(c.Request.Context(), userID, filter, q.PageRequest)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBudget returns a single budget
// @Summary     Get budget by ID
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} models.Budget "Budget"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [get]
func (h *BudgetHandler) GetBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id", apperrors.ErrBudgetNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budget, err := h.budgetService.GetBudgetByID(c.Request.Context(), userID, budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// UpdateBudget updates a budget
// @Summary     Update budget
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Param       request body UpdateBudgetRequest true "Budget changes"
// @Success     200 {object} models.Budget "Updated budget"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     409 {object} ErrorResponse "Overlapping budget"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [put]
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id", apperrors.ErrBudgetNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	fields := services.BudgetUpdateFields{
		CategoryID: req.CategoryID,
		Name:       req.Name,
		Amount:     req.Amount,
	}
	if req.PeriodType != nil {
		p := models.BudgetPeriod(*req.PeriodType)
		fields.PeriodType = &p
	}
	if req.StartDate != nil {
		start, err := parseDate("start_date", *req.StartDate)
		if err != nil {
			respondWithError(c, err)
			return
		}
		fields.StartDate = &start
	}
	if req.EndDate != nil {
		end, err := parseDate("end_date", *req.EndDate)
		if err != nil {
			respondWithError(c, err)
			return
		}
		fields.EndDate = &end
	}

	budget, err := h.budgetService.UpdateBudget(c.Request.Context(), userID, budgetID, fields)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// DeleteBudget deletes a budget
// @Summary     Delete budget
// @Tags        budgets
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     204 "Budget deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [delete]
func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id", apperrors.ErrBudgetNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.budgetService.DeleteBudget(c.Request.Context(), userID, budgetID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, "DELETE_BUDGET", "budget", budgetID, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// GetBudgetProgress reports spend and pace for the budget's current window
// @Summary     Budget progress
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} services.BudgetProgress "Progress"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/progress [get]
func (h *BudgetHandler) GetBudgetProgress(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id", apperrors.ErrBudgetNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	progress, err := h.budgetService.GetBudgetProgress(c.Request.Context(), userID, budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// GetBudgetsOverview aggregates progress across current budgets
// @Summary     Budgets overview
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.BudgetsOverview "Overview"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/overview [get]
func (h *BudgetHandler) GetBudgetsOverview(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	overview, err := h.budgetService.GetBudgetsOverview(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// GetRecommendations suggests budget amounts from past spending. With a
// category it answers for that category only.
// @Summary     Budget recommendations
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       category query string false "Expense category ID"
// @Param       months   query int    false "Lookback months (default 3, 1-12)"
// @Success     200 {object} services.BudgetRecommendations "Recommendations for every expense category"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     422 {object} ErrorResponse "Not enough history"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/recommendations [get]
func (h *BudgetHandler) GetRecommendations(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	months := 0
	if raw := c.Query("months"); raw != "" {
		if months, err = strconv.Atoi(raw); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "months must be an integer"))
			return
		}
	}

	if categoryID := c.Query("category"); categoryID != "" {
		if err := checkID(categoryID, apperrors.ErrCategoryNotFound); err != nil {
			respondWithError(c, err)
			return
		}
		rec, err := h.budgetService.RecommendForCategory(c.Request.Context(), userID, categoryID, months)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
		return
	}

	recs, err := h.budgetService.GetRecommendations(c.Request.Context(), userID, months)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, recs)
}

// CloneBudget copies a budget into the next period or a custom range
// @Summary     Clone budget
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Param       request body CloneBudgetRequest true "Clone options"
// @Success     201 {object} models.Budget "Cloned budget"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     409 {object} ErrorResponse "Overlapping budget"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/clone [post]
func (h *BudgetHandler) CloneBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id", apperrors.ErrBudgetNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CloneBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	input := services.CloneBudgetInput{PeriodShift: req.PeriodShift, Amount: req.Amount}
	if input.StartDate, err = optionalDate("start_date", req.StartDate); err != nil {
		respondWithError(c, err)
		return
	}
	if input.EndDate, err = optionalDate("end_date", req.EndDate); err != nil {
		respondWithError(c, err)
		return
	}

	budget, err := h.budgetService.CloneBudget(c.Request.Context(), userID, budgetID, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, "CLONE_BUDGET", "budget", budget.ID, c.ClientIP(),
		map[string]any{
			"source_budget_id": budgetID,
			"start_date":       budgetDate(budget.StartDate),
			"end_date":         budgetDate(budget.EndDate),
		})

	c.JSON(http.StatusCreated, gin.H{"budget": budget})
}

// DeactivateBudget marks a budget inactive
// @Summary     Deactivate budget
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} models.Budget "Deactivated budget"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/deactivate [post]
func (h *BudgetHandler) DeactivateBudget(c *gin.Context) {
	h.setActive(c, false)
}

// ReactivateBudget marks a budget active again
// @Summary     Reactivate budget
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} models.Budget "Reactivated budget"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     409 {object} ErrorResponse "Overlapping budget"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/reactivate [post]
func (h *BudgetHandler) ReactivateBudget(c *gin.Context) {
	h.setActive(c, true)
}

func (h *BudgetHandler) setActive(c *gin.Context, active bool) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id", apperrors.ErrBudgetNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	action := "DEACTIVATE_BUDGET"
	var budget *models.Budget
	if active {
		action = "REACTIVATE_BUDGET"
		budget, err = h.budgetService.ReactivateBudget(c.Request.Context(), userID, budgetID)
	} else {
		budget, err = h.budgetService.DeactivateBudget(c.Request.Context(), userID, budgetID)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, action, "budget", budgetID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// BulkCreateBudgets creates budgets from a template for the user's
// matching categories
// @Summary     Bulk create budgets
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body BulkCreateRequest true "Template options"
// @Success     201 {object} services.BulkCreateResult "Created and skipped"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/bulk_create [post]
func (h *BudgetHandler) BulkCreateBudgets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req BulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	input := services.BulkCreateInput{Template: req.Template, PeriodType: models.BudgetPeriod(req.PeriodType)}
	if input.StartDate, err = optionalDate("start_date", req.StartDate); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.budgetService.BulkCreateBudgets(c.Request.Context(), userID, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// budgetDate formats a budget date for audit payloads.
func budgetDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
