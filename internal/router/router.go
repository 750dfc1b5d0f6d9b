// Package router wires handlers, middleware and services into the gin engine.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"budgetbox/internal/cache"
	"budgetbox/internal/handlers"
	"budgetbox/internal/middleware"
	"budgetbox/internal/services"

	_ "budgetbox/internal/docs" // Import swagger docs
)

// Services groups the service layer used by the HTTP handlers.
type Services struct {
	Users        services.UserServicer
	Tokens       services.TokenServicer
	Audit        services.AuditServicer
	Accounts     services.AccountServicer
	Categories   services.CategoryServicer
	Transactions services.TransactionServicer
	Budgets      services.BudgetServicer
}

// NewServices builds every service on db, sharing one ledger cache.
func NewServices(db *gorm.DB, store cache.Cache, cacheTTL time.Duration) *Services {
	ledger := services.NewLedgerCache(store, cacheTTL)
	return &Services{
		Users:        services.NewUserService(db),
		Tokens:       services.NewTokenService(db),
		Audit:        services.NewAuditService(db),
		Accounts:     services.NewAccountService(db, ledger),
		Categories:   services.NewCategoryService(db, ledger),
		Transactions: services.NewTransactionService(db, ledger),
		Budgets:      services.NewBudgetService(db, ledger),
	}
}

// Options carries the non-service collaborators of the router.
type Options struct {
	CORSOrigin   string
	TokenManager *middleware.TokenManager
	LoginLimiter *middleware.ClientLimiter
	Health       handlers.HealthChecker
}

// New returns the configured gin engine.
func New(svc *Services, opts Options) *gin.Engine {
	authHandler := handlers.NewAuthHandler(svc.Users, svc.Tokens, svc.Audit, opts.TokenManager)
	accountHandler := handlers.NewAccountHandler(svc.Accounts, svc.Audit)
	categoryHandler := handlers.NewCategoryHandler(svc.Categories, svc.Audit)
	transactionHandler := handlers.NewTransactionHandler(svc.Transactions, svc.Audit)
	budgetHandler := handlers.NewBudgetHandler(svc.Budgets, svc.Audit)
	healthHandler := handlers.NewHealthHandler(opts.Health)

	origin := opts.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS(origin))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	api.GET("/health", healthHandler.Health)

	// Public routes
	auth := api.Group("/auth")
	if opts.LoginLimiter != nil {
		limited := auth.Group("", middleware.RateLimit(opts.LoginLimiter))
		limited.POST("/register", authHandler.Register)
		limited.POST("/login", authHandler.Login)
	} else {
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(opts.TokenManager, svc.Tokens))

	profile := protected.Group("/auth")
	profile.POST("/logout", authHandler.Logout)
	profile.GET("/profile", authHandler.GetProfile)
	profile.PUT("/profile/update", authHandler.UpdateProfile)
	profile.PATCH("/profile/update", authHandler.UpdateProfile)

	accounts := protected.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.ListAccounts)
	accounts.GET("/summary", accountHandler.GetAccountsSummary)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.PUT("/:id", accountHandler.UpdateAccount)
	accounts.PATCH("/:id", accountHandler.UpdateAccount)
	accounts.DELETE("/:id", accountHandler.DeleteAccount)
	accounts.GET("/:id/statement", accountHandler.GetAccountStatement)
	accounts.POST("/:id/transfer", accountHandler.Transfer)
	accounts.POST("/:id/deactivate", accountHandler.DeactivateAccount)

	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.ListTransactions)
	transactions.GET("/statistics", transactionHandler.GetStatistics)
	transactions.GET("/monthly_summary", transactionHandler.GetMonthlySummary)
	transactions.POST("/bulk_categorize", transactionHandler.BulkCategorize)
	transactions.GET("/:id", transactionHandler.GetTransaction)
	transactions.PUT("/:id", transactionHandler.UpdateTransaction)
	transactions.PATCH("/:id", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)
	transactions.POST("/:id/duplicate", transactionHandler.DuplicateTransaction)

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.ListCategories)
	categories.POST("/set_defaults", categoryHandler.SetDefaultCategories)
	categories.GET("/:id", categoryHandler.GetCategory)
	categories.PUT("/:id", categoryHandler.UpdateCategory)
	categories.PATCH("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)
	categories.GET("/:id/usage", categoryHandler.GetCategoryUsage)
	categories.POST("/:id/reassign_transactions", categoryHandler.ReassignTransactions)

	budgets := protected.Group("/budgets")
	budgets.POST("", budgetHandler.CreateBudget)
	budgets.GET("", budgetHandler.ListBudgets)
	budgets.GET("/overview", budgetHandler.GetBudgetsOverview)
	budgets.GET("/recommendations", budgetHandler.GetRecommendations)
	budgets.POST("/bulk_create", budgetHandler.BulkCreateBudgets)
	budgets.GET("/:id", budgetHandler.GetBudget)
	budgets.PUT("/:id", budgetHandler.UpdateBudget)
	budgets.PATCH("/:id", budgetHandler.UpdateBudget)
	budgets.DELETE("/:id", budgetHandler.DeleteBudget)
	budgets.GET("/:id/progress", budgetHandler.GetBudgetProgress)
	budgets.POST("/:id/clone", budgetHandler.CloneBudget)
	budgets.POST("/:id/deactivate", budgetHandler.DeactivateBudget)
	budgets.POST("/:id/reactivate", budgetHandler.ReactivateBudget)

	return router
}
