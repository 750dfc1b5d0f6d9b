package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budgetbox/internal/cache"
	"budgetbox/internal/config"
	"budgetbox/internal/database"
	"budgetbox/internal/jobs"
	"budgetbox/internal/logger"
	"budgetbox/internal/middleware"
	"budgetbox/internal/router"
	"budgetbox/internal/validator"
)

// @title           BudgetBox API
// @version         1.0
// @description     BudgetBox tracks accounts, transactions, categories and budgets for personal finance.

// @host      localhost:8080
// @BasePath  /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

const shutdownTimeout = 15 * time.Second

func main() {
	logger.Init(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.Env == "production" && appConfig.JWTSecret == "fallback-secret-key-for-dev-only" {
		return errors.New("JWT_SECRET must be set in production")
	}

	dbManager, err := database.NewManager(database.NewConfig(appConfig))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	validator.Register()

	jobOpts := jobs.Options{}
	var store cache.Cache
	switch appConfig.CacheBackend {
	case "redis":
		redisCache := cache.NewRedisCache(appConfig.RedisAddr, appConfig.RedisPassword, appConfig.RedisDB, "budgetbox:")
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisCache.Close()
		store = redisCache
	default:
		memoryCache := cache.NewMemoryCache()
		jobOpts.Cache = memoryCache
		store = memoryCache
	}
	log.Infof("Using %s cache backend", appConfig.CacheBackend)

	svc := router.NewServices(dbManager.DB(), store, appConfig.CacheTTL)
	limiter := middleware.NewClientLimiter(appConfig.LoginRateLimit, appConfig.LoginRateBurst)

	engine := router.New(svc, router.Options{
		CORSOrigin:   appConfig.CORSAllowedOrigin,
		TokenManager: middleware.NewTokenManager(appConfig.JWTSecret, appConfig.JWTExpirationDur, appConfig.JWTRefreshDuration),
		LoginLimiter: limiter,
		Health:       dbManager,
	})

	jobOpts.Tokens = svc.Tokens
	jobOpts.Limiter = limiter
	scheduler, err := jobs.New(jobOpts)
	if err != nil {
		return fmt.Errorf("failed to schedule jobs: %w", err)
	}
	scheduler.Start()

	server := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting BudgetBox server on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigChan:
		log.Infow("Shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	scheduler.Stop(ctx)
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
