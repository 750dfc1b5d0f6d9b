// Package config loads BudgetBox settings from the environment.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"budgetbox/internal/logger"
)

// Config holds application configuration
type Config struct {
	// Server
	Env               string
	Port              string
	LogLevel          string
	CORSAllowedOrigin string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret          string
	JWTExpirationDur   time.Duration
	JWTRefreshDuration time.Duration

	// Aggregation cache
	CacheBackend  string
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Login throttling, requests per second per client IP.
	LoginRateLimit float64
	LoginRateBurst int
}

var defaults = map[string]any{
	"ENV":                    "development",
	"PORT":                   "8080",
	"LOG_LEVEL":              "",
	"CORS_ALLOWED_ORIGIN":    "*",
	"DB_HOST":                "localhost",
	"DB_PORT":                "5432",
	"DB_USER":                "budgetbox",
	"DB_PASSWORD":            "budgetbox",
	"DB_NAME":                "budgetbox",
	"DB_SSLMODE":             "disable",
	"JWT_SECRET":             "fallback-secret-key-for-dev-only",
	"JWT_EXPIRES_IN":         "24h",
	"JWT_REFRESH_EXPIRES_IN": "168h",
	"CACHE_BACKEND":          "memory",
	"CACHE_TTL":              "5m",
	"REDIS_ADDR":             "localhost:6379",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"LOGIN_RATE_LIMIT":       5.0,
	"LOGIN_RATE_BURST":       10,
}

var appConfig *Config

// Load reads an optional .env file, then resolves every key from the
// process environment with the defaults above.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Get().Debug(".env file not found, using environment only")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	config := &Config{
		Env:               v.GetString("ENV"),
		Port:              v.GetString("PORT"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		CORSAllowedOrigin: v.GetString("CORS_ALLOWED_ORIGIN"),

		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetString("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBSSLMode:  v.GetString("DB_SSLMODE"),

		JWTSecret:          v.GetString("JWT_SECRET"),
		JWTExpirationDur:   durationOr(v, "JWT_EXPIRES_IN", 24*time.Hour),
		JWTRefreshDuration: durationOr(v, "JWT_REFRESH_EXPIRES_IN", 7*24*time.Hour),

		CacheBackend:  strings.ToLower(v.GetString("CACHE_BACKEND")),
		CacheTTL:      durationOr(v, "CACHE_TTL", 5*time.Minute),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		LoginRateLimit: v.GetFloat64("LOGIN_RATE_LIMIT"),
		LoginRateBurst: v.GetInt("LOGIN_RATE_BURST"),
	}

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		cfg, err := Load()
		if err != nil {
			logger.Get().Fatalf("Failed to load configuration: %v", err)
		}
		appConfig = cfg
	}
	return appConfig
}

// durationOr parses key as a time.Duration, logging and returning fallback
// when the value does not parse.
func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Get().Warnf("invalid %s value %q, falling back to %s", key, raw, fallback)
		return fallback
	}
	return d
}
