package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"marginbot/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (optional: price lookups use public endpoints)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Monitoring
	PollInterval       time.Duration // delay between price polls per open position
	PriceMaxRetries    int           // extra oracle attempts per poll before abandoning
	PriceRetryMinDelay time.Duration
	PriceRetryMaxDelay time.Duration

	// Persistence
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	pollIntervalMs := getEnvAsInt("POLL_INTERVAL_MS", 500)
	if pollIntervalMs <= 0 {
		errs = append(errs, "POLL_INTERVAL_MS must be positive")
	}
	cfg.PollInterval = time.Duration(pollIntervalMs) * time.Millisecond

	cfg.PriceMaxRetries = getEnvAsInt("PRICE_MAX_RETRIES", 3)
	if cfg.PriceMaxRetries < 0 {
		errs = append(errs, "PRICE_MAX_RETRIES cannot be negative")
	}

	retryMinMs := getEnvAsInt("PRICE_RETRY_MIN_MS", 200)
	retryMaxMs := getEnvAsInt("PRICE_RETRY_MAX_MS", 5000)
	if retryMinMs <= 0 || retryMaxMs < retryMinMs {
		errs = append(errs, "PRICE_RETRY_MIN_MS must be positive and no greater than PRICE_RETRY_MAX_MS")
	}
	cfg.PriceRetryMinDelay = time.Duration(retryMinMs) * time.Millisecond
	cfg.PriceRetryMaxDelay = time.Duration(retryMaxMs) * time.Millisecond

	cfg.DBPath = getEnv("DB_PATH", "./data/marginbot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
