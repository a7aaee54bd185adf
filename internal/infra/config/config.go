package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken   string
	DatabaseURL     string
	AdminTelegramID int64
	LogLevel        string
	Environment     string

	// DefaultTimezone is used for owners who never set one via /settz.
	DefaultTimezone string

	// CronSpecSweep drives the periodic store sweep that re-enqueues any due
	// reminder the in-memory index lost track of.
	CronSpecSweep string

	// DeliveryWorkers is the number of concurrent delivery consumers.
	DeliveryWorkers int
	// DeliveryRatePerSec caps outbound Telegram sends across all workers.
	DeliveryRatePerSec int
	// DeliveryFailureThreshold is the number of consecutive permanent
	// delivery failures after which a reminder is marked FAILED.
	DeliveryFailureThreshold int
	// DeliveryRetryDelay is how far a one-time reminder is pushed after a
	// failed delivery attempt below the threshold.
	DeliveryRetryDelay time.Duration
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
	if adminIDStr == "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}
	cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.DefaultTimezone = os.Getenv("DEFAULT_TIMEZONE")
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}

	cfg.CronSpecSweep = os.Getenv("CRON_SPEC_SWEEP")
	if cfg.CronSpecSweep == "" {
		cfg.CronSpecSweep = "*/5 * * * *" // Default: every 5 minutes
	}

	cfg.DeliveryWorkers, err = intFromEnv("DELIVERY_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	cfg.DeliveryRatePerSec, err = intFromEnv("DELIVERY_RATE_PER_SEC", 25)
	if err != nil {
		return nil, err
	}
	cfg.DeliveryFailureThreshold, err = intFromEnv("DELIVERY_FAILURE_THRESHOLD", 5)
	if err != nil {
		return nil, err
	}

	retryStr := os.Getenv("DELIVERY_RETRY_DELAY")
	if retryStr == "" {
		cfg.DeliveryRetryDelay = time.Minute
	} else {
		cfg.DeliveryRetryDelay, err = time.ParseDuration(retryStr)
		if err != nil {
			return nil, fmt.Errorf("invalid DELIVERY_RETRY_DELAY: %w", err)
		}
	}

	return cfg, nil
}

func intFromEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return v, nil
}
