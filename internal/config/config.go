// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries the tunables for the lifecycle engine, the sweeper and the
// outbox publisher. It is built once in main and passed into constructors;
// nothing reads the environment after startup.
type Config struct {
	// Loans requested for longer than this many days need manager approval.
	ApprovalThresholdDays int
	// Reminder window: loans due within this many days get AssetDueSoon.
	DueReminderDays int

	// Publisher settings.
	MaxRetries      int
	PublishInterval time.Duration
	PublishBatch    int

	SweepInterval time.Duration
}

// Default returns the configuration the original deployment shipped with.
func Default() Config {
	return Config{
		ApprovalThresholdDays: 7,
		DueReminderDays:       2,
		MaxRetries:            3,
		PublishInterval:       5 * time.Second,
		PublishBatch:          100,
		SweepInterval:         time.Minute,
	}
}

// FromEnv overlays environment overrides onto the defaults.
func FromEnv() Config {
	cfg := Default()
	cfg.ApprovalThresholdDays = envInt("LOAN_APPROVAL_THRESHOLD_DAYS", cfg.ApprovalThresholdDays)
	cfg.DueReminderDays = envInt("LOAN_DUE_REMINDER_DAYS", cfg.DueReminderDays)
	cfg.MaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.MaxRetries)
	cfg.PublishInterval = envDuration("OUTBOX_PUBLISH_INTERVAL", cfg.PublishInterval)
	cfg.PublishBatch = envInt("OUTBOX_PUBLISH_BATCH", cfg.PublishBatch)
	cfg.SweepInterval = envDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	return cfg
}

// GetEnv returns the value of key or a fallback default.
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
