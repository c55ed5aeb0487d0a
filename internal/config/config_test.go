package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 7, cfg.ApprovalThresholdDays)
	assert.Equal(t, 2, cfg.DueReminderDays)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100, cfg.PublishBatch)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LOAN_APPROVAL_THRESHOLD_DAYS", "14")
	t.Setenv("OUTBOX_PUBLISH_INTERVAL", "250ms")
	t.Setenv("OUTBOX_PUBLISH_BATCH", "nonsense")

	cfg := FromEnv()
	assert.Equal(t, 14, cfg.ApprovalThresholdDays)
	assert.Equal(t, 250*time.Millisecond, cfg.PublishInterval)
	// Unparseable values fall back to the default.
	assert.Equal(t, 100, cfg.PublishBatch)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("SOME_KEY", "value")
	assert.Equal(t, "value", GetEnv("SOME_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnv("SOME_OTHER_KEY", "fallback"))
}
