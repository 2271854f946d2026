package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.QuotaDailyLimit)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 2.0, cfg.RetryFactor)
	assert.Equal(t, 30*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, "memory", cfg.QueueBackend)
	assert.Equal(t, "memory", cfg.QuotaBackend)
	assert.Equal(t, "Asia/Tokyo", cfg.Location().String())
}

func TestLoadQuotaFollowsPostgresStore(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.QuotaBackend)

	t.Setenv("QUOTA_BACKEND", "redis")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.QuotaBackend)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("QUOTA_DAILY_LIMIT", "200")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("TRACKING_BASE_URL", "https://mail.example.com/")
	t.Setenv("TRACKING_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.QuotaDailyLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, "https://mail.example.com", cfg.TrackingBaseURL)
	assert.Equal(t, "s3cret", cfg.TrackingSecret)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown store":        {"STORE_BACKEND": "mongo"},
		"unknown queue":        {"QUEUE_BACKEND": "kafka"},
		"zero quota":           {"QUOTA_DAILY_LIMIT": "0"},
		"bad timezone":         {"QUOTA_TIMEZONE": "Mars/Olympus"},
		"postgres quota store": {"QUOTA_BACKEND": "postgres"},
		"amqp with memory store": {
			"QUEUE_BACKEND": "amqp",
			"QUOTA_BACKEND": "redis",
		},
		"amqp with memory quota": {
			"STORE_BACKEND": "postgres",
			"QUEUE_BACKEND": "amqp",
			"QUOTA_BACKEND": "memory",
		},
		"tracking without secret": {"TRACKING_BASE_URL": "https://mail.example.com"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("STORE_BACKEND", "memory")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadReportsMalformedNumbers(t *testing.T) {
	cases := map[string][2]string{
		"quota typo":     {"QUOTA_DAILY_LIMIT", "5o"},
		"bad delay":      {"RETRY_BASE_DELAY", "abc"},
		"unitless delay": {"SEND_TIMEOUT", "10"},
		"bad factor":     {"RETRY_FACTOR", "x"},
		"bad port":       {"SMTP_PORT", "smtp"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("STORE_BACKEND", "memory")
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), kv[0])
		})
	}
}

func TestLoadReportsEveryMalformedValue(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("QUOTA_DAILY_LIMIT", "fifty")
	t.Setenv("RETRY_MAX_DELAY", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUOTA_DAILY_LIMIT")
	assert.Contains(t, err.Error(), "RETRY_MAX_DELAY")
}
