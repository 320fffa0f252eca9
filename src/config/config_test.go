package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "") // registers restoration on cleanup
		os.Unsetenv(key)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "ALLOWED_CURRENCIES", "BASE_CURRENCY", "ROW_FAILURE_POLICY",
		"REPORT_CACHE_TTL", "MAX_UPLOAD_SIZE_BYTES", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST")

	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"USD", "EUR", "GBP", "JPY", "CHF", "CAD", "AUD", "NZD", "HKD"}, cfg.AllowedCurrencies)
	assert.Equal(t, "EUR", cfg.BaseCurrency)
	assert.Equal(t, "abort", cfg.RowFailurePolicy)
	assert.Equal(t, int64(DefaultMaxUploadBytes), cfg.MaxUploadSizeBytes)
	assert.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 30, cfg.RateLimitBurst)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ALLOWED_CURRENCIES", " usd, eur ,,sek")
	t.Setenv("BASE_CURRENCY", "usd")
	t.Setenv("ROW_FAILURE_POLICY", "SKIP")
	t.Setenv("REPORT_CACHE_TTL", "0s")
	t.Setenv("MAX_UPLOAD_SIZE_BYTES", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "7")

	cfg := FromEnv()

	assert.Equal(t, []string{"USD", "EUR", "SEK"}, cfg.AllowedCurrencies)
	assert.Equal(t, "USD", cfg.BaseCurrency)
	assert.Equal(t, "skip", cfg.RowFailurePolicy)
	assert.Equal(t, time.Duration(0), cfg.ReportCacheTTL)
	assert.Equal(t, int64(DefaultMaxUploadBytes), cfg.MaxUploadSizeBytes)
	assert.Equal(t, 7, cfg.RateLimitBurst)
}
