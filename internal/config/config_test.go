package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"PORT":                          "",
		"PRICING_CACHE_TTL":             "",
		"PRICING_RATE_LIMIT_PER_MINUTE": "",
		"OBS_ENABLE_PROMETHEUS":         "",
		"OBS_ENABLE_TRACING":            "",
		"MAX_BODY_BYTES":                "",
		"OBS_TRACING_SAMPLING_RATIO":    "",
		"ORDERS_BREAKER_OPEN_FOR":       "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 5*time.Minute, cfg.SummaryCacheTTL)
	require.Equal(t, 600, cfg.RateLimitPerMinute)
	require.True(t, cfg.MetricsEnabled)
	require.False(t, cfg.TracingEnabled)
	require.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	require.Equal(t, 30*time.Second, cfg.BreakerOpenFor)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"PORT":                 ":9090",
		"CORS_ALLOWED_ORIGINS": "https://shop.example, ,https://admin.example",
		"PRICING_CACHE_TTL":    "not-a-duration",
		"OBS_ENABLE_TRACING":   "yes",
		"MAX_BODY_BYTES":       "2048",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 5*time.Minute, cfg.SummaryCacheTTL)
	require.True(t, cfg.TracingEnabled)
	require.Equal(t, int64(2048), cfg.MaxBodyBytes)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := LoadForTests(map[string]string{"MAX_BODY_BYTES": "-1"})
	require.Error(t, err)

	_, err = LoadForTests(map[string]string{"MAX_BODY_BYTES": "", "OBS_TRACING_SAMPLING_RATIO": "1.5"})
	require.Error(t, err)
}
