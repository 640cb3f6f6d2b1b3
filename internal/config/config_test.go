package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, int64(25*1024*1024), cfg.ImportMaxFileBytes)
	assert.Equal(t, 5000, cfg.ImportMaxRows)
	assert.Equal(t, 2*time.Hour, cfg.ImportSessionTTL)
	assert.Equal(t, "@every 5m", cfg.ImportSessionSweep)
	assert.False(t, cfg.ImportEnrichExisting)
	assert.Equal(t, 90, cfg.ServiceIntervalDays)
	assert.Equal(t, 5000, cfg.ServiceIntervalMiles)
	assert.False(t, cfg.IsProd())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("IMPORT_MAX_ROWS", "100")
	t.Setenv("IMPORT_ENRICH_EXISTING", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.ImportMaxRows)
	assert.True(t, cfg.ImportEnrichExisting)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.True(t, cfg.IsProd())
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadRejectsZeroInterval(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("SERVICE_INTERVAL_DAYS", "0")
	_, err := Load()
	assert.Error(t, err)
}
