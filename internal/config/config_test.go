package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10, cfg.LowStockThreshold)
	assert.Equal(t, "UTC", cfg.ReportTimezone)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LOW_STOCK_THRESHOLD", "3")
	t.Setenv("REPORT_TIMEZONE", "America/New_York")
	t.Setenv("SESSION_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 3, cfg.LowStockThreshold)
	assert.Equal(t, "America/New_York", cfg.ReportTimezone)
	assert.Equal(t, time.Hour, cfg.SessionTTL)

	loc, err := cfg.ReportLocation()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestGarbageThresholdKeepsDefault(t *testing.T) {
	t.Setenv("LOW_STOCK_THRESHOLD", "plenty")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.LowStockThreshold)
}

func TestYAMLFileLayeredUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7777\"\nlow_stock_threshold: 5\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "6666")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "6666", cfg.Port, "env wins over file")
	assert.Equal(t, 5, cfg.LowStockThreshold, "file wins over default")
}

func TestMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}
