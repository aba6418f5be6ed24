package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirroros/gateway/pkg/config"
	"github.com/mirroros/gateway/pkg/tiers"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "SQLITE_PATH", "PRIVATE_API_URL",
		"REDIS_URL", "CORS_ORIGINS", "FORGIVE_UPSTREAM_CLIENT_ERRORS", "OTEL_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "gateway.db", cfg.SQLitePath)
	assert.Nil(t, cfg.CORSOrigins)
	assert.False(t, cfg.ForgiveUpstreamClientErrors)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://gw@localhost/gw")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("FORGIVE_UPSTREAM_CLIENT_ERRORS", "true")

	cfg := config.Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres://gw@localhost/gw", cfg.DatabaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.ForgiveUpstreamClientErrors)
}

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadLimitsProfile_AppliesOverrides(t *testing.T) {
	restore := tiers.Free.Limits
	defer tiers.Override(tiers.TierFree, restore)

	path := writeProfile(t, `
tiers:
  free:
    predictions_per_day: 5
    requests_per_minute: 60
    requests_per_hour: 1000
forgive_upstream_client_errors: true
`)

	profile, err := config.LoadLimitsProfile(path)
	require.NoError(t, err)

	cfg := &config.Config{}
	profile.Apply(cfg)

	assert.True(t, cfg.ForgiveUpstreamClientErrors)
	limits := tiers.LimitsFor(tiers.TierFree)
	assert.Equal(t, int64(5), limits.PredictionsPerDay)
	assert.Equal(t, 60, limits.RequestsPerMinute)
	assert.Equal(t, 1000, limits.RequestsPerHour)
}

func TestLoadLimitsProfile_RejectsUnknownTier(t *testing.T) {
	path := writeProfile(t, `
tiers:
  platinum:
    predictions_per_day: 5
    requests_per_minute: 60
    requests_per_hour: 1000
`)
	_, err := config.LoadLimitsProfile(path)
	assert.Error(t, err)
}

func TestLoadLimitsProfile_RejectsMissingField(t *testing.T) {
	path := writeProfile(t, `
tiers:
  free:
    predictions_per_day: 5
`)
	_, err := config.LoadLimitsProfile(path)
	assert.Error(t, err)
}

func TestLoadLimitsProfile_RejectsNonInteger(t *testing.T) {
	path := writeProfile(t, `
tiers:
  free:
    predictions_per_day: many
    requests_per_minute: 60
    requests_per_hour: 1000
`)
	_, err := config.LoadLimitsProfile(path)
	assert.Error(t, err)
}

func TestLoadLimitsProfile_MissingFile(t *testing.T) {
	_, err := config.LoadLimitsProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
