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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 7179, cfg.Questions.DiscountStock)
	assert.Equal(t, 7163, cfg.Questions.VendorStatus)
	assert.Equal(t, 7196, cfg.Questions.VendorProductStatus)
	assert.Equal(t, 180*time.Second, cfg.Jobs.DiscountStockInterval)
	assert.Equal(t, 3, cfg.Alerts.DiscountNearEndThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Session.InactivityTimeout)
	assert.Equal(t, 30*time.Second, cfg.Session.LockTimeout)
	assert.Equal(t, 50000, cfg.Metabase.PageSize)

	assert.Equal(t, 180*time.Second, cfg.RefreshInterval())
	assert.Equal(t, 360*time.Second, cfg.HeartbeatThreshold())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  log_level: debug
metabase:
  url: https://metabase.internal
  username: bot
  password: secret
jobs:
  vendor_status_interval: 60s
session:
  inactivity_timeout: 2m
`), 0o600))

	t.Setenv("METABASE_PASSWORD", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "https://metabase.internal", cfg.Metabase.URL)
	assert.Equal(t, "from-env", cfg.Metabase.Password)
	assert.Equal(t, 2*time.Minute, cfg.Session.InactivityTimeout)
	assert.Equal(t, 60*time.Second, cfg.RefreshInterval())
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.ErrorContains(t, cfg.Validate(), "metabase.url")

	cfg.Metabase.URL = "http://mb"
	cfg.Metabase.Username = "u"
	cfg.Metabase.Password = "p"
	require.NoError(t, cfg.Validate())

	cfg.Alerts.DiscountNearEndThreshold = 0
	assert.ErrorContains(t, cfg.Validate(), "threshold")

	cfg.Alerts.DiscountNearEndThreshold = 3
	cfg.Lmstfy.Host = "lmstfy"
	cfg.Lmstfy.Queue = ""
	assert.ErrorContains(t, cfg.Validate(), "lmstfy.queue")
}
