package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Sync.Mode)
	assert.Equal(t, "download", cfg.Sync.DownloadDir)
	assert.Equal(t, filepath.Join("download", "etf_download_progress.json"), cfg.Sync.LedgerPath)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.InDelta(t, 2.0, cfg.Sync.BackoffSeconds, 1e-9)
	assert.InDelta(t, 0.8, cfg.Sync.MinIntervalSeconds, 1e-9)
	assert.Equal(t, 30, cfg.Sync.AttemptTimeoutSec)
	assert.Equal(t, []string{"1", "5", "15"}, cfg.Minute.Periods)
	assert.Equal(t, 30, cfg.Minute.WindowDays)
	assert.Equal(t, ":9995", cfg.Server.HTTPAddr)
	assert.Equal(t, filepath.Join("download", "runs.db"), cfg.History.Path)
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
sync:
  mode: full
  download_dir: /data/etf
  symbols:
    - "513500"
    - "159915"
  max_retries: 5
  backoff_seconds: 1.5
  skip_downloaded: true
provider:
  adjust: qfq
  timeout_seconds: 20
minute:
  enabled: true
  periods: ["5", "15"]
  window_days: 14
server:
  enabled: true
  http_addr: ":8080"
  auto_update_minutes: 60
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "full", cfg.Sync.Mode)
	assert.Equal(t, "/data/etf", cfg.Sync.DownloadDir)
	assert.Equal(t, []string{"513500", "159915"}, cfg.Sync.Symbols)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.True(t, cfg.Sync.SkipDownloaded)
	assert.Equal(t, "qfq", cfg.Provider.Adjust)
	assert.True(t, cfg.Minute.Enabled)
	assert.Equal(t, []string{"5", "15"}, cfg.Minute.Periods)
	assert.Equal(t, 14, cfg.Minute.WindowDays)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 60, cfg.Server.AutoUpdateMinutes)

	// 未显式给出的仍走默认值
	assert.Equal(t, filepath.Join("/data/etf", "etf_download_progress.json"), cfg.Sync.LedgerPath)
	assert.Equal(t, filepath.Join("/data/etf", "runs.db"), cfg.History.Path)
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	path := writeConfig(t, "sync:\n  mode: sideways\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidPeriod(t *testing.T) {
	path := writeConfig(t, "minute:\n  periods: [\"7\"]\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidAdjust(t *testing.T) {
	path := writeConfig(t, "provider:\n  adjust: dividend\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsExcessiveRetries(t *testing.T) {
	path := writeConfig(t, "sync:\n  max_retries: 100\n")
	_, err := Load(path)
	assert.Error(t, err)
}
