package config

import "path/filepath"

const (
	defaultLogLevel       = "info"
	defaultMode           = "auto"
	defaultDownloadDir    = "download"
	defaultLedgerName     = "etf_download_progress.json"
	defaultMaxRetries     = 3
	defaultBackoffSec     = 2.0
	defaultMinIntervalSec = 0.8
	defaultAttemptTimeout = 30
	defaultHTTPAddr       = ":9995"
	defaultWindowDays     = 30
	defaultHistoryName    = "runs.db"
)

var defaultMinutePeriods = []string{"1", "5", "15"}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultLogLevel
	}
	if c.Sync.Mode == "" {
		c.Sync.Mode = defaultMode
	}
	if c.Sync.DownloadDir == "" {
		c.Sync.DownloadDir = defaultDownloadDir
	}
	if c.Sync.LedgerPath == "" {
		c.Sync.LedgerPath = filepath.Join(c.Sync.DownloadDir, defaultLedgerName)
	}
	if c.Sync.MaxRetries <= 0 {
		c.Sync.MaxRetries = defaultMaxRetries
	}
	if c.Sync.BackoffSeconds <= 0 {
		c.Sync.BackoffSeconds = defaultBackoffSec
	}
	if c.Sync.MinIntervalSeconds <= 0 {
		c.Sync.MinIntervalSeconds = defaultMinIntervalSec
	}
	if c.Sync.AttemptTimeoutSec <= 0 {
		c.Sync.AttemptTimeoutSec = defaultAttemptTimeout
	}
	if len(c.Minute.Periods) == 0 {
		c.Minute.Periods = append([]string(nil), defaultMinutePeriods...)
	}
	if c.Minute.WindowDays <= 0 {
		c.Minute.WindowDays = defaultWindowDays
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = defaultHTTPAddr
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.Sync.DownloadDir, defaultHistoryName)
	}
}
