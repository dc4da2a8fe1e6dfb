package config

// Config 是 etfsync 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Sync     SyncConfig     `toml:"sync"`
	Provider ProviderConfig `toml:"provider"`
	Minute   MinuteConfig   `toml:"minute"`
	Server   ServerConfig   `toml:"server"`
	History  HistoryConfig  `toml:"history"`
}

type AppConfig struct {
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// SyncConfig 描述一轮同步的运行参数。
type SyncConfig struct {
	Mode               string   `toml:"mode"` // full / update / auto
	DownloadDir        string   `toml:"download_dir"`
	LedgerPath         string   `toml:"ledger_path"`
	Symbols            []string `toml:"symbols"`      // 显式目标列表
	SymbolsFile        string   `toml:"symbols_file"` // 或从文件读取
	MaxRetries         int      `toml:"max_retries"`
	BackoffSeconds     float64  `toml:"backoff_seconds"`      // 线性退避基数
	MinIntervalSeconds float64  `toml:"min_interval_seconds"` // 相邻请求最小间隔
	AttemptTimeoutSec  int      `toml:"attempt_timeout_seconds"`
	SkipDownloaded     bool     `toml:"skip_downloaded"`
	VerifyBeforeRun    bool     `toml:"verify_before_run"`
	BackupBeforeRun    bool     `toml:"backup_before_run"`
}

type ProviderConfig struct {
	HistBaseURL    string `toml:"hist_base_url"`
	ListBaseURL    string `toml:"list_base_url"`
	Adjust         string `toml:"adjust"` // "" / qfq / hfq
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MinuteConfig 控制分钟线粒度。
type MinuteConfig struct {
	Enabled    bool     `toml:"enabled"`
	Periods    []string `toml:"periods"`
	WindowDays int      `toml:"window_days"`
}

// ServerConfig 控制常驻模式：HTTP 状态接口与周期性自动更新。
type ServerConfig struct {
	Enabled           bool   `toml:"enabled"`
	HTTPAddr          string `toml:"http_addr"`
	AutoUpdateMinutes int    `toml:"auto_update_minutes"` // 0 = 不自动更新
	WatchSymbolsFile  bool   `toml:"watch_symbols_file"`  // symbols_file 变更后热加载
}

// HistoryConfig 是运行历史库（sqlite）的位置。
type HistoryConfig struct {
	Path string `toml:"path"`
}
