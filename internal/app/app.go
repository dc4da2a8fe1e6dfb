package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"etfsync/internal/catalog"
	"etfsync/internal/config"
	"etfsync/internal/config/loader"
	"etfsync/internal/logger"
	"etfsync/internal/progress"
	"etfsync/internal/provider"
	"etfsync/internal/store/runlog"
	"etfsync/internal/syncer"
	transporthttp "etfsync/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置 → 初始化依赖 → 一次性运行或常驻
// （HTTP 接口 + 周期自动更新）。
type App struct {
	cfg     *config.Config
	manager *SyncManager
	http    *transporthttp.Server
	runlog  *runlog.Store
	watcher *loader.SymbolsWatcher
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	client := provider.NewEastMoney(provider.EastMoneyConfig{
		HistBaseURL: cfg.Provider.HistBaseURL,
		ListBaseURL: cfg.Provider.ListBaseURL,
		Adjust:      cfg.Provider.Adjust,
		Timeout:     time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
	})
	store := progress.NewStore(cfg.Sync.LedgerPath)
	cat := catalog.New(client, cfg.Sync.DownloadDir)
	limiter := syncer.NewLimiter(time.Duration(cfg.Sync.MinIntervalSeconds * float64(time.Second)))

	downloader, err := syncer.NewDownloader(syncer.DownloaderConfig{
		Client:      client,
		DownloadDir: cfg.Sync.DownloadDir,
		Policy: syncer.RetryPolicy{
			MaxAttempts: cfg.Sync.MaxRetries,
			Backoff:     syncer.LinearBackoff(time.Duration(cfg.Sync.BackoffSeconds * float64(time.Second))),
			Retryable:   provider.IsTransient,
		},
		AttemptTimeout: time.Duration(cfg.Sync.AttemptTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	symbols := cfg.Sync.Symbols
	if len(symbols) == 0 && cfg.Sync.SymbolsFile != "" {
		loaded, err := loader.LoadSymbols(cfg.Sync.SymbolsFile)
		if err != nil {
			return nil, fmt.Errorf("读取 symbols 文件失败: %w", err)
		}
		symbols = loaded
		logger.Infof("[app] 从文件加载 %d 个 symbol", len(symbols))
	}

	var runStore *runlog.Store
	if cfg.History.Path != "" {
		runStore, err = runlog.NewStore(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("初始化运行历史库失败: %w", err)
		}
	}

	a := &App{
		cfg:     cfg,
		manager: newSyncManager(cfg, downloader, store, cat, limiter, runStore, symbols),
		runlog:  runStore,
	}
	if cfg.Server.Enabled {
		a.http, err = transporthttp.NewServer(cfg.Server.HTTPAddr, a.manager)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Run 启动应用。非常驻模式跑一轮就退出；常驻模式起 HTTP 接口，
// 可选周期自动更新与 symbols 文件监听。
func (a *App) Run(ctx context.Context) error {
	a.manager.SetContext(ctx)

	if !a.cfg.Server.Enabled {
		stats, err := a.manager.RunOnce(ctx, "", "", nil)
		if err != nil {
			return err
		}
		PrintSummary(stats)
		return nil
	}

	if a.cfg.Server.WatchSymbolsFile && a.cfg.Sync.SymbolsFile != "" {
		watcher, err := loader.WatchSymbols(a.cfg.Sync.SymbolsFile, a.manager.SetSymbols)
		if err != nil {
			logger.Warnf("[app] 启动 symbols 监听失败: %v", err)
		} else {
			a.watcher = watcher
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.http.Start(ctx)
	})
	if a.cfg.Server.AutoUpdateMinutes > 0 {
		interval := time.Duration(a.cfg.Server.AutoUpdateMinutes) * time.Minute
		group.Go(func() error {
			a.autoUpdateLoop(ctx, interval)
			return nil
		})
	}
	err := group.Wait()
	a.Close()
	return err
}

func (a *App) autoUpdateLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.manager.StartRun("update", nil); err != nil {
				if errors.Is(err, transporthttp.ErrRunActive) {
					logger.Debugf("[app] 跳过自动更新：已有任务在运行")
					continue
				}
				logger.Warnf("[app] 自动更新启动失败: %v", err)
			}
		}
	}
}

func (a *App) Close() {
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if a.runlog != nil {
		_ = a.runlog.Close()
	}
}
