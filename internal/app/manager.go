package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"etfsync/internal/catalog"
	"etfsync/internal/config"
	"etfsync/internal/logger"
	"etfsync/internal/market"
	"etfsync/internal/progress"
	"etfsync/internal/store/runlog"
	"etfsync/internal/syncer"
	transporthttp "etfsync/internal/transport/http"

	"github.com/google/uuid"
)

// SyncManager 串行化同步运行：同一下载目录同一时刻只允许一轮在跑
// （单写者纪律），并把每轮统计写入运行历史库。
type SyncManager struct {
	cfg        *config.Config
	downloader *syncer.Downloader
	store      *progress.Store
	catalog    *catalog.Catalog
	limiter    *syncer.Limiter
	runlog     *runlog.Store
	baseCtx    context.Context

	mu       sync.Mutex
	activeID string
	symbols  []string
}

func newSyncManager(cfg *config.Config, dl *syncer.Downloader, store *progress.Store,
	cat *catalog.Catalog, limiter *syncer.Limiter, rl *runlog.Store, symbols []string) *SyncManager {
	return &SyncManager{
		cfg:        cfg,
		downloader: dl,
		store:      store,
		catalog:    cat,
		limiter:    limiter,
		runlog:     rl,
		baseCtx:    context.Background(),
		symbols:    symbols,
	}
}

// SetContext 注入宿主 ctx，用于任务取消。
func (m *SyncManager) SetContext(ctx context.Context) {
	if ctx != nil {
		m.baseCtx = ctx
	}
}

// SetSymbols 热更新目标列表（symbols 文件变更时调用），对进行中的
// 运行不生效，下一轮开始采用。
func (m *SyncManager) SetSymbols(symbols []string) {
	m.mu.Lock()
	m.symbols = append([]string(nil), symbols...)
	m.mu.Unlock()
}

func (m *SyncManager) currentSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.symbols...)
}

// RunOnce 同步地执行一轮。modeOverride/symbolsOverride 为空时用
// 配置值。
func (m *SyncManager) RunOnce(ctx context.Context, runID string, modeOverride string, symbolsOverride []string) (syncer.RunStats, error) {
	mode := syncer.Mode(m.cfg.Sync.Mode)
	if modeOverride != "" {
		mode = syncer.Mode(modeOverride)
	}
	symbols := symbolsOverride
	if len(symbols) == 0 {
		symbols = m.currentSymbols()
	}

	grans := []syncer.Granularity{syncer.Daily}
	if m.cfg.Minute.Enabled {
		grans = append(grans, syncer.MinutePeriods(m.cfg.Minute.Periods, m.cfg.Minute.WindowDays)...)
	}

	if m.cfg.Sync.VerifyBeforeRun {
		syncer.VerifyDatasets(m.cfg.Sync.DownloadDir, grans)
	}
	if m.cfg.Sync.BackupBeforeRun {
		if _, err := syncer.BackupDatasets(m.cfg.Sync.DownloadDir); err != nil {
			logger.Warnf("[app] 备份失败: %v", err)
		}
	}

	engine, err := syncer.NewEngine(syncer.EngineConfig{
		RunID:          runID,
		Mode:           mode,
		Symbols:        symbols,
		Granularities:  grans,
		SkipDownloaded: m.cfg.Sync.SkipDownloaded,
		DownloadDir:    m.cfg.Sync.DownloadDir,
	}, m.downloader, m.store, m.catalog, m.limiter)
	if err != nil {
		return syncer.RunStats{}, err
	}
	stats, err := engine.Run(ctx)
	if err != nil {
		return stats, err
	}
	if m.runlog != nil {
		if saveErr := m.runlog.SaveRun(stats); saveErr != nil {
			logger.Warnf("[app] 保存运行历史失败: %v", saveErr)
		}
	}
	return stats, nil
}

// StartRun 异步启动一轮同步，立即返回 run ID；已有运行时拒绝。
func (m *SyncManager) StartRun(mode string, symbols []string) (string, error) {
	switch syncer.Mode(mode) {
	case syncer.ModeFull, syncer.ModeUpdate, syncer.ModeAuto, "":
	default:
		return "", fmt.Errorf("不支持的模式: %s", mode)
	}
	m.mu.Lock()
	if m.activeID != "" {
		m.mu.Unlock()
		return "", transporthttp.ErrRunActive
	}
	runID := uuid.NewString()
	m.activeID = runID
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.activeID = ""
			m.mu.Unlock()
		}()
		if _, err := m.RunOnce(m.baseCtx, runID, mode, symbols); err != nil {
			logger.Errorf("[app] 运行 %s 失败: %v", runID, err)
		}
	}()
	return runID, nil
}

// ActiveRun 返回进行中的 run ID。
func (m *SyncManager) ActiveRun() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID, m.activeID != ""
}

func (m *SyncManager) History(limit int) ([]syncer.RunStats, error) {
	if m.runlog == nil {
		return nil, nil
	}
	return m.runlog.ListRuns(limit)
}

func (m *SyncManager) RunByID(id string) (syncer.RunStats, bool, error) {
	if m.runlog == nil {
		return syncer.RunStats{}, false, nil
	}
	return m.runlog.Run(id)
}

func (m *SyncManager) Ledger() progress.Ledger {
	return m.store.Snapshot()
}

// ResetLedger 清空进度账本。运行中不允许重置（账本是单写者）。
func (m *SyncManager) ResetLedger() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID != "" {
		return transporthttp.ErrRunActive
	}
	return m.store.Reset()
}

// ReadDataset 读取某 symbol 的本地数据集尾部切片。
func (m *SyncManager) ReadDataset(symbol, period string, limit int) (market.Dataset, error) {
	path, found := market.FindFile(m.cfg.Sync.DownloadDir, symbol, period)
	if !found {
		return market.Dataset{}, errors.New("本地没有该 symbol 的数据文件")
	}
	ds, err := market.ReadCSV(path)
	if err != nil {
		return market.Dataset{}, err
	}
	if limit > 0 && ds.Len() > limit {
		ds.Rows = ds.Rows[ds.Len()-limit:]
	}
	return ds, nil
}
