package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"etfsync/internal/catalog"
	"etfsync/internal/logger"
	"etfsync/internal/market"
	"etfsync/internal/progress"
	"etfsync/internal/provider"

	"github.com/google/uuid"
)

// RunStats 汇总一轮同步的结果。
type RunStats struct {
	RunID           string        `json:"run_id"`
	Mode            Mode          `json:"mode"`
	SuccessCount    int           `json:"success_count"`
	FailCount       int           `json:"fail_count"`
	FailedSymbols   []string      `json:"failed_symbols"`
	TotalNewRecords int           `json:"total_new_records"`
	TotalSymbols    int           `json:"total_symbols"`
	StartedAt       time.Time     `json:"started_at"`
	Elapsed         time.Duration `json:"elapsed"`
	Interrupted     bool          `json:"interrupted"`
}

// EngineConfig 是一轮运行的解析后配置。
type EngineConfig struct {
	RunID          string // 为空时自动生成
	Mode           Mode
	Symbols        []string // 显式目标；为空时 full 用远端目录、update 用本地已有文件
	Granularities  []Granularity
	SkipDownloaded bool // full 模式下跳过账本中已完成的子键
	DownloadDir    string
}

// Engine 驱动整轮同步：解析模式、遍历 symbol、限速拉取、记账、
// 汇总统计。严格单线程顺序执行，任何时刻最多一个在途请求。
type Engine struct {
	cfg        EngineConfig
	downloader *Downloader
	store      *progress.Store
	catalog    *catalog.Catalog
	limiter    *Limiter
}

func NewEngine(cfg EngineConfig, dl *Downloader, store *progress.Store, cat *catalog.Catalog, limiter *Limiter) (*Engine, error) {
	if dl == nil || store == nil || cat == nil {
		return nil, errors.New("downloader/store/catalog 不能为空")
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	if len(cfg.Granularities) == 0 {
		cfg.Granularities = []Granularity{Daily}
	}
	return &Engine{cfg: cfg, downloader: dl, store: store, catalog: cat, limiter: limiter}, nil
}

// Run 执行一轮同步。取消信号在 symbol 边界生效：当前 symbol 的
// 结果一定先记账再退出，账本不会出现"尝试过但未记录"的状态。
func (e *Engine) Run(ctx context.Context) (RunStats, error) {
	runID := e.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	stats := RunStats{
		RunID:     runID,
		StartedAt: time.Now(),
	}
	mode := e.resolveMode()
	stats.Mode = mode

	e.reconcile()
	if err := e.store.MarkRunStart(); err != nil {
		logger.Warnf("[sync] 记录运行起点失败: %v", err)
	}

	symbols, err := e.targetSymbols(ctx, mode)
	if err != nil {
		return stats, err
	}
	stats.TotalSymbols = len(symbols)
	logger.Infof("[sync] 运行 %s：模式=%s，目标 %d 个 symbol，粒度 %d 种",
		stats.RunID, mode, len(symbols), len(e.cfg.Granularities))

loop:
	for i, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			stats.Interrupted = true
			break loop
		}
		logger.Infof("[sync] [%d/%d] 处理 %s", i+1, len(symbols), symbol)
		for _, gran := range e.cfg.Granularities {
			if err := ctx.Err(); err != nil {
				stats.Interrupted = true
				break loop
			}
			e.runOne(ctx, mode, symbol, gran, &stats)
		}
	}

	stats.Elapsed = time.Since(stats.StartedAt)
	logger.Infof("[sync] 运行 %s 结束 - 成功: %d, 失败: %d, 新增记录: %d, 耗时: %.1f 秒",
		stats.RunID, stats.SuccessCount, stats.FailCount, stats.TotalNewRecords, stats.Elapsed.Seconds())
	return stats, nil
}

func (e *Engine) runOne(ctx context.Context, mode Mode, symbol string, gran Granularity, stats *RunStats) {
	subKey := gran.SubKey()
	if mode == ModeFull && e.cfg.SkipDownloaded && e.store.IsDownloaded(symbol, subKey) {
		logger.Debugf("[sync] 跳过 %s（账本已完成）", gran.Label(symbol))
		return
	}

	_, hasLocal := market.FindFile(e.cfg.DownloadDir, symbol, gran.Period)
	name, err := e.catalog.Resolve(symbol, gran.Period, mode == ModeFull && !hasLocal)
	if err != nil {
		logger.Errorf("[sync] %s 名称解析失败: %v", symbol, err)
		e.record(symbol, gran, stats, Result{}, err)
		return
	}

	if err := e.limiter.Wait(ctx); err != nil {
		stats.Interrupted = true
		return
	}

	task := Task{Symbol: symbol, Name: name, Gran: gran, Mode: mode}
	result, err := e.downloader.Run(ctx, task)
	if errors.Is(err, ErrMissingBaseline) && mode == ModeUpdate {
		// 没有基线就对这一个 symbol 降级为全量。
		logger.Warnf("[sync] %s 缺少本地基线，回退为全量下载", gran.Label(symbol))
		if waitErr := e.limiter.Wait(ctx); waitErr != nil {
			stats.Interrupted = true
			return
		}
		task.Mode = ModeFull
		result, err = e.downloader.Run(ctx, task)
	}
	e.record(symbol, gran, stats, result, err)
}

func (e *Engine) record(symbol string, gran Granularity, stats *RunStats, result Result, err error) {
	subKey := gran.SubKey()
	if err == nil {
		if recErr := e.store.RecordSuccess(symbol, subKey, result.LastDate); recErr != nil {
			logger.Errorf("[sync] 记账失败 (%s): %v", gran.Label(symbol), recErr)
		}
		stats.SuccessCount++
		stats.TotalNewRecords += result.NewRecords
		return
	}
	reason := classifyReason(err)
	if recErr := e.store.RecordFailure(symbol, subKey, reason); recErr != nil {
		logger.Errorf("[sync] 记账失败 (%s): %v", gran.Label(symbol), recErr)
	}
	stats.FailCount++
	stats.FailedSymbols = append(stats.FailedSymbols, gran.Label(symbol))
	logger.Errorf("[sync] %s 同步失败: %v", gran.Label(symbol), err)
}

// resolveMode 把 auto 解析为 full / update：本地（账本或磁盘）一个
// symbol 都没有时全量，否则增量。
func (e *Engine) resolveMode() Mode {
	if e.cfg.Mode == ModeFull || e.cfg.Mode == ModeUpdate {
		return e.cfg.Mode
	}
	existing := e.existingSymbolSet()
	if len(existing) == 0 && e.store.DownloadedSymbols() == 0 {
		logger.Infof("[sync] 未发现已有数据，自动切换到全量下载模式")
		return ModeFull
	}
	logger.Infof("[sync] 发现 %d 个已有 symbol，自动切换到增量更新模式", len(existing))
	return ModeUpdate
}

// reconcile 把磁盘上已有而账本缺失的文件补记进账本，磁盘状态比
// 过期或丢失的账本更可信。
func (e *Engine) reconcile() {
	found := make(map[string][]string)
	for _, gran := range e.cfg.Granularities {
		for _, symbol := range market.ExistingSymbols(e.cfg.DownloadDir, gran.Period) {
			found[symbol] = append(found[symbol], gran.SubKey())
		}
	}
	if len(found) == 0 {
		return
	}
	if _, err := e.store.Reconcile(found); err != nil {
		logger.Warnf("[sync] 账本对账失败: %v", err)
	}
}

func (e *Engine) existingSymbolSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, gran := range e.cfg.Granularities {
		for _, symbol := range market.ExistingSymbols(e.cfg.DownloadDir, gran.Period) {
			set[symbol] = struct{}{}
		}
	}
	return set
}

// targetSymbols 解析本轮目标集合，固定升序保证可复现。
func (e *Engine) targetSymbols(ctx context.Context, mode Mode) ([]string, error) {
	if len(e.cfg.Symbols) > 0 {
		out := append([]string(nil), e.cfg.Symbols...)
		sort.Strings(out)
		// 目录尽力加载，供名称解析用；失败时走文件名回退。
		_ = e.catalog.Load(ctx)
		return out, nil
	}
	if mode == ModeUpdate {
		_ = e.catalog.Load(ctx)
		existing := e.existingSymbolSet()
		out := make([]string, 0, len(existing))
		for s := range existing {
			out = append(out, s)
		}
		sort.Strings(out)
		return out, nil
	}
	if err := e.catalog.Load(ctx); err != nil {
		return nil, fmt.Errorf("全量模式需要远端目录: %w", err)
	}
	return e.catalog.Symbols(), nil
}

func classifyReason(err error) string {
	switch {
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, catalog.ErrMissingName):
		return "missing_name"
	default:
		var pe *provider.Error
		if errors.As(err, &pe) {
			return "download_failed"
		}
		return "storage_error"
	}
}
