package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"etfsync/internal/logger"
	"etfsync/internal/market"
	"etfsync/internal/provider"
)

// ErrMissingBaseline 表示增量更新找不到可用的本地最后日期。
// 由调用方决定是否对该 symbol 回退为全量下载。
var ErrMissingBaseline = errors.New("没有可用的本地基线日期")

// ErrNoData 表示全量拉取在整个区间内没有返回任何行。
var ErrNoData = errors.New("远端没有该 symbol 的数据")

const (
	fullRangeStart = "19700101"
	fullRangeEnd   = "20500101"
)

// Mode 是单 symbol 任务的运行模式。
type Mode string

const (
	ModeFull   Mode = "full"
	ModeUpdate Mode = "update"
	ModeAuto   Mode = "auto"
)

// Task 描述一次单 symbol 的下载/更新。
type Task struct {
	Symbol string
	Name   string
	Gran   Granularity
	Mode   Mode
}

// Result 是一次任务的结果。零新增的成功（增量模式的常态）与失败
// 是两回事。
type Result struct {
	Symbol       string
	SubKey       string
	NewRecords   int
	TotalRecords int
	LastDate     string // 落账本用，YYYYMMDD
	Written      bool
	Path         string
}

// Downloader 编排单 symbol 的拉取、重试、合并与落盘。自身不持有
// 账本：结果如何记账是 Engine 的事。
type Downloader struct {
	client         provider.Client
	root           string
	policy         RetryPolicy
	attemptTimeout time.Duration
	now            func() time.Time
}

type DownloaderConfig struct {
	Client         provider.Client
	DownloadDir    string
	Policy         RetryPolicy
	AttemptTimeout time.Duration // 单次拉取的硬上限，防止挂死
}

func NewDownloader(cfg DownloaderConfig) (*Downloader, error) {
	if cfg.Client == nil {
		return nil, errors.New("provider client 不能为空")
	}
	if cfg.DownloadDir == "" {
		return nil, errors.New("下载目录不能为空")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	return &Downloader{
		client:         cfg.Client,
		root:           cfg.DownloadDir,
		policy:         cfg.Policy.normalized(),
		attemptTimeout: cfg.AttemptTimeout,
		now:            time.Now,
	}, nil
}

// Run 执行一个任务。增量模式下零新增返回成功且不重写文件。
func (d *Downloader) Run(ctx context.Context, task Task) (Result, error) {
	switch task.Mode {
	case ModeFull, ModeUpdate:
	default:
		return Result{}, fmt.Errorf("不支持的模式: %s", task.Mode)
	}

	result := Result{Symbol: task.Symbol, SubKey: task.Gran.SubKey()}

	existing, existingPath := d.loadExisting(task)
	start, end, err := d.resolveRange(task, existing, existingPath)
	if err != nil {
		return result, err
	}
	if start > end {
		// 本地已是最新，无需触达远端。
		logger.Infof("[download] %s 已是最新数据，无需更新", task.Gran.Label(task.Symbol))
		result.TotalRecords = existing.Len()
		result.LastDate = compactDate(existing.LastDate())
		return result, nil
	}

	fetched, err := d.fetchWithRetry(ctx, task, start, end)
	if err != nil {
		return result, fmt.Errorf("下载 %s 失败: %w", task.Gran.Label(task.Symbol), err)
	}

	if fetched.Empty() {
		if task.Mode == ModeUpdate {
			// 区间内没有新交易日，属于成功。
			logger.Infof("[download] %s 无新数据", task.Gran.Label(task.Symbol))
			result.TotalRecords = existing.Len()
			result.LastDate = compactDate(existing.LastDate())
			return result, nil
		}
		return result, fmt.Errorf("%w: %s", ErrNoData, task.Symbol)
	}

	merged := fetched
	newRecords := fetched.Len()
	if !existing.Empty() {
		newRecords = market.NewRowCount(existing, fetched)
		if newRecords == 0 {
			logger.Infof("[download] %s 拉取结果全部已存在，跳过重写", task.Gran.Label(task.Symbol))
			result.TotalRecords = existing.Len()
			result.LastDate = compactDate(existing.LastDate())
			return result, nil
		}
		merged = market.Merge(existing, fetched)
	}

	path := existingPath
	if path == "" {
		path = market.DatasetPath(d.root, task.Symbol, task.Name, task.Gran.Period)
	}
	if err := market.WriteCSV(path, merged); err != nil {
		return result, fmt.Errorf("写入 %s 失败: %w", filepath.Base(path), err)
	}

	result.NewRecords = newRecords
	result.TotalRecords = merged.Len()
	result.LastDate = compactDate(merged.LastDate())
	result.Written = true
	result.Path = path
	logger.Infof("[download] 成功同步 %s(%s) - 新增 %d 条，总计 %d 条",
		task.Symbol, task.Name, newRecords, merged.Len())
	return result, nil
}

func (d *Downloader) loadExisting(task Task) (market.Dataset, string) {
	path, found := market.FindFile(d.root, task.Symbol, task.Gran.Period)
	if !found {
		return market.Dataset{}, ""
	}
	ds, err := market.ReadCSV(path)
	if err != nil {
		logger.Warnf("[download] 本地文件不可读 (%s): %v", path, err)
		return market.Dataset{}, path
	}
	return ds, path
}

func (d *Downloader) resolveRange(task Task, existing market.Dataset, existingPath string) (string, string, error) {
	today := d.now().Format("20060102")
	switch task.Mode {
	case ModeUpdate:
		last := existing.LastDate()
		if existingPath == "" || last == "" {
			return "", "", fmt.Errorf("%w: %s", ErrMissingBaseline, task.Symbol)
		}
		start, err := nextDay(last)
		if err != nil {
			return "", "", fmt.Errorf("%w: %s (%v)", ErrMissingBaseline, task.Symbol, err)
		}
		return start, today, nil
	default:
		if task.Gran.WindowDays > 0 {
			start := d.now().AddDate(0, 0, -task.Gran.WindowDays).Format("20060102")
			return start, today, nil
		}
		return fullRangeStart, fullRangeEnd, nil
	}
}

func (d *Downloader) fetchWithRetry(ctx context.Context, task Task, start, end string) (market.Dataset, error) {
	var fetched market.Dataset
	req := provider.HistoryRequest{
		Symbol: task.Symbol,
		Period: task.Gran.Period,
		Start:  start,
		End:    end,
	}
	err := d.policy.Do(ctx, func(attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()
		ds, err := d.client.FetchHistory(attemptCtx, req)
		if err != nil {
			logger.Warnf("[download] 拉取 %s 失败 [%d/%d]: %v",
				task.Gran.Label(task.Symbol), attempt, d.policy.MaxAttempts, err)
			return err
		}
		fetched = ds
		return nil
	})
	return fetched, err
}

// compactDate 把 "2024-01-02"（或分钟时间戳）压成账本格式 YYYYMMDD。
func compactDate(date string) string {
	if len(date) >= 10 {
		date = date[:10]
	}
	return strings.ReplaceAll(date, "-", "")
}

// nextDay 返回日期字符串的次日（YYYYMMDD）。
func nextDay(date string) (string, error) {
	if len(date) >= 10 {
		date = date[:10]
	}
	var t time.Time
	var err error
	if strings.Contains(date, "-") {
		t, err = time.Parse("2006-01-02", date)
	} else {
		t, err = time.Parse("20060102", date)
	}
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, 1).Format("20060102"), nil
}
