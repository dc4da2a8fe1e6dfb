package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"etfsync/internal/catalog"
	"etfsync/internal/market"
	"etfsync/internal/progress"
	"etfsync/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, root string, client *fakeClient, cfg EngineConfig) (*Engine, *progress.Store) {
	t.Helper()
	store := progress.NewStore(filepath.Join(root, "progress.json"))
	cfg.DownloadDir = root
	eng, err := NewEngine(cfg, newTestDownloader(t, client, root), store, catalog.New(client, root), NewLimiter(0))
	require.NoError(t, err)
	return eng, store
}

func TestEngineFullRunRecordsLedger(t *testing.T) {
	root := t.TempDir()
	client := &fakeClient{
		names: map[string]string{"159915": "创业板ETF", "513500": "标普500ETF"},
		history: func(provider.HistoryRequest) (market.Dataset, error) {
			return testDataset("2024-01-08", "2024-01-09"), nil
		},
	}
	eng, store := newTestEngine(t, root, client, EngineConfig{Mode: ModeFull})

	stats, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeFull, stats.Mode)
	assert.Equal(t, 2, stats.SuccessCount)
	assert.Equal(t, 0, stats.FailCount)
	assert.Equal(t, 4, stats.TotalNewRecords)
	assert.Equal(t, 2, stats.TotalSymbols)
	assert.NotEmpty(t, stats.RunID)
	assert.False(t, stats.Interrupted)

	assert.True(t, store.IsDownloaded("159915", progress.SubKeyDaily))
	assert.True(t, store.IsDownloaded("513500", progress.SubKeyDaily))
	assert.FileExists(t, filepath.Join(root, "159915_创业板ETF.csv"))
	assert.FileExists(t, filepath.Join(root, "513500_标普500ETF.csv"))

	// 目标集合升序，处理顺序可复现
	require.Len(t, client.requests, 2)
	assert.Equal(t, "159915", client.requests[0].Symbol)
	assert.Equal(t, "513500", client.requests[1].Symbol)
}

func TestEngineSkipDownloadedResumes(t *testing.T) {
	root := t.TempDir()
	client := &fakeClient{
		names: map[string]string{"159915": "创业板ETF", "513500": "标普500ETF"},
		history: func(provider.HistoryRequest) (market.Dataset, error) {
			return testDataset("2024-01-09"), nil
		},
	}
	eng, store := newTestEngine(t, root, client, EngineConfig{Mode: ModeFull, SkipDownloaded: true})
	require.NoError(t, store.RecordSuccess("159915", progress.SubKeyDaily, "20240109"))

	stats, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SuccessCount)
	require.Len(t, client.requests, 1, "账本中已完成的 symbol 不得重复拉取")
	assert.Equal(t, "513500", client.requests[0].Symbol)
}

func TestEngineUpdateFallsBackToFull(t *testing.T) {
	root := t.TempDir()
	client := &fakeClient{
		names: map[string]string{"513500": "标普500ETF"},
		history: func(provider.HistoryRequest) (market.Dataset, error) {
			return testDataset("2024-01-08", "2024-01-09"), nil
		},
	}
	eng, store := newTestEngine(t, root, client, EngineConfig{Mode: ModeUpdate, Symbols: []string{"513500"}})

	stats, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 0, stats.FailCount)
	assert.True(t, store.IsDownloaded("513500", progress.SubKeyDaily))

	// 缺少基线时该 symbol 降级为全量，实际只发生一次全区间请求
	require.Len(t, client.requests, 1)
	assert.Equal(t, "19700101", client.requests[0].Start)
	assert.FileExists(t, filepath.Join(root, "513500_标普500ETF.csv"))
}

func TestEngineRecordsFailureReason(t *testing.T) {
	root := t.TempDir()
	client := &fakeClient{
		names: map[string]string{"513500": "标普500ETF"},
		history: func(provider.HistoryRequest) (market.Dataset, error) {
			return market.Dataset{}, &provider.Error{Op: "fetch", Transient: false, Err: errors.New("404")}
		},
	}
	eng, store := newTestEngine(t, root, client, EngineConfig{Mode: ModeFull, Symbols: []string{"513500"}})

	stats, err := eng.Run(context.Background())
	require.NoError(t, err, "单 symbol 失败不终止整轮运行")
	assert.Equal(t, 0, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailCount)
	assert.Equal(t, []string{"513500"}, stats.FailedSymbols)

	snap := store.Snapshot()
	require.Contains(t, snap.Failed, "513500")
	assert.Equal(t, "download_failed", snap.Failed["513500"][progress.SubKeyDaily].Reason)
}

func TestEngineFreshFullMissingName(t *testing.T) {
	root := t.TempDir()
	client := &fakeClient{names: map[string]string{}}
	eng, store := newTestEngine(t, root, client, EngineConfig{Mode: ModeFull, Symbols: []string{"999999"}})

	stats, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailCount)
	assert.Equal(t, 0, client.requestCount(), "名称解析不到就不触达行情接口")
	snap := store.Snapshot()
	assert.Equal(t, "missing_name", snap.Failed["999999"][progress.SubKeyDaily].Reason)
}

func TestEngineNoDataFailureReason(t *testing.T) {
	root := t.TempDir()
	client := &fakeClient{
		names: map[string]string{"513500": "标普500ETF"},
		// 空结果
	}
	eng, store := newTestEngine(t, root, client, EngineConfig{Mode: ModeFull, Symbols: []string{"513500"}})

	_, err := eng.Run(context.Background())
	require.NoError(t, err)
	snap := store.Snapshot()
	assert.Equal(t, "no_data", snap.Failed["513500"][progress.SubKeyDaily].Reason)
}

func TestEngineCancellationInterrupts(t *testing.T) {
	root := t.TempDir()
	client := &fakeClient{names: map[string]string{"513500": "标普500ETF"}}
	eng, _ := newTestEngine(t, root, client, EngineConfig{Mode: ModeFull, Symbols: []string{"513500"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := eng.Run(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Interrupted)
	assert.Equal(t, 0, stats.SuccessCount)
	assert.Equal(t, 0, client.requestCount())
}

func TestEngineReconcileHealsLostLedger(t *testing.T) {
	root := t.TempDir()
	// 磁盘上有数据文件，账本是全新的（模拟账本丢失后的重启）
	path := filepath.Join(root, "513500_标普500ETF.csv")
	require.NoError(t, market.WriteCSV(path, testDataset("2024-01-07", "2024-01-08")))

	client := &fakeClient{names: map[string]string{"513500": "标普500ETF"}}
	eng, store := newTestEngine(t, root, client, EngineConfig{Mode: ModeUpdate})

	stats, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSymbols, "增量模式的目标来自磁盘扫描")
	assert.Equal(t, 1, stats.SuccessCount)
	assert.True(t, store.IsDownloaded("513500", progress.SubKeyDaily))

	// 有基线，走的是增量区间而不是全量
	require.Len(t, client.requests, 1)
	assert.Equal(t, "20240109", client.requests[0].Start)
}

func TestEngineAutoModeResolution(t *testing.T) {
	t.Run("空目录解析为全量", func(t *testing.T) {
		root := t.TempDir()
		client := &fakeClient{names: map[string]string{"513500": "标普500ETF"}, history: func(provider.HistoryRequest) (market.Dataset, error) {
			return testDataset("2024-01-09"), nil
		}}
		eng, _ := newTestEngine(t, root, client, EngineConfig{Mode: ModeAuto})
		stats, err := eng.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ModeFull, stats.Mode)
	})

	t.Run("已有数据解析为增量", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, "513500_标普500ETF.csv")
		require.NoError(t, market.WriteCSV(path, testDataset("2024-01-08")))
		client := &fakeClient{names: map[string]string{"513500": "标普500ETF"}}
		eng, _ := newTestEngine(t, root, client, EngineConfig{Mode: ModeAuto})
		stats, err := eng.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ModeUpdate, stats.Mode)
	})
}

func TestEngineRerunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	client := &fakeClient{
		names: map[string]string{"513500": "标普500ETF"},
		history: func(provider.HistoryRequest) (market.Dataset, error) {
			return testDataset("2024-01-08", "2024-01-09"), nil
		},
	}
	eng, _ := newTestEngine(t, root, client, EngineConfig{Mode: ModeFull, Symbols: []string{"513500"}})

	_, err := eng.Run(context.Background())
	require.NoError(t, err)
	path := filepath.Join(root, "513500_标普500ETF.csv")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	stats, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 0, stats.TotalNewRecords, "重复运行不产生新增记录")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "重复运行后数据文件逐字节不变")
}

func TestEngineMultipleGranularities(t *testing.T) {
	root := t.TempDir()
	client := &fakeClient{
		names: map[string]string{"513500": "标普500ETF"},
		history: func(req provider.HistoryRequest) (market.Dataset, error) {
			if req.Period != "" {
				return market.Dataset{Header: testHeader, Rows: []market.Row{
					{Date: "2024-01-09 10:30:00", Fields: []string{"2024-01-09 10:30:00", "1.00", "2.00"}},
				}}, nil
			}
			return testDataset("2024-01-09"), nil
		},
	}
	grans := append([]Granularity{Daily}, MinutePeriods([]string{"5"}, 30)...)
	eng, store := newTestEngine(t, root, client, EngineConfig{Mode: ModeFull, Symbols: []string{"513500"}, Granularities: grans})

	stats, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SuccessCount)
	assert.True(t, store.IsDownloaded("513500", progress.SubKeyDaily))
	assert.True(t, store.IsDownloaded("513500", "5"))
	assert.FileExists(t, filepath.Join(root, "513500_标普500ETF.csv"))
	assert.FileExists(t, filepath.Join(root, "5min", "513500_标普500ETF_5min.csv"))
}
