package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"etfsync/internal/market"
	"etfsync/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	names map[string]string
	err   error
	calls int
}

func (s *stubClient) FetchHistory(context.Context, provider.HistoryRequest) (market.Dataset, error) {
	return market.Dataset{}, errors.New("不该走到行情接口")
}

func (s *stubClient) FetchCatalog(context.Context) (map[string]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.names, nil
}

func (s *stubClient) Name() string { return "stub" }

func TestLoadCachesCatalog(t *testing.T) {
	client := &stubClient{names: map[string]string{"513500": "标普500ETF", "159915": "创业板ETF"}}
	cat := New(client, t.TempDir())

	require.NoError(t, cat.Load(context.Background()))
	require.NoError(t, cat.Load(context.Background()))
	assert.Equal(t, 1, client.calls, "重复 Load 只拉取一次")
	assert.Equal(t, []string{"159915", "513500"}, cat.Symbols())
}

func TestSymbolsNilBeforeLoad(t *testing.T) {
	cat := New(&stubClient{}, t.TempDir())
	assert.Nil(t, cat.Symbols())
}

func TestResolvePrefersCatalogName(t *testing.T) {
	client := &stubClient{names: map[string]string{"513500": "标普500ETF"}}
	cat := New(client, t.TempDir())
	require.NoError(t, cat.Load(context.Background()))

	name, err := cat.Resolve("513500", "", true)
	require.NoError(t, err)
	assert.Equal(t, "标普500ETF", name)
}

func TestResolveFallsBackToLocalFilename(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "513500_标普500ETF.csv")
	require.NoError(t, market.WriteCSV(path, market.Dataset{
		Header: []string{market.ColDate},
		Rows:   []market.Row{{Date: "2024-01-08", Fields: []string{"2024-01-08"}}},
	}))

	// 目录不可用
	cat := New(&stubClient{err: errors.New("网络不可达")}, root)
	assert.Error(t, cat.Load(context.Background()))

	name, err := cat.Resolve("513500", "", true)
	require.NoError(t, err)
	assert.Equal(t, "标普500ETF", name, "本地文件名是目录失效时的名称来源")
}

func TestResolveFreshFullFailsFast(t *testing.T) {
	cat := New(&stubClient{err: errors.New("网络不可达")}, t.TempDir())
	_ = cat.Load(context.Background())

	_, err := cat.Resolve("999999", "", true)
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestResolveUpdateToleratesMissingName(t *testing.T) {
	cat := New(&stubClient{err: errors.New("网络不可达")}, t.TempDir())
	_ = cat.Load(context.Background())

	name, err := cat.Resolve("513500", "", false)
	require.NoError(t, err, "增量更新不因名称缺失而阻塞")
	assert.Equal(t, "513500", name)
}
