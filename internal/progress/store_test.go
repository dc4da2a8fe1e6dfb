package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "progress.json")
	return NewStore(path), path
}

func TestRecordSuccessPersistsImmediately(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.RecordSuccess("513500", SubKeyDaily, "20240105"))

	// 不经过 store 再读一遍文件，变更必须已经落盘
	reloaded := NewStore(path)
	assert.True(t, reloaded.IsDownloaded("513500", SubKeyDaily))
	snap := reloaded.Snapshot()
	assert.Equal(t, "20240105", snap.Downloaded["513500"][SubKeyDaily].LastDate)
	assert.NotEmpty(t, snap.LastUpdate)
}

func TestRecordFailureThenSuccessClearsFailed(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.RecordFailure("513500", "5", "download_failed"))

	snap := store.Snapshot()
	require.Contains(t, snap.Failed, "513500")
	assert.Equal(t, "download_failed", snap.Failed["513500"]["5"].Reason)
	assert.NotEmpty(t, snap.Failed["513500"]["5"].LastAttempt)

	require.NoError(t, store.RecordSuccess("513500", "5", "20240105"))
	snap = store.Snapshot()
	assert.NotContains(t, snap.Failed, "513500")
	assert.True(t, store.IsDownloaded("513500", "5"))
}

func TestCorruptLedgerFallsBackToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewStore(path)
	assert.Equal(t, 0, store.DownloadedSymbols())
	// 空账本仍然可以正常记账
	require.NoError(t, store.RecordSuccess("159915", SubKeyDaily, "20240105"))
	assert.True(t, store.IsDownloaded("159915", SubKeyDaily))
}

func TestLegacyFlatLedgerMigrated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	legacy := `{"downloaded": ["513500", "159915"], "failed": ["510300"], "last_update": "2024-01-05 10:00:00"}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	store := NewStore(path)
	assert.True(t, store.IsDownloaded("513500", SubKeyDaily))
	assert.True(t, store.IsDownloaded("159915", SubKeyDaily))
	snap := store.Snapshot()
	assert.Contains(t, snap.Failed, "510300")
	assert.Equal(t, "2024-01-05 10:00:00", snap.LastUpdate)
}

func TestSaveIsAtomicNoTempLeftover(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.RecordSuccess("513500", SubKeyDaily, "20240105"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// 落盘的必须是合法 JSON
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var ledger Ledger
	assert.NoError(t, json.Unmarshal(data, &ledger))
}

func TestReconcileMarksDiskStateDownloaded(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.RecordFailure("513500", SubKeyDaily, "download_failed"))

	added, err := store.Reconcile(map[string][]string{
		"513500": {SubKeyDaily},
		"159915": {SubKeyDaily, "5"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.True(t, store.IsDownloaded("513500", SubKeyDaily))
	assert.True(t, store.IsDownloaded("159915", "5"))
	assert.NotContains(t, store.Snapshot().Failed, "513500", "失败集必须被清除")

	// 幂等：再跑一遍没有新增
	added, err = store.Reconcile(map[string][]string{"513500": {SubKeyDaily}})
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestResetBacksUpAndClears(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.RecordSuccess("513500", SubKeyDaily, "20240105"))
	require.NoError(t, store.Reset())

	assert.Equal(t, 0, store.DownloadedSymbols())
	_, err := os.Stat(path + ".bak")
	assert.NoError(t, err, "重置前必须备份旧账本")
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.RecordSuccess("513500", SubKeyDaily, "20240105"))

	snap := store.Snapshot()
	snap.Downloaded["513500"][SubKeyDaily] = SubEntry{LastDate: "tampered"}
	assert.Equal(t, "20240105", store.Snapshot().Downloaded["513500"][SubKeyDaily].LastDate)
}
