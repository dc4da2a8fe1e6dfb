package syncer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"etfsync/internal/logger"
)

const backupKeep = 5

// BackupDatasets 把下载目录下的 CSV 备份到带时间戳的子目录，
// 并清理只保留最近 5 份。返回备份目录（没有文件可备时为空串）。
func BackupDatasets(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	backupRoot := filepath.Join(root, "backups")
	stamp := time.Now().Format("20060102_150405")
	dest := filepath.Join(backupRoot, "backup_"+stamp)

	copied := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		if copied == 0 {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return "", err
			}
		}
		src := filepath.Join(root, entry.Name())
		if err := copyFile(src, filepath.Join(dest, entry.Name())); err != nil {
			logger.Warnf("[backup] 备份文件失败 %s: %v", entry.Name(), err)
			continue
		}
		copied++
	}
	if copied == 0 {
		return "", nil
	}
	logger.Infof("[backup] 已备份 %d 个数据文件到 %s", copied, dest)
	pruneBackups(backupRoot)
	return dest, nil
}

func pruneBackups(backupRoot string) {
	entries, err := os.ReadDir(backupRoot)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "backup_") {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, old := range names[min(backupKeep, len(names)):] {
		path := filepath.Join(backupRoot, old)
		if err := os.RemoveAll(path); err != nil {
			logger.Warnf("[backup] 清理旧备份失败 %s: %v", path, err)
		} else {
			logger.Debugf("[backup] 已清理旧备份 %s", path)
		}
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("写入备份失败: %w", err)
	}
	return nil
}
