package syncer

import (
	"os"
	"path/filepath"
	"strings"

	"etfsync/internal/logger"
	"etfsync/internal/market"
)

// Issue 描述一个疑似损坏的数据文件。
type Issue struct {
	Symbol string
	Path   string
	Reason string
}

// 小于 1KB 的日线文件大概率是残缺数据。
const suspiciousSize = 1000

// VerifyDatasets 在更新前检查已有数据文件的完整性：最后日期可读、
// 文件体积正常。只报告，不修复。
func VerifyDatasets(root string, grans []Granularity) []Issue {
	var issues []Issue
	for _, gran := range grans {
		dir := market.PeriodDir(root, gran.Period)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".csv") || !strings.Contains(name, "_") {
				continue
			}
			symbol := strings.SplitN(name, "_", 2)[0]
			if !market.ValidSymbol(symbol) {
				continue
			}
			path := filepath.Join(dir, name)
			if _, err := market.LastDateFromFile(path); err != nil {
				issues = append(issues, Issue{Symbol: symbol, Path: path, Reason: "无法获取最后日期"})
				continue
			}
			if info, err := entry.Info(); err == nil && gran.Period == "" && info.Size() < suspiciousSize {
				issues = append(issues, Issue{Symbol: symbol, Path: path, Reason: "文件过小"})
			}
		}
	}
	if len(issues) > 0 {
		logger.Warnf("[verify] 发现 %d 个可能有问题的数据文件", len(issues))
		for i, issue := range issues {
			if i >= 10 {
				logger.Warnf("[verify]   ... 还有 %d 个文件有问题", len(issues)-10)
				break
			}
			logger.Warnf("[verify]   %s: %s", issue.Symbol, issue.Reason)
		}
	}
	return issues
}
