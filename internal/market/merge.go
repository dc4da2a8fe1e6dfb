package market

import (
	"sort"

	"etfsync/internal/logger"
)

// Merge 合并已有数据与新抓取数据：按日期取并集，两边都有的日期
// 保留已有行（已落盘的历史不被远端的回溯修正覆盖），仅在新数据
// 中出现的日期追加，最后按日期升序排序。输入中的重复日期与乱序
// 只记日志并去重（同侧先见者胜），不会中断合并。
func Merge(existing, fetched Dataset) Dataset {
	reportAnomalies("existing", existing)
	reportAnomalies("fetched", fetched)

	header := existing.Header
	if len(header) == 0 {
		header = fetched.Header
	}

	seen := make(map[string]struct{}, len(existing.Rows)+len(fetched.Rows))
	merged := make([]Row, 0, len(existing.Rows)+len(fetched.Rows))
	for _, row := range existing.Rows {
		if _, dup := seen[row.Date]; dup {
			continue
		}
		seen[row.Date] = struct{}{}
		merged = append(merged, row)
	}
	for _, row := range fetched.Rows {
		if _, dup := seen[row.Date]; dup {
			continue
		}
		seen[row.Date] = struct{}{}
		merged = append(merged, row)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Date < merged[j].Date })
	return Dataset{Header: header, Rows: merged}
}

// NewRowCount 返回 fetched 中日期不在 existing 里的行数。
func NewRowCount(existing, fetched Dataset) int {
	have := make(map[string]struct{}, len(existing.Rows))
	for _, row := range existing.Rows {
		have[row.Date] = struct{}{}
	}
	count := 0
	for _, row := range fetched.Rows {
		if _, ok := have[row.Date]; !ok {
			count++
		}
	}
	return count
}

func reportAnomalies(side string, ds Dataset) {
	seen := make(map[string]struct{}, len(ds.Rows))
	prev := ""
	for i, row := range ds.Rows {
		if _, dup := seen[row.Date]; dup {
			logger.Warnf("[merge] %s 数据集存在重复日期 %s（第 %d 行），按先见者保留", side, row.Date, i+1)
		}
		seen[row.Date] = struct{}{}
		if prev != "" && row.Date < prev {
			logger.Warnf("[merge] %s 数据集日期乱序：%s 出现在 %s 之后（第 %d 行）", side, row.Date, prev, i+1)
		}
		prev = row.Date
	}
}
