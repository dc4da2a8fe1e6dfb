package syncer

import "etfsync/internal/progress"

// Granularity 把日线与分钟线收敛为同一套参数化设计：日线是
// Period 为空的平凡粒度，分钟线带周期号并限定近期窗口。
type Granularity struct {
	Period     string // "" = 日线
	WindowDays int    // >0 时只拉取最近 N 天（分钟线接口的有效范围有限）
}

// SubKey 返回该粒度在账本中的子键。
func (g Granularity) SubKey() string {
	if g.Period == "" {
		return progress.SubKeyDaily
	}
	return g.Period
}

// Label 用于日志与失败列表的展示名。
func (g Granularity) Label(symbol string) string {
	if g.Period == "" {
		return symbol
	}
	return symbol + "_" + g.Period + "min"
}

// Daily 是默认的日线粒度。
var Daily = Granularity{}

// MinutePeriods 按周期号构造分钟线粒度列表。
func MinutePeriods(periods []string, windowDays int) []Granularity {
	if windowDays <= 0 {
		windowDays = 30
	}
	out := make([]Granularity, 0, len(periods))
	for _, p := range periods {
		if p == "" {
			continue
		}
		out = append(out, Granularity{Period: p, WindowDays: windowDays})
	}
	return out
}
