package market

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// 东财/akshare 风格的列名。前 6 列是必备列，其余为可选扩展列。
const (
	ColDate      = "日期"
	ColOpen      = "开盘"
	ColClose     = "收盘"
	ColHigh      = "最高"
	ColLow       = "最低"
	ColVolume    = "成交量"
	ColAmount    = "成交额"
	ColAmplitude = "振幅"
	ColChangePct = "涨跌幅"
	ColChangeAmt = "涨跌额"
	ColTurnover  = "换手率"
)

// DefaultHeader 是远端日线/分钟线数据的完整列序。
var DefaultHeader = []string{
	ColDate, ColOpen, ColClose, ColHigh, ColLow, ColVolume,
	ColAmount, ColAmplitude, ColChangePct, ColChangeAmt, ColTurnover,
}

// Row 是一条行情记录。Date 是数据集内的唯一键（日线为 YYYY-MM-DD，
// 分钟线为 "YYYY-MM-DD HH:MM:SS"，两者按字典序即时间序）。
// Fields 保存包含日期列在内的原始单元格，落盘时原样写回，
// 保证重复同步后文件字节不变。
type Row struct {
	Date   string
	Fields []string
}

// Dataset 是单个 symbol 的有序行情序列。合并器保证 Rows 按
// Date 严格递增且无重复。
type Dataset struct {
	Header []string
	Rows   []Row
}

func (d Dataset) Len() int { return len(d.Rows) }

func (d Dataset) Empty() bool { return len(d.Rows) == 0 }

// LastDate 返回最后一行的日期；空数据集返回 ""。
func (d Dataset) LastDate() string {
	if len(d.Rows) == 0 {
		return ""
	}
	return d.Rows[len(d.Rows)-1].Date
}

func (d Dataset) columnIndex(name string) int {
	for i, col := range d.Header {
		if col == name {
			return i
		}
	}
	return -1
}

// HasColumn 报告数据集是否带有某个扩展列。通用合并/排序逻辑
// 只依赖日期列，不得假定扩展列存在。
func (d Dataset) HasColumn(name string) bool { return d.columnIndex(name) >= 0 }

// Field 按列名取某行的原始单元格。
func (d Dataset) Field(row Row, name string) (string, bool) {
	idx := d.columnIndex(name)
	if idx < 0 || idx >= len(row.Fields) {
		return "", false
	}
	return row.Fields[idx], true
}

// DecimalField 按列名解析某行的数值单元格。
func (d Dataset) DecimalField(row Row, name string) (decimal.Decimal, error) {
	raw, ok := d.Field(row, name)
	if !ok {
		return decimal.Zero, fmt.Errorf("列 %s 不存在", name)
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("列 %s 解析失败: %w", name, err)
	}
	return v, nil
}

// VolumeField 解析成交量列（整数手/份）。
func (d Dataset) VolumeField(row Row) (int64, error) {
	raw, ok := d.Field(row, ColVolume)
	if !ok {
		return 0, fmt.Errorf("列 %s 不存在", ColVolume)
	}
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}
