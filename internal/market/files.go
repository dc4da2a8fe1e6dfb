package market

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const illegalNameChars = `*/\:"?<>|`

// SanitizeName 把名称中的非法文件名字符替换为下划线。
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(illegalNameChars, r) {
			return '_'
		}
		return r
	}, name)
}

// Filename 生成数据集文件名：symbol_name.csv，分钟线追加 _<p>min。
func Filename(symbol, name, period string) string {
	clean := SanitizeName(name)
	if period == "" {
		return symbol + "_" + clean + ".csv"
	}
	return symbol + "_" + clean + "_" + period + "min.csv"
}

// PeriodDir 返回某个粒度的数据目录；日线就是下载根目录本身，
// 分钟线是 <root>/<p>min 子目录。
func PeriodDir(root, period string) string {
	if period == "" {
		return root
	}
	return filepath.Join(root, period+"min")
}

// DatasetPath 返回 symbol 在指定粒度下的确定性文件路径。
func DatasetPath(root, symbol, name, period string) string {
	return filepath.Join(PeriodDir(root, period), Filename(symbol, name, period))
}

// ValidSymbol 判断文件名前缀是否是合法代码（纯数字，允许小数点）。
func ValidSymbol(s string) bool {
	if s == "" {
		return false
	}
	stripped := strings.ReplaceAll(s, ".", "")
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FindFile 在数据目录中查找 symbol 对应的文件。
func FindFile(root, symbol, period string) (string, bool) {
	dir := PeriodDir(root, period)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	prefix := symbol + "_"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// NameFromFilename 从 symbol_name(.csv / _<p>min.csv) 文件名还原名称。
func NameFromFilename(filename, period string) (string, bool) {
	base := strings.TrimSuffix(filename, ".csv")
	if base == filename {
		return "", false
	}
	if period != "" {
		trimmed := strings.TrimSuffix(base, "_"+period+"min")
		if trimmed == base {
			return "", false
		}
		base = trimmed
	}
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ExistingSymbols 扫描数据目录，返回已有数据文件的 symbol 列表（升序）。
func ExistingSymbols(root, period string) []string {
	dir := PeriodDir(root, period)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") || !strings.Contains(name, "_") {
			continue
		}
		symbol := strings.SplitN(name, "_", 2)[0]
		if ValidSymbol(symbol) {
			seen[symbol] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
