package market

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV 读取一个数据集文件。兼容带 UTF-8 BOM 的历史文件。
func ReadCSV(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return Dataset{}, fmt.Errorf("解析 CSV 失败 (%s): %w", path, err)
	}
	if len(records) == 0 {
		return Dataset{}, fmt.Errorf("CSV 文件为空: %s", path)
	}
	header := records[0]
	dateIdx := -1
	for i, col := range header {
		if strings.TrimSpace(col) == ColDate {
			dateIdx = i
			break
		}
	}
	if dateIdx < 0 {
		return Dataset{}, fmt.Errorf("CSV 缺少日期列: %s", path)
	}
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) <= dateIdx {
			continue
		}
		rows = append(rows, Row{Date: strings.TrimSpace(rec[dateIdx]), Fields: rec})
	}
	return Dataset{Header: header, Rows: rows}, nil
}

// WriteCSV 原子落盘：先写临时文件再 rename，崩溃时不会留下半截文件。
func WriteCSV(path string, ds Dataset) error {
	if len(ds.Header) == 0 {
		return fmt.Errorf("数据集缺少表头，拒绝写入 %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	writer := csv.NewWriter(tmp)
	writeErr := writer.Write(ds.Header)
	if writeErr == nil {
		for _, row := range ds.Rows {
			if err := writer.Write(row.Fields); err != nil {
				writeErr = err
				break
			}
		}
	}
	if writeErr == nil {
		writer.Flush()
		writeErr = writer.Error()
	}
	if err := tmp.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("写入 CSV 失败 (%s): %w", path, writeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// LastDateFromFile 返回文件最后一行的日期；文件不可读或没有数据行
// 时返回空串与错误。
func LastDateFromFile(path string) (string, error) {
	ds, err := ReadCSV(path)
	if err != nil {
		return "", err
	}
	if ds.Empty() {
		return "", fmt.Errorf("文件没有数据行: %s", path)
	}
	last := ""
	for _, row := range ds.Rows {
		if row.Date > last {
			last = row.Date
		}
	}
	return last, nil
}
