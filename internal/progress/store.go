package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"etfsync/internal/logger"
)

const timeLayout = "2006-01-02 15:04:05"

// Store 独占地持有账本并负责其持久化。所有变更方法都在内存修改
// 后立即原子落盘，账本因此是断点续传的唯一事实来源。
type Store struct {
	path string

	mu     sync.Mutex
	ledger Ledger
	now    func() time.Time
}

// NewStore 加载（或初始化）账本。文件缺失或损坏都不致命：记一条
// 警告并以空账本继续。
func NewStore(path string) *Store {
	s := &Store{path: path, now: time.Now}
	s.ledger = s.load()
	return s
}

func (s *Store) load() Ledger {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("[progress] 读取进度文件失败: %v，使用空账本", err)
		}
		return emptyLedger()
	}
	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		logger.Warnf("[progress] 进度文件损坏 (%s): %v，使用空账本", s.path, err)
		return emptyLedger()
	}
	return ledger
}

// Save 原子落盘：写临时文件再 rename，崩溃不会留下半截账本。
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.ledger, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(data)
	if err := tmp.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("写入进度文件失败: %w", writeErr)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// RecordSuccess 标记 symbol 的某个子键完成并立即持久化，同时从
// 失败集中清除。
func (s *Store) RecordSuccess(symbol, subKey, lastDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger.Downloaded[symbol] == nil {
		s.ledger.Downloaded[symbol] = make(map[string]SubEntry)
	}
	s.ledger.Downloaded[symbol][subKey] = SubEntry{
		LastDate:     lastDate,
		Status:       "completed",
		DownloadTime: s.now().Format(timeLayout),
	}
	s.clearFailedLocked(symbol, subKey)
	s.ledger.LastUpdate = s.now().Format(timeLayout)
	return s.saveLocked()
}

// RecordFailure 标记失败原因并立即持久化。
func (s *Store) RecordFailure(symbol, subKey, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger.Failed[symbol] == nil {
		s.ledger.Failed[symbol] = make(map[string]FailEntry)
	}
	s.ledger.Failed[symbol][subKey] = FailEntry{
		LastAttempt: s.now().Format(timeLayout),
		Reason:      reason,
	}
	s.ledger.LastUpdate = s.now().Format(timeLayout)
	return s.saveLocked()
}

func (s *Store) clearFailedLocked(symbol, subKey string) {
	if subs, ok := s.ledger.Failed[symbol]; ok {
		delete(subs, subKey)
		if len(subs) == 0 {
			delete(s.ledger.Failed, symbol)
		}
	}
}

// MarkRunStart 记录本轮运行的起始时间戳。
func (s *Store) MarkRunStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.LastUpdateStart = s.now().Format(timeLayout)
	return s.saveLocked()
}

// IsDownloaded 报告某 symbol 的某个子键是否已完成。
func (s *Store) IsDownloaded(symbol, subKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.HasDownloaded(symbol, subKey)
}

// DownloadedSymbols 返回账本中已完成的 symbol 数。
func (s *Store) DownloadedSymbols() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.DownloadedSymbols()
}

// Reconcile 用磁盘状态修正账本：existing 是磁盘扫描得到的
// symbol → 子键列表。凡是文件在而账本缺失（或仍挂在失败集）的
// 条目都补记为已完成。账本丢失后靠这一步自愈。
func (s *Store) Reconcile(existing map[string][]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for symbol, subKeys := range existing {
		for _, subKey := range subKeys {
			if s.ledger.HasDownloaded(symbol, subKey) {
				continue
			}
			if s.ledger.Downloaded[symbol] == nil {
				s.ledger.Downloaded[symbol] = make(map[string]SubEntry)
			}
			s.ledger.Downloaded[symbol][subKey] = SubEntry{
				LastDate: s.now().Format("20060102"),
				Status:   "completed",
			}
			s.clearFailedLocked(symbol, subKey)
			added++
		}
	}
	if added == 0 {
		return 0, nil
	}
	logger.Infof("[progress] 自动同步 %d 个磁盘上已有的数据文件到账本", added)
	return added, s.saveLocked()
}

// Reset 清空账本（先备份到 <path>.bak），用于强制重新下载。
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, err := os.ReadFile(s.path); err == nil {
		backup := s.path + ".bak"
		if err := os.WriteFile(backup, data, 0o644); err != nil {
			logger.Warnf("[progress] 备份进度文件失败: %v", err)
		} else {
			logger.Infof("[progress] 已备份进度文件到 %s", backup)
		}
	}
	s.ledger = emptyLedger()
	return s.saveLocked()
}

// Snapshot 返回账本的深拷贝，供状态接口只读展示。
func (s *Store) Snapshot() Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.clone()
}
