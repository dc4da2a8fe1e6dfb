package progress

import (
	"encoding/json"
	"fmt"
)

// SubKeyDaily 是非周期数据集的隐式子键。分钟线用周期号
// （"1"/"5"/"15"）作为子键，两种形态共用同一套账本结构。
const SubKeyDaily = "daily"

// SubEntry 记录某 symbol 某个子键的完成状态。
type SubEntry struct {
	LastDate     string `json:"last_date,omitempty"`
	Status       string `json:"status,omitempty"`
	DownloadTime string `json:"download_time,omitempty"`
}

// FailEntry 记录一次失败的元信息。
type FailEntry struct {
	LastAttempt string `json:"last_attempt"`
	Reason      string `json:"reason"`
}

// Ledger 是按 symbol 维度的同步进度账本，进程内唯一归属于
// Store，每次 symbol 级变更后立即落盘。
type Ledger struct {
	Downloaded      map[string]map[string]SubEntry  `json:"downloaded"`
	Failed          map[string]map[string]FailEntry `json:"failed"`
	LastUpdate      string                          `json:"last_update"`
	LastUpdateStart string                          `json:"last_update_start"`
}

func emptyLedger() Ledger {
	return Ledger{
		Downloaded: make(map[string]map[string]SubEntry),
		Failed:     make(map[string]map[string]FailEntry),
	}
}

// UnmarshalJSON 兼容两代账本：早期日线账本的 downloaded/failed
// 是扁平的 symbol 数组，这里迁移为 symbol → {daily: …} 形态。
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var raw struct {
		Downloaded      json.RawMessage `json:"downloaded"`
		Failed          json.RawMessage `json:"failed"`
		LastUpdate      string          `json:"last_update"`
		LastUpdateStart string          `json:"last_update_start"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = emptyLedger()
	l.LastUpdate = raw.LastUpdate
	l.LastUpdateStart = raw.LastUpdateStart

	if len(raw.Downloaded) > 0 {
		if err := json.Unmarshal(raw.Downloaded, &l.Downloaded); err != nil {
			var flat []string
			if err2 := json.Unmarshal(raw.Downloaded, &flat); err2 != nil {
				return fmt.Errorf("downloaded 字段格式不识别: %w", err)
			}
			for _, symbol := range flat {
				l.Downloaded[symbol] = map[string]SubEntry{SubKeyDaily: {Status: "completed"}}
			}
		}
	}
	if len(raw.Failed) > 0 {
		if err := json.Unmarshal(raw.Failed, &l.Failed); err != nil {
			var flat []string
			if err2 := json.Unmarshal(raw.Failed, &flat); err2 != nil {
				return fmt.Errorf("failed 字段格式不识别: %w", err)
			}
			for _, symbol := range flat {
				l.Failed[symbol] = map[string]FailEntry{SubKeyDaily: {Reason: "download_failed"}}
			}
		}
	}
	if l.Downloaded == nil {
		l.Downloaded = make(map[string]map[string]SubEntry)
	}
	if l.Failed == nil {
		l.Failed = make(map[string]map[string]FailEntry)
	}
	return nil
}

// HasDownloaded 报告某 symbol 的某个子键是否已完成。
func (l Ledger) HasDownloaded(symbol, subKey string) bool {
	subs, ok := l.Downloaded[symbol]
	if !ok {
		return false
	}
	_, ok = subs[subKey]
	return ok
}

// DownloadedSymbols 返回至少有一个子键完成的 symbol 数。
func (l Ledger) DownloadedSymbols() int { return len(l.Downloaded) }

func (l Ledger) clone() Ledger {
	out := emptyLedger()
	out.LastUpdate = l.LastUpdate
	out.LastUpdateStart = l.LastUpdateStart
	for symbol, subs := range l.Downloaded {
		copied := make(map[string]SubEntry, len(subs))
		for k, v := range subs {
			copied[k] = v
		}
		out.Downloaded[symbol] = copied
	}
	for symbol, subs := range l.Failed {
		copied := make(map[string]FailEntry, len(subs))
		for k, v := range subs {
			copied[k] = v
		}
		out.Failed[symbol] = copied
	}
	return out
}
