package runlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"etfsync/internal/syncer"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// runModel 是 sync_runs 表的行。失败列表以 JSON 存储。
type runModel struct {
	ID              string `gorm:"primaryKey;size:36"`
	Mode            string `gorm:"size:16;index"`
	SuccessCount    int
	FailCount       int
	TotalNewRecords int
	TotalSymbols    int
	FailedSymbols   string
	Interrupted     bool
	StartedAt       time.Time `gorm:"index"`
	ElapsedMS       int64
	CreatedAt       time.Time
}

func (runModel) TableName() string { return "sync_runs" }

// Store 持久化每轮同步的统计，供状态接口与事后排查。与 JSON 进度
// 账本互不耦合：断点续传只依赖账本，这里只是运行历史。
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("运行历史库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun 落一条运行记录。
func (s *Store) SaveRun(stats syncer.RunStats) error {
	failed, err := json.Marshal(stats.FailedSymbols)
	if err != nil {
		return err
	}
	model := runModel{
		ID:              stats.RunID,
		Mode:            string(stats.Mode),
		SuccessCount:    stats.SuccessCount,
		FailCount:       stats.FailCount,
		TotalNewRecords: stats.TotalNewRecords,
		TotalSymbols:    stats.TotalSymbols,
		FailedSymbols:   string(failed),
		Interrupted:     stats.Interrupted,
		StartedAt:       stats.StartedAt,
		ElapsedMS:       stats.Elapsed.Milliseconds(),
		CreatedAt:       time.Now(),
	}
	return s.db.Create(&model).Error
}

// ListRuns 按开始时间倒序返回最近的运行记录。
func (s *Store) ListRuns(limit int) ([]syncer.RunStats, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []runModel
	if err := s.db.Order("started_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]syncer.RunStats, 0, len(models))
	for _, m := range models {
		out = append(out, m.toStats())
	}
	return out, nil
}

// Run 按 ID 查询一条运行记录。
func (s *Store) Run(id string) (syncer.RunStats, bool, error) {
	var model runModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return syncer.RunStats{}, false, nil
	}
	if err != nil {
		return syncer.RunStats{}, false, err
	}
	return model.toStats(), true, nil
}

func (m runModel) toStats() syncer.RunStats {
	var failed []string
	if m.FailedSymbols != "" {
		_ = json.Unmarshal([]byte(m.FailedSymbols), &failed)
	}
	return syncer.RunStats{
		RunID:           m.ID,
		Mode:            syncer.Mode(m.Mode),
		SuccessCount:    m.SuccessCount,
		FailCount:       m.FailCount,
		TotalNewRecords: m.TotalNewRecords,
		TotalSymbols:    m.TotalSymbols,
		FailedSymbols:   failed,
		Interrupted:     m.Interrupted,
		StartedAt:       m.StartedAt,
		Elapsed:         time.Duration(m.ElapsedMS) * time.Millisecond,
	}
}
