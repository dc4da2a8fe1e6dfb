package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"etfsync/internal/logger"
	"etfsync/internal/market"
	"etfsync/internal/progress"
	"etfsync/internal/syncer"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// SyncService 是 HTTP 层对同步核心的窄依赖。
type SyncService interface {
	StartRun(mode string, symbols []string) (string, error)
	ActiveRun() (string, bool)
	History(limit int) ([]syncer.RunStats, error)
	RunByID(id string) (syncer.RunStats, bool, error)
	Ledger() progress.Ledger
	ResetLedger() error
	ReadDataset(symbol, period string, limit int) (market.Dataset, error)
}

// ErrRunActive 表示已有一轮同步在进行中（下载目录是单写者）。
var ErrRunActive = errors.New("已有同步任务在运行")

// Server 提供触发同步与查询进度的 Gin 接口。
type Server struct {
	addr   string
	svc    SyncService
	router *gin.Engine
	http   *http.Server
}

func NewServer(addr string, svc SyncService) (*Server, error) {
	if svc == nil {
		return nil, errors.New("sync service 不能为空")
	}
	if addr == "" {
		addr = ":9995"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{addr: addr, svc: svc, router: router}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api/sync")
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/ledger", s.handleLedger)
	api.DELETE("/ledger", s.handleLedgerReset)
	api.GET("/datasets", s.handleDataset)
}

// Start 启动并阻塞到 ctx 取消。
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[http] 状态接口监听 %s", s.addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

type runStartRequest struct {
	Mode    string   `json:"mode"`
	Symbols []string `json:"symbols"`
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req runStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	runID, err := s.svc.StartRun(req.Mode, req.Symbols)
	if errors.Is(err, ErrRunActive) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.svc.History(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	activeID, active := s.svc.ActiveRun()
	c.JSON(http.StatusOK, gin.H{"active_run": activeID, "running": active, "runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	id := c.Param("id")
	if activeID, active := s.svc.ActiveRun(); active && activeID == id {
		c.JSON(http.StatusOK, gin.H{"run_id": id, "status": "running"})
		return
	}
	stats, ok, err := s.svc.RunByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run 不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "status": "done", "stats": stats})
}

func (s *Server) handleLedger(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Ledger())
}

// 清空进度账本（旧账本备份在 <path>.bak），之后的全量运行会重新
// 下载一切。有运行在进行时拒绝。
func (s *Server) handleLedgerReset(c *gin.Context) {
	if err := s.svc.ResetLedger(); err != nil {
		if errors.Is(err, ErrRunActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) handleDataset(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	period := c.Query("period")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	ds, err := s.svc.ReadDataset(symbol, period, limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	rows := make([][]string, 0, ds.Len())
	for _, row := range ds.Rows {
		rows = append(rows, row.Fields)
	}
	resp := gin.H{
		"symbol": symbol,
		"header": ds.Header,
		"rows":   rows,
	}
	if change, ok := sliceChangePct(ds); ok {
		resp["change_pct"] = change.StringFixed(2)
	}
	c.JSON(http.StatusOK, resp)
}

// sliceChangePct 计算返回区间首尾收盘价的涨跌幅（百分比）。
func sliceChangePct(ds market.Dataset) (decimal.Decimal, bool) {
	if ds.Len() < 2 || !ds.HasColumn(market.ColClose) {
		return decimal.Zero, false
	}
	first, err1 := ds.DecimalField(ds.Rows[0], market.ColClose)
	last, err2 := ds.DecimalField(ds.Rows[ds.Len()-1], market.ColClose)
	if err1 != nil || err2 != nil || first.IsZero() {
		return decimal.Zero, false
	}
	hundred := decimal.NewFromInt(100)
	return last.Sub(first).Div(first).Mul(hundred), true
}
