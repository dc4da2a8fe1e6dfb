package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"etfsync/internal/market"

	"github.com/tidwall/gjson"
)

const (
	histFields = "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61"
	// 场内 ETF 的板块过滤（沪深两市）。
	catalogFilter = "b:MK0021,b:MK0022,b:MK0023,b:MK0024"
)

// EastMoney 基于东方财富 push2 行情接口。
type EastMoney struct {
	histBaseURL string
	listBaseURL string
	adjust      int // 0 不复权 / 1 前复权 / 2 后复权
	client      *http.Client
}

type EastMoneyConfig struct {
	HistBaseURL string
	ListBaseURL string
	Adjust      string // "" | "qfq" | "hfq"
	Timeout     time.Duration
}

func NewEastMoney(cfg EastMoneyConfig) *EastMoney {
	if cfg.HistBaseURL == "" {
		cfg.HistBaseURL = "https://push2his.eastmoney.com"
	}
	if cfg.ListBaseURL == "" {
		cfg.ListBaseURL = "https://push2.eastmoney.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	adjust := 0
	switch strings.ToLower(cfg.Adjust) {
	case "qfq":
		adjust = 1
	case "hfq":
		adjust = 2
	}
	return &EastMoney{
		histBaseURL: cfg.HistBaseURL,
		listBaseURL: cfg.ListBaseURL,
		adjust:      adjust,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

func (e *EastMoney) Name() string { return "eastmoney" }

// FetchHistory 拉取单个 symbol 的历史行情。返回的数据集不保证有序，
// 排序与去重由合并器负责。
func (e *EastMoney) FetchHistory(ctx context.Context, req HistoryRequest) (market.Dataset, error) {
	if req.Symbol == "" {
		return market.Dataset{}, persistentErr("fetch_history", errors.New("symbol 不能为空"))
	}
	u, _ := url.Parse(e.histBaseURL)
	u.Path = "/api/qt/stock/kline/get"
	q := u.Query()
	q.Set("secid", secID(req.Symbol))
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", histFields)
	q.Set("klt", kltCode(req.Period))
	q.Set("fqt", fmt.Sprintf("%d", e.adjust))
	q.Set("beg", req.Start)
	q.Set("end", req.End)
	u.RawQuery = q.Encode()

	body, err := e.get(ctx, "fetch_history", u.String())
	if err != nil {
		return market.Dataset{}, err
	}
	root := gjson.ParseBytes(body)
	if !root.Get("data").Exists() {
		// rc!=0 且 data 为 null：代码不存在或无数据
		return market.Dataset{}, nil
	}
	klines := root.Get("data.klines")
	if !klines.IsArray() {
		return market.Dataset{}, nil
	}
	rows := make([]market.Row, 0, len(klines.Array()))
	for _, line := range klines.Array() {
		fields := strings.Split(line.String(), ",")
		if len(fields) == 0 || fields[0] == "" {
			continue
		}
		if len(fields) > len(market.DefaultHeader) {
			fields = fields[:len(market.DefaultHeader)]
		}
		rows = append(rows, market.Row{Date: fields[0], Fields: fields})
	}
	header := market.DefaultHeader[:]
	if len(rows) > 0 && len(rows[0].Fields) < len(header) {
		header = header[:len(rows[0].Fields)]
	}
	return market.Dataset{Header: header, Rows: rows}, nil
}

// FetchCatalog 拉取 symbol → 名称 映射。
func (e *EastMoney) FetchCatalog(ctx context.Context) (map[string]string, error) {
	u, _ := url.Parse(e.listBaseURL)
	u.Path = "/api/qt/clist/get"
	q := u.Query()
	q.Set("pn", "1")
	q.Set("pz", "10000")
	q.Set("po", "1")
	q.Set("np", "1")
	q.Set("fltt", "2")
	q.Set("invt", "2")
	q.Set("fid", "f3")
	q.Set("fs", catalogFilter)
	q.Set("fields", "f12,f14")
	u.RawQuery = q.Encode()

	body, err := e.get(ctx, "fetch_catalog", u.String())
	if err != nil {
		return nil, err
	}
	diff := gjson.GetBytes(body, "data.diff")
	if !diff.Exists() {
		return nil, persistentErr("fetch_catalog", errors.New("响应缺少 data.diff"))
	}
	names := make(map[string]string)
	diff.ForEach(func(_, item gjson.Result) bool {
		code := item.Get("f12").String()
		name := item.Get("f14").String()
		if code != "" && name != "" {
			names[code] = name
		}
		return true
	})
	if len(names) == 0 {
		return nil, persistentErr("fetch_catalog", errors.New("目录为空"))
	}
	return names, nil
}

func (e *EastMoney) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, persistentErr(op, err)
	}
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, transientErr(op, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, transientErr(op, fmt.Errorf("远端状态码 %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return nil, persistentErr(op, fmt.Errorf("远端状态码 %d", resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientErr(op, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, persistentErr(op, errors.New("响应不是合法 JSON"))
	}
	return body, nil
}

// secID 把 symbol 映射为东财 secid（1=沪市，0=深市）。
func secID(symbol string) string {
	if strings.HasPrefix(symbol, "5") || strings.HasPrefix(symbol, "6") || strings.HasPrefix(symbol, "9") {
		return "1." + symbol
	}
	return "0." + symbol
}

func kltCode(period string) string {
	switch period {
	case "1", "5", "15", "30", "60":
		return period
	default:
		return "101" // 日线
	}
}
