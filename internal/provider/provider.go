package provider

import (
	"context"
	"errors"
	"fmt"

	"etfsync/internal/market"
)

// HistoryRequest 描述一次远端历史行情请求。日期为 YYYYMMDD；
// Period 为空表示日线，"1"/"5"/"15" 表示分钟线。
type HistoryRequest struct {
	Symbol string
	Period string
	Start  string
	End    string
}

// Client 统一不同远端数据源的拉取行为。实现必须把任意底层错误
// 收敛为 *Error（瞬时或持久），空结果返回空数据集而不是错误。
type Client interface {
	FetchHistory(ctx context.Context, req HistoryRequest) (market.Dataset, error)
	FetchCatalog(ctx context.Context) (map[string]string, error)
	Name() string
}

// Error 是数据源边界的封闭错误类型。Transient 表示可重试
// （网络抖动、超时、限流）；否则为持久性失败。
type Error struct {
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "persistent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("provider %s (%s): %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func transientErr(op string, err error) error {
	return &Error{Op: op, Transient: true, Err: err}
}

func persistentErr(op string, err error) error {
	return &Error{Op: op, Transient: false, Err: err}
}

// IsTransient 判断错误是否值得重试。未收敛的未知错误按瞬时处理，
// 由重试上限兜底。
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return true
}
