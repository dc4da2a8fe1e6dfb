package syncer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 在相邻远端请求之间强制一个最小间隔。远端有隐式的
// 请求频率上限，超限会直接失败甚至封禁，所以这里的节流是正确性
// 要求而不是性能参数。
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter 构造最小间隔节流器；interval <= 0 时退化为不限速。
func NewLimiter(interval time.Duration) *Limiter {
	if interval <= 0 {
		return &Limiter{rl: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{rl: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait 阻塞到距上次放行至少一个间隔，或 ctx 取消。
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}
