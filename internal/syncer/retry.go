package syncer

import (
	"context"
	"time"
)

// RetryPolicy 是显式的重试策略值，由调用方注入而不是约定俗成。
// Backoff 的 attempt 从 1 开始计数。
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(error) bool
}

// LinearBackoff 返回 base × attempt 的线性退避。
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base * time.Duration(attempt)
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff == nil {
		p.Backoff = LinearBackoff(2 * time.Second)
	}
	if p.Retryable == nil {
		p.Retryable = func(error) bool { return true }
	}
	return p
}

// Do 按策略执行 fn：每次失败后等待退避间隔，不可重试的错误立即
// 返回。返回最后一次的错误。
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	policy := p.normalized()
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !policy.Retryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-time.After(policy.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
