package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff(2 * time.Second)
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 6*time.Second, backoff(3))
	// attempt 从 1 起算，非法值按 1 处理
	assert.Equal(t, 2*time.Second, backoff(0))
}

func TestRetryDoSuccessFirstAttempt(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: func(int) time.Duration { return 0 }}
	calls := 0
	err := policy.Do(context.Background(), func(attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryDoRetriesUntilSuccess(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: func(int) time.Duration { return 0 }}
	var attempts []int
	err := policy.Do(context.Background(), func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return errors.New("暂时失败")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestRetryDoExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: func(int) time.Duration { return 0 }}
	boom := errors.New("一直失败")
	calls := 0
	err := policy.Do(context.Background(), func(int) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls, "重试次数必须正好是 MaxAttempts")
}

func TestRetryDoNonRetryableStopsImmediately(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     func(int) time.Duration { return 0 },
		Retryable:   func(error) bool { return false },
	}
	calls := 0
	err := policy.Do(context.Background(), func(int) error {
		calls++
		return errors.New("持久性失败")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := RetryPolicy{MaxAttempts: 3, Backoff: func(int) time.Duration { return 0 }}
	calls := 0
	err := policy.Do(ctx, func(int) error {
		calls++
		return errors.New("不该执行到这里")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}
