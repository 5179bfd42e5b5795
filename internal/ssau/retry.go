// Package ssau は大学ポータルへのHTTPアクセスを提供する。
package ssau

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy は一時的な障害に対する再試行の設定。
type RetryPolicy struct {
	// MaxAttempts は初回を含む試行回数の上限。
	MaxAttempts int
	// BaseDelay は指数バックオフの初期待機時間。
	BaseDelay time.Duration
	// MaxDelay はバックオフ待機時間の上限。
	MaxDelay time.Duration
	// Jitter は待機時間に加算されるランダム幅の上限。
	Jitter time.Duration
}

// DefaultRetryPolicy はポータルアクセスの標準再試行設定を返す。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      200 * time.Millisecond,
	}
}

// RetryableError は再試行可能な障害を表す。
// RetryAfterが正の場合、次回待機時間はバックオフ計算より優先される。
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error はエラーメッセージを返す。
func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// Unwrap はラップされた元エラーを返す。
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable はエラーが再試行可能かを判定する。
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Do はopを再試行付きで実行する。
// isRetryableがfalseを返したエラーは即座に返す。
// onRetryは各再試行の待機前に呼ばれる（nil可）。
func Do(
	ctx context.Context,
	policy RetryPolicy,
	op func() error,
	isRetryable func(error) bool,
	onRetry func(err error, delay time.Duration, attempt int),
) error {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			return lastErr
		}

		delay := nextDelay(policy, attempt, lastErr)
		if onRetry != nil {
			onRetry(lastErr, delay, attempt)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// nextDelay は次回待機時間を計算する。
// サーバーがRetry-Afterを指定した場合はそれを優先し、
// それ以外は指数バックオフにジッターを加える。
func nextDelay(policy RetryPolicy, attempt int, err error) time.Duration {
	var re *RetryableError
	if errors.As(err, &re) && re.RetryAfter > 0 {
		return re.RetryAfter
	}

	delay := policy.BaseDelay << (attempt - 1)
	if delay > policy.MaxDelay || delay <= 0 {
		delay = policy.MaxDelay
	}
	if policy.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(policy.Jitter)))
	}
	return delay
}

// sleep はコンテキストのキャンセルを尊重して待機する。
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
