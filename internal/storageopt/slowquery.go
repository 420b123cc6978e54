package storageopt

import (
	"context"
	"time"
)

// SlowQueryHook 慢查询回调，在请求路径上同步执行，应保持轻量。
type SlowQueryHook[T any] func(ctx context.Context, info T)

// SlowQueryDetector 慢查询检测器。
type SlowQueryDetector[T any] struct {
	threshold time.Duration
	hook      SlowQueryHook[T]
	counter   SlowQueryCounter
}

// NewSlowQueryDetector 创建慢查询检测器。threshold 为 0 时禁用检测。
func NewSlowQueryDetector[T any](threshold time.Duration, hook SlowQueryHook[T]) *SlowQueryDetector[T] {
	return &SlowQueryDetector[T]{threshold: threshold, hook: hook}
}

// MaybeSlowQuery duration >= threshold 时计数并触发钩子，返回是否为慢查询。
func (d *SlowQueryDetector[T]) MaybeSlowQuery(ctx context.Context, info T, duration time.Duration) bool {
	if d == nil || d.threshold <= 0 || duration < d.threshold {
		return false
	}
	d.counter.Inc()
	if d.hook != nil {
		d.hook(ctx, info)
	}
	return true
}

// Threshold 返回慢查询阈值。
func (d *SlowQueryDetector[T]) Threshold() time.Duration {
	if d == nil {
		return 0
	}
	return d.threshold
}

// Count 返回已检测到的慢查询数。
func (d *SlowQueryDetector[T]) Count() int64 {
	if d == nil {
		return 0
	}
	return d.counter.Count()
}
