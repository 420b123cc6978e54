package xbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// TripPolicy 熔断判定策略。ReadyToTrip 返回 true 时从 Closed 转为 Open。
type TripPolicy interface {
	ReadyToTrip(counts Counts) bool
}

// SuccessPolicy 成功判定策略，默认 err == nil 即为成功。
type SuccessPolicy interface {
	IsSuccessful(err error) bool
}

// SuccessPolicyFunc 函数形式的 SuccessPolicy。
type SuccessPolicyFunc func(err error) bool

func (f SuccessPolicyFunc) IsSuccessful(err error) bool {
	return f(err)
}

// Breaker 熔断器执行器。
type Breaker struct {
	name          string
	tripPolicy    TripPolicy
	successPolicy SuccessPolicy
	timeout       time.Duration
	interval      time.Duration
	maxRequests   uint32
	onStateChange func(name string, from, to State)

	cb *gobreaker.CircuitBreaker[any]
}

// BreakerOption 熔断器配置选项。
type BreakerOption func(*Breaker)

// WithTripPolicy 默认连续失败 5 次熔断。
func WithTripPolicy(p TripPolicy) BreakerOption {
	return func(b *Breaker) {
		if p != nil {
			b.tripPolicy = p
		}
	}
}

func WithSuccessPolicy(p SuccessPolicy) BreakerOption {
	return func(b *Breaker) {
		b.successPolicy = p
	}
}

// WithTimeout Open 到 HalfOpen 的等待时间，默认 60 秒。
func WithTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithInterval Closed 状态下清零统计的周期，默认 0 表示不清零。
func WithInterval(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		b.interval = d
	}
}

// WithMaxRequests HalfOpen 状态允许通过的请求数，默认 1。
func WithMaxRequests(n uint32) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.maxRequests = n
		}
	}
}

// WithOnStateChange 状态变化回调。
func WithOnStateChange(f func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) {
		b.onStateChange = f
	}
}

// NewBreaker 创建熔断器。
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:        name,
		tripPolicy:  NewConsecutiveFailures(5),
		timeout:     60 * time.Second,
		maxRequests: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	st := gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.maxRequests,
		Interval:    b.interval,
		Timeout:     b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return b.tripPolicy.ReadyToTrip(counts)
		},
	}
	if b.successPolicy != nil {
		st.IsSuccessful = b.successPolicy.IsSuccessful
	}
	if b.onStateChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			b.onStateChange(name, from, to)
		}
	}
	b.cb = gobreaker.NewCircuitBreaker[any](st)
	return b
}

// Do 执行受保护的操作。ctx 已取消时直接返回 ctx.Err()，不计入统计。
// Open 状态下不执行 fn，返回包装了 ErrOpenState 的 *BreakerError。
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return wrapBreakerError(err, b.name)
}

// Execute Do 的泛型版本。
func Execute[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, wrapBreakerError(err, b.name)
	}
	typed, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}

func (b *Breaker) State() State {
	return b.cb.State()
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) Counts() Counts {
	return b.cb.Counts()
}
