package xcachesync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/resilience/xbreaker"
	"github.com/omeyang/aggsync/pkg/storage/xcache"
)

// Policy 自增策略。
type Policy int

const (
	// PolicyBlocking 先 EnsureWarm：已预热则 HINCRBY，本次刚填充则跳过。
	PolicyBlocking Policy = iota
	// PolicyNonBlocking 单个脚本内判断：锁被持有或字段不存在时置脏标记并跳过。
	PolicyNonBlocking
)

func (p Policy) String() string {
	switch p {
	case PolicyBlocking:
		return "blocking"
	case PolicyNonBlocking:
		return "non-blocking"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy 解析 "blocking" / "non-blocking"，不区分大小写，空串为 blocking。
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blocking":
		return PolicyBlocking, nil
	case "non-blocking", "nonblocking", "non_blocking":
		return PolicyNonBlocking, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// UnmarshalText 支持从配置直接解析。
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// SkipReason 未执行自增的原因。
type SkipReason string

const (
	// SkipPopulated 本次 EnsureWarm 刚完成填充，结果已包含这次写入。
	SkipPopulated SkipReason = "populated"
	// SkipLocked 锁被持有，已置脏标记。
	SkipLocked SkipReason = "locked"
	// SkipFieldMissing 字段不存在，已置脏标记。
	SkipFieldMissing SkipReason = "field_missing"
)

// IncrementRequest 一次自增。
type IncrementRequest struct {
	Target Target

	// Query 用于 blocking 策略的 EnsureWarm。
	Query Query

	Field string

	// Delta 不能为 0。
	Delta int64
}

// IncrementResult 自增结果。
type IncrementResult struct {
	// Value 自增后的值，仅在 Skipped 为 false 时有效。
	Value   int64
	Skipped bool
	Reason  SkipReason

	// Err 仅由 IncrementSafe 填充。
	Err error
}

// Incrementer 在不与并发预热重复计数的前提下应用计数增量。
type Incrementer struct {
	warmer  *Warmer
	policy  Policy
	breaker *xbreaker.Breaker
	logger  xlog.Logger
}

// NewIncrementer 基于 Warmer 创建 Incrementer，共享其存储、锁与日志。
// opts 中只有 WithBreaker 生效。
func NewIncrementer(w *Warmer, policy Policy, opts ...Option) (*Incrementer, error) {
	if w == nil {
		return nil, ErrNilWarmer
	}
	if policy != PolicyBlocking && policy != PolicyNonBlocking {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, int(policy))
	}
	o := applyOptions(opts)
	breaker := o.breaker
	if breaker == nil {
		breaker = newCacheBreaker("xcachesync.increment")
	}
	return &Incrementer{warmer: w, policy: policy, breaker: breaker, logger: w.opts.logger}, nil
}

// Policy 返回当前策略。
func (inc *Incrementer) Policy() Policy {
	return inc.policy
}

// Increment 按策略执行自增。
//
// 调用方应在权威存储写入提交之后调用。若聚合在写入可见之前执行，
// 本次自增会被跳过且计数偏低，直到后续重算。
func (inc *Incrementer) Increment(ctx context.Context, req IncrementRequest) (IncrementResult, error) {
	if err := req.Target.validate(); err != nil {
		return IncrementResult{}, err
	}
	if req.Field == "" {
		return IncrementResult{}, ErrEmptyField
	}
	if req.Delta == 0 {
		return IncrementResult{}, ErrZeroDelta
	}
	delta := req.Delta

	if inc.policy == PolicyNonBlocking {
		return inc.incrementNonBlocking(ctx, req, delta)
	}
	return inc.incrementBlocking(ctx, req, delta)
}

func (inc *Incrementer) incrementBlocking(ctx context.Context, req IncrementRequest, delta int64) (IncrementResult, error) {
	warm, err := inc.warmer.EnsureWarm(ctx, req.Target, req.Query)
	if err != nil {
		return IncrementResult{}, err
	}
	if !warm.WasWarm {
		return IncrementResult{Skipped: true, Reason: SkipPopulated}, nil
	}
	n, err := inc.warmer.store.HIncrBy(ctx, req.Target.CacheKey, req.Field, delta)
	if err != nil {
		return IncrementResult{}, err
	}
	return IncrementResult{Value: n}, nil
}

func (inc *Incrementer) incrementNonBlocking(ctx context.Context, req IncrementRequest, delta int64) (IncrementResult, error) {
	n, status, err := inc.warmer.store.IncrementUnlessLocked(ctx, xcache.IncrementRequest{
		Key:      req.Target.CacheKey,
		Field:    req.Field,
		Delta:    delta,
		LockKey:  req.Target.lockKey(),
		DirtyKey: req.Target.dirtyKey(),
	})
	if err != nil {
		return IncrementResult{}, err
	}
	switch status {
	case xcache.IncrementLocked:
		inc.logger.Debug(ctx, "increment skipped, lock held",
			xlog.Key(req.Target.CacheKey), xlog.LockKey(req.Target.lockKey()))
		return IncrementResult{Skipped: true, Reason: SkipLocked}, nil
	case xcache.IncrementMissing:
		inc.logger.Debug(ctx, "increment skipped, field missing", xlog.Key(req.Target.CacheKey))
		return IncrementResult{Skipped: true, Reason: SkipFieldMissing}, nil
	default:
		return IncrementResult{Value: n}, nil
	}
}

// IncrementSafe Increment 的非致命版本，用于权威写入已提交之后。
//
// 错误不返回，只记录日志并放入 IncrementResult.Err。
// Redis 持续不可用时熔断器打开，后续调用快速失败。
func (inc *Incrementer) IncrementSafe(ctx context.Context, req IncrementRequest) IncrementResult {
	result, err := xbreaker.Execute(ctx, inc.breaker, func() (IncrementResult, error) {
		return inc.Increment(ctx, req)
	})
	if err != nil {
		inc.logger.Warn(ctx, "cache increment failed, aggregate may be stale",
			xlog.Key(req.Target.CacheKey), xlog.Err(err))
		return IncrementResult{Err: err}
	}
	return result
}

// newCacheBreaker 只把缓存存储故障计为失败。
// 调用方取消、等锁超时、聚合失败不代表 Redis 不可用。
func newCacheBreaker(name string) *xbreaker.Breaker {
	return xbreaker.NewBreaker(name, xbreaker.WithSuccessPolicy(xbreaker.SuccessPolicyFunc(isCacheHealthy)))
}

func isCacheHealthy(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ErrCacheUnavailable), errors.Is(err, ErrAggregateFailed):
		return true
	case errors.Is(err, ErrEmptyCacheKey), errors.Is(err, ErrEmptyField):
		return true
	default:
		return false
	}
}
