package xcachesync

import (
	"context"

	"github.com/omeyang/aggsync/pkg/distributed/xdlock"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
	"github.com/omeyang/aggsync/pkg/resilience/xbreaker"
	"github.com/omeyang/aggsync/pkg/storage/xcache"
)

// InvalidateResult InvalidateSafe 的结果。
type InvalidateResult struct {
	// Invalidated 缓存 key 存在且已删除。
	Invalidated bool
	Err         error
}

// Invalidator 在锁内删除缓存 key，与并发填充串行化。
type Invalidator struct {
	core
	breaker *xbreaker.Breaker
}

// NewInvalidator 创建 Invalidator。与 Warmer 使用同一组锁参数才能互斥。
func NewInvalidator(store xcache.Store, locks xdlock.Manager, opts ...Option) (*Invalidator, error) {
	c, err := newCore(store, locks, opts)
	if err != nil {
		return nil, err
	}
	breaker := c.opts.breaker
	if breaker == nil {
		breaker = newCacheBreaker("xcachesync.invalidate")
	}
	return &Invalidator{core: c, breaker: breaker}, nil
}

// InvalidateWithLock 取锁后删除缓存 key 及其脏标记，返回缓存 key 是否存在。
//
// 不加锁的删除可能被正在进行的填充覆盖，使失效的数据重新出现。
func (inv *Invalidator) InvalidateWithLock(ctx context.Context, target Target) (deleted bool, err error) {
	if err := target.validate(); err != nil {
		return false, err
	}

	ctx, span := xmetrics.Start(ctx, inv.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "invalidate",
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String(xmetrics.AttrCacheKey, target.CacheKey)},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	lease, _, err := inv.waitForLock(ctx, target, nil)
	if err != nil {
		return false, err
	}
	defer inv.release(ctx, lease)

	exists, err := inv.store.Exists(ctx, target.CacheKey)
	if err != nil {
		return false, err
	}
	if _, err := inv.store.Del(ctx, target.CacheKey, target.dirtyKey()); err != nil {
		return false, err
	}
	inv.opts.logger.Debug(ctx, "cache invalidated", xlog.Key(target.CacheKey))
	return exists, nil
}

// InvalidateSafe InvalidateWithLock 的非致命版本，错误只记录日志并放入结果。
func (inv *Invalidator) InvalidateSafe(ctx context.Context, target Target) InvalidateResult {
	deleted, err := xbreaker.Execute(ctx, inv.breaker, func() (bool, error) {
		return inv.InvalidateWithLock(ctx, target)
	})
	if err != nil {
		inv.opts.logger.Warn(ctx, "cache invalidation failed, stale value may be served",
			xlog.Key(target.CacheKey), xlog.Err(err))
		return InvalidateResult{Err: err}
	}
	return InvalidateResult{Invalidated: deleted}
}
