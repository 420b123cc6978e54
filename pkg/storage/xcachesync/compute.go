package xcachesync

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/omeyang/aggsync/pkg/distributed/xdlock"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
	"github.com/omeyang/aggsync/pkg/storage/xcache"
)

// ComputeFunc 在权威存储上计算单值。
type ComputeFunc[T any] func(ctx context.Context) (T, error)

// Computer 单值读穿缓存，值以 JSON 字符串保存。
//
// 同一进程内的并发缺失由 singleflight 合并；跨进程由分布式锁保证只计算一次。
// 同一个 Computer 应被复用，否则进程内合并不生效。
type Computer[T any] struct {
	core
	group singleflight.Group
}

// NewComputer 创建 Computer。
func NewComputer[T any](store xcache.Store, locks xdlock.Manager, opts ...Option) (*Computer[T], error) {
	c, err := newCore(store, locks, opts)
	if err != nil {
		return nil, err
	}
	return &Computer[T]{core: c}, nil
}

// ComputeAndCache 一次性调用形式，每次创建新的 Computer。
func ComputeAndCache[T any](ctx context.Context, store xcache.Store, locks xdlock.Manager,
	target Target, compute ComputeFunc[T], opts ...Option) (T, error) {
	c, err := NewComputer[T](store, locks, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Get(ctx, target, compute)
}

// Get 读取缓存值，缺失时计算并写入。
//
// 合并后的计算在独立于调用方的 context 中执行，超时为 MaxWait + LockTTL，
// 调用方取消只影响自己的等待，返回 ctx.Err()。
func (c *Computer[T]) Get(ctx context.Context, target Target, compute ComputeFunc[T]) (value T, err error) {
	var zero T
	if err := target.validate(); err != nil {
		return zero, err
	}
	if compute == nil {
		return zero, ErrNilCompute
	}

	ctx, span := xmetrics.Start(ctx, c.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "compute_and_cache",
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String(xmetrics.AttrCacheKey, target.CacheKey)},
	})
	hit := false
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Bool(xmetrics.AttrWasWarm, hit)}})
	}()

	v, found, err := c.lookup(ctx, target.CacheKey)
	if err != nil {
		return zero, err
	}
	if found {
		hit = true
		return v, nil
	}

	ch := c.group.DoChan(target.CacheKey, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.maxWait+c.opts.lockTTL)
		defer cancel()
		return c.load(flightCtx, target, compute)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Val == nil {
			return zero, nil
		}
		typed, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("xcachesync: unexpected flight result %T", res.Val)
		}
		return typed, nil
	}
}

// Forget 使后续 Get 不再加入 key 上正在进行的合并计算。
func (c *Computer[T]) Forget(key string) {
	c.group.Forget(key)
}

func (c *Computer[T]) load(ctx context.Context, target Target, compute ComputeFunc[T]) (T, error) {
	var (
		zero   T
		cached T
	)
	settled := func(ctx context.Context) (bool, error) {
		v, found, err := c.lookup(ctx, target.CacheKey)
		if err != nil || !found {
			return false, err
		}
		cached = v
		return true, nil
	}

	lease, _, err := c.waitForLock(ctx, target, settled)
	if err != nil {
		return zero, err
	}
	if lease == nil {
		return cached, nil
	}
	defer c.release(ctx, lease)

	v, found, err := c.lookup(ctx, target.CacheKey)
	if err != nil {
		return zero, err
	}
	if found {
		return v, nil
	}

	v, err = compute(ctx)
	if err != nil {
		c.opts.logger.Warn(ctx, "compute failed", xlog.Key(target.CacheKey), xlog.Err(err))
		return zero, fmt.Errorf("%w: %s: %w", ErrComputeFailed, target.CacheKey, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("xcachesync: encode %s: %w", target.CacheKey, err)
	}
	if err := c.store.Set(ctx, target.CacheKey, data, c.opts.computeTTL); err != nil {
		return zero, err
	}
	c.opts.logger.Debug(ctx, "computed and cached", xlog.Key(target.CacheKey))
	return v, nil
}

func (c *Computer[T]) lookup(ctx context.Context, key string) (T, bool, error) {
	var v T
	raw, found, err := c.store.Get(ctx, key)
	if err != nil || !found {
		return v, false, err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, false, fmt.Errorf("xcachesync: decode %s: %w", key, err)
	}
	return v, true, nil
}
