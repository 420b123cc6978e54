package xcachesync

import (
	"context"
	"fmt"
	"strconv"

	"github.com/omeyang/aggsync/pkg/distributed/xdlock"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
	"github.com/omeyang/aggsync/pkg/storage/xcache"
)

// WarmResult EnsureWarm 的结果。
type WarmResult struct {
	// WasWarm 为 false 表示本次调用执行了聚合与写入。
	WasWarm bool
}

// Warmer 保证 hash 缓存反映权威聚合结果，每次缺失最多填充一次。
type Warmer struct {
	core
	agg Aggregator
}

// NewWarmer 创建 Warmer。
func NewWarmer(store xcache.Store, locks xdlock.Manager, agg Aggregator, opts ...Option) (*Warmer, error) {
	c, err := newCore(store, locks, opts)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, ErrNilAggregator
	}
	return &Warmer{core: c, agg: agg}, nil
}

// EnsureWarm 确保 target.CacheKey 已填充。
//
// key 存在时直接返回 WasWarm=true，不取锁。否则在 MaxWait 内竞争锁：
// 取得锁的调用方复查后执行聚合并原子写入，返回 WasWarm=false；
// 等待中的调用方发现 key 已出现时返回 WasWarm=true。
//
// 聚合失败返回包装了 ErrAggregateFailed 的错误，key 保持不存在。
// 等锁超时返回 *UnavailableError。
func (w *Warmer) EnsureWarm(ctx context.Context, target Target, query Query) (result WarmResult, err error) {
	if err := target.validate(); err != nil {
		return WarmResult{}, err
	}

	ctx, span := xmetrics.Start(ctx, w.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "ensure_warm",
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String(xmetrics.AttrCacheKey, target.CacheKey)},
	})
	var attempts uint
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{
			xmetrics.Bool(xmetrics.AttrWasWarm, result.WasWarm),
			xmetrics.Int64(xmetrics.AttrAttempts, int64(attempts)), //nolint:gosec // 尝试次数不会溢出
		}})
	}()

	exists, err := w.store.Exists(ctx, target.CacheKey)
	if err != nil {
		return WarmResult{}, err
	}
	if exists {
		return WarmResult{WasWarm: true}, nil
	}

	lease, n, err := w.waitForLock(ctx, target, w.exists(target.CacheKey))
	attempts = n
	if err != nil {
		return WarmResult{}, err
	}
	if lease == nil {
		// 等待期间其他持有者已完成填充
		return WarmResult{WasWarm: true}, nil
	}
	defer w.release(ctx, lease)

	exists, err = w.store.Exists(ctx, target.CacheKey)
	if err != nil {
		return WarmResult{}, err
	}
	if exists {
		return WarmResult{WasWarm: true}, nil
	}

	if _, err := w.populate(ctx, target, query); err != nil {
		return WarmResult{}, err
	}
	return WarmResult{WasWarm: false}, nil
}

// ReadHash EnsureWarm 后读取整个 hash，去掉占位字段并解析为整数。
func (w *Warmer) ReadHash(ctx context.Context, target Target, query Query) (map[string]int64, error) {
	if _, err := w.EnsureWarm(ctx, target, query); err != nil {
		return nil, err
	}
	raw, err := w.store.HGetAll(ctx, target.CacheKey)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(raw))
	for field, value := range raw {
		if field == PlaceholderField {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("xcachesync: field %s of %s is not an integer: %w", field, target.CacheKey, err)
		}
		counts[field] = n
	}
	return counts, nil
}

func (w *Warmer) exists(key string) settledFunc {
	return func(ctx context.Context) (bool, error) {
		return w.store.Exists(ctx, key)
	}
}

// populate 聚合并整体替换 hash，调用方必须持有锁。
// 空结果写入占位字段与 PlaceholderTTL。返回写入的字段数（不含占位）。
func (w *Warmer) populate(ctx context.Context, target Target, query Query) (int, error) {
	pairs, err := w.agg.Aggregate(ctx, query)
	if err != nil {
		w.opts.logger.Warn(ctx, "aggregate failed",
			xlog.Key(target.CacheKey), xlog.Aggregate(query.Collection), xlog.Err(err))
		return 0, fmt.Errorf("%w: %s: %w", ErrAggregateFailed, target.CacheKey, err)
	}

	if len(pairs) == 0 {
		err := w.store.ReplaceHash(ctx, target.CacheKey,
			map[string]any{PlaceholderField: PlaceholderValue}, w.opts.placeholderTTL)
		if err != nil {
			return 0, err
		}
		w.opts.logger.Debug(ctx, "populated empty aggregate with placeholder", xlog.Key(target.CacheKey))
		return 0, nil
	}

	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		// 同一 id 出现多次时累加
		if prev, ok := fields[p.ID].(int64); ok {
			fields[p.ID] = prev + p.Total
			continue
		}
		fields[p.ID] = p.Total
	}
	if err := w.store.ReplaceHash(ctx, target.CacheKey, fields, 0); err != nil {
		return 0, err
	}
	w.opts.logger.Debug(ctx, "populated aggregate",
		xlog.Key(target.CacheKey), xlog.Count(int64(len(fields))))
	return len(fields), nil
}
