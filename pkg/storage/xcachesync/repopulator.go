package xcachesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
)

// RepopulateKeyPrefix 强制重算限流 key 前缀。
const RepopulateKeyPrefix = "aggsync:repopulate:"

// dirtyValue 与 IncrementUnlessLocked 脚本写入的值一致。
const dirtyValue = "1"

// Entry 参与脏标记扫描的一个聚合。
type Entry struct {
	Name   string
	Target Target
	Query  Query
}

// SweepReport 一次扫描的统计。
type SweepReport struct {
	Checked     int
	Repopulated []string
	RateLimited []string
	Failed      map[string]error
	Duration    time.Duration
}

// Repopulator 处理非阻塞自增留下的脏标记：无条件重算并清除标记。
type Repopulator struct {
	warmer *Warmer
}

// NewRepopulator 基于 Warmer 创建 Repopulator。限流由 Warmer 的 WithRepopulateLimit 决定。
func NewRepopulator(w *Warmer) (*Repopulator, error) {
	if w == nil {
		return nil, ErrNilWarmer
	}
	return &Repopulator{warmer: w}, nil
}

// IsDirty 脏标记是否存在。
func (r *Repopulator) IsDirty(ctx context.Context, target Target) (bool, error) {
	if err := target.validate(); err != nil {
		return false, err
	}
	return r.warmer.store.Exists(ctx, target.dirtyKey())
}

// ForceRepopulate 在锁内无条件重算 target 并清除脏标记。
//
// 取得锁后先删除缓存 key 与脏标记，再聚合。key 不存在时阻塞自增会走等锁路径，
// 待重算完成后再作用于新哈希，不会写进即将被替换的旧哈希；非阻塞自增看到锁并重新置位脏标记。
// 聚合或写入失败时 key 保持不存在并恢复脏标记。
func (r *Repopulator) ForceRepopulate(ctx context.Context, target Target, query Query) (err error) {
	if err := target.validate(); err != nil {
		return err
	}
	w := r.warmer

	ctx, span := xmetrics.Start(ctx, w.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "force_repopulate",
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String(xmetrics.AttrCacheKey, target.CacheKey)},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if err := r.allow(ctx, target); err != nil {
		return err
	}

	lease, _, err := w.waitForLock(ctx, target, nil)
	if err != nil {
		return err
	}
	defer w.release(ctx, lease)

	if _, err := w.store.Del(ctx, target.CacheKey, target.dirtyKey()); err != nil {
		return err
	}
	n, err := w.populate(ctx, target, query)
	if err != nil {
		r.markDirty(ctx, target)
		return err
	}
	w.opts.logger.Info(ctx, "aggregate repopulated",
		xlog.Key(target.CacheKey), xlog.Count(int64(n)))
	return nil
}

// SweepDirty 重算所有脏标记存在的条目。单个条目失败不影响其余条目，
// 失败汇总在 SweepReport.Failed 中并以 errors.Join 返回。限流跳过的条目不计为失败。
func (r *Repopulator) SweepDirty(ctx context.Context, entries []Entry) (SweepReport, error) {
	start := time.Now()
	report := SweepReport{Failed: make(map[string]error)}
	var errs []error

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		name := e.Name
		if name == "" {
			name = e.Target.CacheKey
		}
		report.Checked++

		dirty, err := r.IsDirty(ctx, e.Target)
		if err != nil {
			report.Failed[name] = err
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if !dirty {
			continue
		}

		err = r.ForceRepopulate(ctx, e.Target, e.Query)
		switch {
		case err == nil:
			report.Repopulated = append(report.Repopulated, name)
		case errors.Is(err, ErrRateLimited):
			report.RateLimited = append(report.RateLimited, name)
		default:
			report.Failed[name] = err
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	report.Duration = time.Since(start)
	r.warmer.opts.logger.Info(ctx, "dirty sweep finished",
		xlog.Count(int64(len(report.Repopulated))), xlog.Duration(report.Duration))
	return report, errors.Join(errs...)
}

func (r *Repopulator) allow(ctx context.Context, target Target) error {
	o := r.warmer.opts
	if o.limiter == nil {
		return nil
	}
	res, err := o.limiter.Allow(ctx, RepopulateKeyPrefix+target.CacheKey, o.limit)
	if err != nil {
		return fmt.Errorf("xcachesync: rate limit %s: %w", target.CacheKey, err)
	}
	if res.Allowed == 0 {
		return fmt.Errorf("%w: %s, retry after %s", ErrRateLimited, target.CacheKey, res.RetryAfter.Round(time.Millisecond))
	}
	return nil
}

func (r *Repopulator) markDirty(ctx context.Context, target Target) {
	if err := r.warmer.store.Set(context.WithoutCancel(ctx), target.dirtyKey(), dirtyValue, 0); err != nil {
		r.warmer.opts.logger.Error(ctx, "restore dirty flag failed",
			xlog.Key(target.CacheKey), xlog.Err(err))
	}
}
