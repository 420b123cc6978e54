package xcachesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/aggsync/pkg/distributed/xdlock"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/resilience/xretry"
	"github.com/omeyang/aggsync/pkg/storage/xcache"
)

const componentName = "xcachesync"

// core 各组件共享的存储、锁与等锁逻辑。
type core struct {
	store xcache.Store
	locks xdlock.Manager
	opts  *options
}

func newCore(store xcache.Store, locks xdlock.Manager, opts []Option) (core, error) {
	if store == nil {
		return core{}, ErrNilStore
	}
	if locks == nil {
		return core{}, ErrNilLocker
	}
	return core{store: store, locks: locks, opts: applyOptions(opts)}, nil
}

// settledFunc 等锁期间检查其他持有者是否已完成工作。返回 true 时不再等锁。
type settledFunc func(ctx context.Context) (bool, error)

// waitForLock 在 MaxWait 内轮询获取 target 的锁。
//
// 首次尝试立即获取；之后每次等待一个间隔，先调用 settled，再重试获取。
// 返回 (lease, nil) 表示已持锁；(nil, nil) 表示 settled 返回 true；
// 超时返回 *UnavailableError；调用方取消返回 ctx.Err()。
func (c *core) waitForLock(ctx context.Context, target Target, settled settledFunc) (*xdlock.Lease, uint, error) {
	lockKey := target.lockKey()
	start := time.Now()

	var (
		lease    *xdlock.Lease
		attempts uint
	)
	err := xretry.Poll(ctx, func(ctx context.Context, attempt uint) (bool, error) {
		attempts = attempt
		if attempt > 1 && settled != nil {
			done, err := settled(ctx)
			if err != nil || done {
				return done, err
			}
		}
		l, err := c.locks.Acquire(ctx, lockKey, c.opts.lockTTL)
		if err != nil {
			return false, fmt.Errorf("xcachesync: acquire %s: %w", lockKey, err)
		}
		if l == nil {
			return false, nil
		}
		lease = l
		return true, nil
	}, xretry.PollOptions{
		Backoff: c.opts.backoffPolicy(),
		MaxWait: c.opts.maxWait,
	})
	if err != nil {
		if errors.Is(err, xretry.ErrWaitTimeout) {
			waited := time.Since(start)
			c.opts.logger.Warn(ctx, "lock wait exceeded max wait",
				xlog.Key(target.CacheKey), xlog.LockKey(lockKey), xlog.Duration(waited))
			return nil, attempts, &UnavailableError{Key: target.CacheKey, Waited: waited}
		}
		return nil, attempts, err
	}
	return lease, attempts, nil
}

// release 释放锁，不受调用方取消影响。
func (c *core) release(ctx context.Context, lease *xdlock.Lease) {
	if lease == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultReleaseTimeout)
	defer cancel()

	err := lease.Release(releaseCtx)
	switch {
	case err == nil:
	case errors.Is(err, xdlock.ErrNotHeld):
		// 持锁时间超过 TTL，锁已被他人获取或自然过期
		c.opts.logger.Warn(ctx, "lock expired before release",
			xlog.LockKey(lease.Key), xlog.Duration(time.Since(lease.AcquiredAt)))
	default:
		c.opts.logger.Warn(ctx, "lock release failed", xlog.LockKey(lease.Key), xlog.Err(err))
	}
}
