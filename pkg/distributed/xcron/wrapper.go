package xcron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
)

const (
	component     = "xcron"
	unlockTimeout = 5 * time.Second
)

// jobWrapper 为任务加上锁、续期、超时、追踪与统计，实现 cron.Job。
type jobWrapper struct {
	job      Job
	opts     *jobOptions
	locker   Locker
	logger   xlog.Logger
	observer xmetrics.Observer
	stats    *Stats
}

// renewal 单轮执行的续期状态。
type renewal struct {
	handle LockHandle
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (w *jobWrapper) Run() {
	_ = w.run(context.Background())
}

func (w *jobWrapper) run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobAttr := slog.String("job", w.opts.name)

	var rn *renewal
	if w.needsLock() {
		handle, lockErr := w.tryLock(ctx)
		if lockErr != nil {
			w.logger.Warn(ctx, "acquire job lock failed, skipping", jobAttr, xlog.Err(lockErr))
		}
		if handle == nil {
			w.stats.recordSkip(w.opts.name)
			return lockErr
		}
		rn = w.startRenew(ctx, cancel, handle)
		defer w.release(ctx, rn)
	}

	if w.opts.timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, w.opts.timeout)
		defer timeoutCancel()
	}

	start := time.Now()
	ctx, span := xmetrics.Start(ctx, w.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: w.operation(),
		Kind:      xmetrics.KindInternal,
	})

	err = w.execute(ctx)
	d := time.Since(start)
	span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Duration("job.duration", d)}})
	w.stats.recordExecution(w.opts.name, start, d, err)

	if err != nil {
		w.logger.Error(ctx, "job failed", jobAttr, xlog.Duration(d), xlog.Err(err))
	} else {
		w.logger.Debug(ctx, "job completed", jobAttr, xlog.Duration(d))
	}
	return err
}

func (w *jobWrapper) needsLock() bool {
	return w.opts.name != "" && w.locker != nil && !isNoop(w.locker)
}

func (w *jobWrapper) operation() string {
	if w.opts.name == "" {
		return "job"
	}
	return w.opts.name
}

func (w *jobWrapper) tryLock(ctx context.Context) (LockHandle, error) {
	lockCtx, cancel := context.WithTimeout(ctx, w.opts.lockTimeout)
	defer cancel()
	handle, err := w.locker.TryLock(lockCtx, w.opts.name, w.opts.lockTTL)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		w.logger.Debug(ctx, "job lock held elsewhere, skipping", slog.String("job", w.opts.name))
	}
	return handle, nil
}

func (w *jobWrapper) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanic, r)
		}
	}()
	return w.job.Run(ctx)
}

// startRenew 每 TTL/3 续期一次，续期失败时取消任务。
func (w *jobWrapper) startRenew(ctx context.Context, taskCancel context.CancelFunc, handle LockHandle) *renewal {
	interval := max(w.opts.lockTTL/3, time.Second)
	renewCtx, cancel := context.WithCancel(ctx)
	rn := &renewal{handle: handle, cancel: cancel}
	rn.wg.Add(1)
	go func() {
		defer rn.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := handle.Renew(renewCtx, w.opts.lockTTL); err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					w.logger.Error(ctx, "job lock renewal failed, canceling job",
						slog.String("job", w.opts.name), xlog.Err(err))
					taskCancel()
					return
				}
			}
		}
	}()
	return rn
}

func (w *jobWrapper) release(ctx context.Context, rn *renewal) {
	rn.cancel()
	rn.wg.Wait()

	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
	defer cancel()
	if err := rn.handle.Unlock(unlockCtx); err != nil {
		w.logger.Warn(ctx, "release job lock failed", slog.String("job", w.opts.name), xlog.Err(err))
	}
}
