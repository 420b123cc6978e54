package xretry

import (
	"context"
	"errors"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// DefaultPollInterval 默认轮询间隔。
const DefaultPollInterval = 200 * time.Millisecond

// StepFunc 单次轮询。
//
// attempt 从 1 开始。返回 done=true 结束轮询；返回非 nil 错误立即中止。
// ctx 在 MaxWait 到期或调用方取消时 Done。
type StepFunc func(ctx context.Context, attempt uint) (done bool, err error)

// PollOptions 轮询配置。
type PollOptions struct {
	// Backoff 两次尝试之间的等待策略，为 nil 时使用 DefaultPollInterval 固定间隔。
	Backoff BackoffPolicy

	// MaxWait 总等待上限，<= 0 表示只受调用方 ctx 约束。
	MaxWait time.Duration

	// OnWait 每次进入等待前回调，可为 nil。
	OnWait func(attempt uint, delay time.Duration)
}

// Poll 反复执行 step 直到其返回 done=true。
//
// 首次尝试立即执行，之后按 Backoff 间隔执行。
// 超过 MaxWait 返回 [ErrWaitTimeout]；调用方 ctx 取消时返回 ctx.Err()。
func Poll(ctx context.Context, step StepFunc, opts PollOptions) error {
	if step == nil {
		return ErrNilStep
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = NewFixedBackoff(DefaultPollInterval)
	}

	waitCtx := ctx
	if opts.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeoutCause(ctx, opts.MaxWait, ErrWaitTimeout)
		defer cancel()
	}

	delayFn := ToDelayType(backoff)
	var attempt uint
	err := retry.New(
		retry.Context(waitCtx),
		retry.UntilSucceeded(),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errPending)
		}),
		retry.DelayType(func(n uint, err error, dc DelayContext) time.Duration {
			d := delayFn(n, err, dc)
			if opts.OnWait != nil {
				opts.OnWait(attempt, d)
			}
			return d
		}),
	).Do(func() error {
		attempt++
		done, err := step(waitCtx, attempt)
		if err != nil {
			return err
		}
		if !done {
			return errPending
		}
		return nil
	})
	if err == nil {
		return nil
	}

	// 调用方取消优先于等待超时
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitCtx.Err() != nil {
		return ErrWaitTimeout
	}
	return err
}
