package xretry

import (
	"context"
	"math"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// 以下别名镜像 retry-go 的常用 API，业务代码无需直接导入 retry-go。
type (
	// Option 是 retry-go 的配置选项类型
	Option = retry.Option

	// DelayTypeFunc 是延迟计算函数
	DelayTypeFunc = retry.DelayTypeFunc

	// DelayContext 提供延迟计算所需的配置值
	DelayContext = retry.DelayContext
)

var (
	// Attempts 设置总尝试次数（包含首次），0 表示无限。
	Attempts = retry.Attempts

	// Delay 设置基础重试间隔
	Delay = retry.Delay

	// MaxDelay 设置重试间隔上限
	MaxDelay = retry.MaxDelay

	// MaxJitter 设置最大抖动
	MaxJitter = retry.MaxJitter

	// DelayType 设置延迟类型
	DelayType = retry.DelayType

	// OnRetry 设置重试回调
	OnRetry = retry.OnRetry

	// RetryIf 设置重试条件，传入后覆盖默认的 Unrecoverable 判断
	RetryIf = retry.RetryIf

	// LastErrorOnly 只返回最后一次的错误
	LastErrorOnly = retry.LastErrorOnly

	// FixedDelay 固定延迟
	FixedDelay = retry.FixedDelay

	// BackOffDelay 指数退避延迟
	BackOffDelay = retry.BackOffDelay

	// Unrecoverable 将错误标记为不可恢复
	Unrecoverable = retry.Unrecoverable

	// IsRecoverable 检查错误是否可恢复
	IsRecoverable = retry.IsRecoverable
)

// Do 执行带重试的操作。
//
// 默认跳过 Unrecoverable 标记的错误，其余错误按 opts 重试。
//
//	err := xretry.Do(ctx, func() error {
//	    return client.Ping(ctx).Err()
//	}, xretry.Attempts(3), xretry.Delay(200*time.Millisecond))
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	return retry.New(defaultOpts(ctx, opts)...).Do(fn)
}

// DoWithData 是 Do 的带返回值版本。
func DoWithData[T any](ctx context.Context, fn func() (T, error), opts ...Option) (T, error) {
	return retry.NewWithData[T](defaultOpts(ctx, opts)...).Do(fn)
}

func defaultOpts(ctx context.Context, opts []Option) []Option {
	all := make([]Option, 0, len(opts)+3)
	all = append(all,
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRecoverable),
	)
	return append(all, opts...)
}

// ToDelayType 将 BackoffPolicy 适配为 retry-go 的 DelayTypeFunc。
func ToDelayType(policy BackoffPolicy) DelayTypeFunc {
	if policy == nil {
		return func(_ uint, _ error, _ DelayContext) time.Duration {
			return 0
		}
	}
	return func(n uint, _ error, _ DelayContext) time.Duration {
		return policy.NextDelay(safeUintToInt(n))
	}
}

func safeUintToInt(n uint) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}
