package xmongo

import (
	"context"
	"time"

	"github.com/omeyang/aggsync/internal/storageopt"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
)

// SlowQueryInfo 慢查询详细信息。
type SlowQueryInfo struct {
	Database   string
	Collection string

	// Operation 操作类型，如 aggregate、ranked_aggregate。
	Operation string

	// Pipeline 原始聚合管道。写入日志时注意其中可能包含敏感过滤条件。
	Pipeline any

	Duration time.Duration
}

// SlowQueryHook 慢查询回调，在请求路径上同步执行。
type SlowQueryHook func(ctx context.Context, info SlowQueryInfo)

// Options MongoDB 包装器与 Aggregator 的配置。
type Options struct {
	// HealthTimeout 健康检查超时，默认 5 秒。
	HealthTimeout time.Duration

	// SlowQueryThreshold 慢查询阈值，为 0 时禁用检测。
	SlowQueryThreshold time.Duration

	SlowQueryHook SlowQueryHook

	// QueryTimeout 调用方 context 没有 deadline 时的兜底超时，默认 30 秒，0 表示禁用。
	QueryTimeout time.Duration

	// AllowDiskUse 允许聚合阶段使用磁盘临时文件，默认开启。
	AllowDiskUse bool

	Observer xmetrics.Observer
	Logger   xlog.Logger
}

// Option 配置函数。
type Option func(*Options)

// DefaultQueryTimeout 聚合默认兜底超时。
const DefaultQueryTimeout = 30 * time.Second

func defaultOptions() *Options {
	return &Options{
		HealthTimeout: storageopt.DefaultHealthTimeout,
		QueryTimeout:  DefaultQueryTimeout,
		AllowDiskUse:  true,
		Observer:      xmetrics.NoopObserver{},
		Logger:        xlog.Discard(),
	}
}

func applyOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithHealthTimeout 非正值被忽略。
func WithHealthTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.HealthTimeout = timeout
		}
	}
}

// WithSlowQueryThreshold 设置为 0 禁用慢查询检测，负值被忽略。
func WithSlowQueryThreshold(threshold time.Duration) Option {
	return func(o *Options) {
		if threshold >= 0 {
			o.SlowQueryThreshold = threshold
		}
	}
}

func WithSlowQueryHook(hook SlowQueryHook) Option {
	return func(o *Options) {
		o.SlowQueryHook = hook
	}
}

// WithQueryTimeout 传入 0 显式禁用兜底超时，负值被忽略。
func WithQueryTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= 0 {
			o.QueryTimeout = timeout
		}
	}
}

func WithAllowDiskUse(allow bool) Option {
	return func(o *Options) {
		o.AllowDiskUse = allow
	}
}

func WithObserver(observer xmetrics.Observer) Option {
	return func(o *Options) {
		if observer != nil {
			o.Observer = observer
		}
	}
}

func WithLogger(logger xlog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func newSlowQueryDetector(o *Options) *storageopt.SlowQueryDetector[SlowQueryInfo] {
	var hook storageopt.SlowQueryHook[SlowQueryInfo]
	if o.SlowQueryHook != nil {
		hook = func(ctx context.Context, info SlowQueryInfo) { o.SlowQueryHook(ctx, info) }
	}
	return storageopt.NewSlowQueryDetector(o.SlowQueryThreshold, hook)
}
