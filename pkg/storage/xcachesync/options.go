package xcachesync

import (
	"time"

	"github.com/go-redis/redis_rate/v10"

	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
	"github.com/omeyang/aggsync/pkg/resilience/xbreaker"
	"github.com/omeyang/aggsync/pkg/resilience/xretry"
)

// 默认值。
const (
	DefaultLockTTL        = 40 * time.Second
	DefaultPollInterval   = xretry.DefaultPollInterval
	DefaultMaxWait        = 30 * time.Second
	DefaultPlaceholderTTL = 5 * time.Minute

	// DefaultReleaseTimeout 释放锁使用的独立超时。
	DefaultReleaseTimeout = 5 * time.Second
)

type options struct {
	lockTTL        time.Duration
	pollInterval   time.Duration
	maxWait        time.Duration
	placeholderTTL time.Duration
	computeTTL     time.Duration
	backoff        xretry.BackoffPolicy

	logger   xlog.Logger
	observer xmetrics.Observer
	breaker  *xbreaker.Breaker

	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// Option 组件配置选项。所有组件共用，与组件无关的选项被忽略。
type Option func(*options)

func defaultOptions() *options {
	return &options{
		lockTTL:        DefaultLockTTL,
		pollInterval:   DefaultPollInterval,
		maxWait:        DefaultMaxWait,
		placeholderTTL: DefaultPlaceholderTTL,
		logger:         xlog.Discard(),
		observer:       xmetrics.NoopObserver{},
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithLockTTL 锁 TTL，应大于一次聚合的最长耗时。默认 40s。
func WithLockTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTTL = d
		}
	}
}

// WithPollInterval 等锁轮询间隔，默认 200ms。被 WithBackoff 覆盖。
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxWait 等锁总时长上限，默认 30s。
func WithMaxWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxWait = d
		}
	}
}

// WithPlaceholderTTL 空结果占位字段的 TTL，默认 5m。
func WithPlaceholderTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.placeholderTTL = d
		}
	}
}

// WithComputeTTL 单值缓存的 TTL，默认 0 表示不过期，只能通过失效删除。
func WithComputeTTL(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.computeTTL = d
		}
	}
}

// WithBackoff 自定义等锁退避策略，例如 xretry.NewExponentialBackoff()。
func WithBackoff(b xretry.BackoffPolicy) Option {
	return func(o *options) {
		o.backoff = b
	}
}

func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithObserver(obs xmetrics.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithBreaker 为 IncrementSafe / InvalidateSafe 指定熔断器。
// 未指定时各组件创建默认熔断器。
func WithBreaker(b *xbreaker.Breaker) Option {
	return func(o *options) {
		if b != nil {
			o.breaker = b
		}
	}
}

// WithRepopulateLimit 限制每个缓存 key 的强制重算频率，超出返回 ErrRateLimited。
func WithRepopulateLimit(limiter *redis_rate.Limiter, limit redis_rate.Limit) Option {
	return func(o *options) {
		if limiter != nil && !limit.IsZero() {
			o.limiter = limiter
			o.limit = limit
		}
	}
}

func (o *options) backoffPolicy() xretry.BackoffPolicy {
	if o.backoff != nil {
		return o.backoff
	}
	return xretry.NewFixedBackoff(o.pollInterval)
}
