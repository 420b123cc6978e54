package xcron

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
)

type schedulerOptions struct {
	locker   Locker
	logger   xlog.Logger
	observer xmetrics.Observer
	location *time.Location
	parser   cron.Parser
}

func defaultSchedulerOptions() *schedulerOptions {
	return &schedulerOptions{
		locker:   NoopLocker(),
		logger:   xlog.Discard(),
		observer: xmetrics.NoopObserver{},
		location: time.Local,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// SchedulerOption 调度器配置选项。
type SchedulerOption func(*schedulerOptions)

// WithLocker 设置默认任务锁，任务可通过 [WithJobLocker] 覆盖。
func WithLocker(locker Locker) SchedulerOption {
	return func(o *schedulerOptions) {
		if locker != nil {
			o.locker = locker
		}
	}
}

func WithLogger(logger xlog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 每轮执行产生一个 span，Operation 为任务名。
func WithObserver(observer xmetrics.Observer) SchedulerOption {
	return func(o *schedulerOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithLocation cron 表达式按 loc 解释，默认本地时区。
func WithLocation(loc *time.Location) SchedulerOption {
	return func(o *schedulerOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithSeconds 启用秒级字段，如 "*/5 * * * * *"。
func WithSeconds() SchedulerOption {
	return func(o *schedulerOptions) {
		o.parser = cron.NewParser(
			cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		)
	}
}

// MinLockTTL 锁 TTL 下限。续期间隔为 TTL/3，至少需要 1 秒。
const MinLockTTL = 3 * time.Second

// DefaultLockTTL 任务锁默认 TTL。
const DefaultLockTTL = 5 * time.Minute

type jobOptions struct {
	name        string
	locker      Locker
	lockTTL     time.Duration
	lockTimeout time.Duration
	timeout     time.Duration
	immediate   bool
}

func defaultJobOptions() *jobOptions {
	return &jobOptions{
		lockTTL:     DefaultLockTTL,
		lockTimeout: 5 * time.Second,
	}
}

// JobOption 任务配置选项。
type JobOption func(*jobOptions)

// WithName 任务名，同时作为锁 key。未命名的任务不加锁。
func WithName(name string) JobOption {
	return func(o *jobOptions) {
		o.name = name
	}
}

func WithJobLocker(locker Locker) JobOption {
	return func(o *jobOptions) {
		o.locker = locker
	}
}

// WithLockTTL 小于 [MinLockTTL] 时按 MinLockTTL 处理，非正值被忽略。
func WithLockTTL(ttl time.Duration) JobOption {
	return func(o *jobOptions) {
		if ttl <= 0 {
			return
		}
		o.lockTTL = max(ttl, MinLockTTL)
	}
}

// WithLockTimeout 单次 TryLock 的超时，默认 5 秒。
func WithLockTimeout(timeout time.Duration) JobOption {
	return func(o *jobOptions) {
		if timeout > 0 {
			o.lockTimeout = timeout
		}
	}
}

// WithTimeout 单轮执行超时，默认不限。
func WithTimeout(timeout time.Duration) JobOption {
	return func(o *jobOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithImmediate 注册后异步立即执行一轮，同样经过加锁与超时控制。
func WithImmediate() JobOption {
	return func(o *jobOptions) {
		o.immediate = true
	}
}
