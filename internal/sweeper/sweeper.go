package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/aggsync/pkg/distributed/xcron"
	"github.com/omeyang/aggsync/pkg/distributed/xdlock"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

// JobName 清扫任务名，同时是锁 key 后缀。
const JobName = "dirty-sweep"

// StopTimeout Run 退出时等待运行中一轮结束的上限。
const StopTimeout = 30 * time.Second

var (
	ErrNilTarget     = errors.New("sweeper: nil sweep target")
	ErrEmptySchedule = errors.New("sweeper: empty schedule")
)

// Target 执行一轮清扫的对象，通常是 *aggregates.Service。
type Target interface {
	Sweep(ctx context.Context) (xcachesync.SweepReport, error)
}

type options struct {
	locks     xdlock.Manager
	lockTTL   time.Duration
	logger    xlog.Logger
	observer  xmetrics.Observer
	immediate bool
	seconds   bool
}

// Option 配置 Sweeper。
type Option func(*options)

// WithLocks 使用分布式锁保证单副本执行，未设置时不加锁。
func WithLocks(m xdlock.Manager) Option {
	return func(o *options) { o.locks = m }
}

func WithLockTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.lockTTL = ttl
		}
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

// WithImmediate 注册后立即执行一轮。
func WithImmediate() Option {
	return func(o *options) { o.immediate = true }
}

// WithSeconds 调度表达式带秒字段。
func WithSeconds() Option {
	return func(o *options) { o.seconds = true }
}

// Sweeper 按 cron 表达式调度清扫。
type Sweeper struct {
	target Target
	opts   options
	sched  xcron.Scheduler

	mu       sync.Mutex
	id       xcron.JobID
	schedule string
}

// New 创建 Sweeper 并按 schedule 注册任务，调用 Start 后开始调度。
func New(target Target, schedule string, opts ...Option) (*Sweeper, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	o := options{
		lockTTL:  xcron.DefaultLockTTL,
		logger:   xlog.Discard(),
		observer: xmetrics.NoopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	schedOpts := []xcron.SchedulerOption{
		xcron.WithLogger(o.logger),
		xcron.WithObserver(o.observer),
	}
	if o.seconds {
		schedOpts = append(schedOpts, xcron.WithSeconds())
	}
	if o.locks != nil {
		locker, err := xcron.NewDlockLocker(o.locks)
		if err != nil {
			return nil, err
		}
		schedOpts = append(schedOpts, xcron.WithLocker(locker))
	}

	s := &Sweeper{target: target, opts: o, sched: xcron.New(schedOpts...)}
	if err := s.add(schedule, o.immediate); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() { s.sched.Start() }

// Stop 停止调度并等待运行中的一轮结束或 ctx 到期。
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.sched.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 开始调度并阻塞到 ctx 取消，然后停止调度。
func (s *Sweeper) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), StopTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// Reschedule 替换调度表达式。新表达式无效时保留原任务。
func (s *Sweeper) Reschedule(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schedule == s.schedule {
		return nil
	}
	old := s.id
	if err := s.addLocked(schedule, false); err != nil {
		return err
	}
	s.sched.Remove(old)
	s.opts.logger.Info(context.Background(), "sweep rescheduled", slog.String("schedule", schedule))
	return nil
}

// Schedule 当前调度表达式。
func (s *Sweeper) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// RunOnce 不经调度、不加锁地执行一轮。
func (s *Sweeper) RunOnce(ctx context.Context) (xcachesync.SweepReport, error) {
	return s.sweep(ctx)
}

func (s *Sweeper) Stats() *xcron.JobStats {
	return s.sched.Stats().Job(JobName)
}

func (s *Sweeper) add(schedule string, immediate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(schedule, immediate)
}

func (s *Sweeper) addLocked(schedule string, immediate bool) error {
	if schedule == "" {
		return ErrEmptySchedule
	}
	jobOpts := []xcron.JobOption{xcron.WithName(JobName), xcron.WithLockTTL(s.opts.lockTTL)}
	if immediate {
		jobOpts = append(jobOpts, xcron.WithImmediate())
	}
	id, err := s.sched.AddFunc(schedule, func(ctx context.Context) error {
		_, err := s.sweep(ctx)
		return err
	}, jobOpts...)
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	s.id = id
	s.schedule = schedule
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) (xcachesync.SweepReport, error) {
	report, err := s.target.Sweep(ctx)
	if len(report.RateLimited) > 0 {
		s.opts.logger.Warn(ctx, "sweep rate limited",
			slog.Any("aggregates", report.RateLimited))
	}
	if err != nil {
		s.opts.logger.Error(ctx, "sweep failed",
			xlog.Count(int64(len(report.Failed))), xlog.Err(err))
	}
	return report, err
}
