package xcron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

type cronScheduler struct {
	cron  *cron.Cron
	opts  *schedulerOptions
	stats *Stats

	immediateWg     sync.WaitGroup
	immediateCtx    context.Context
	immediateCancel context.CancelFunc
}

// New 创建调度器。默认 NoopLocker、本地时区、分钟级精度。
func New(opts ...SchedulerOption) Scheduler {
	o := defaultSchedulerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	immediateCtx, immediateCancel := context.WithCancel(context.Background())
	return &cronScheduler{
		cron:            cron.New(cron.WithLocation(o.location), cron.WithParser(o.parser)),
		opts:            o,
		stats:           newStats(),
		immediateCtx:    immediateCtx,
		immediateCancel: immediateCancel,
	}
}

func (s *cronScheduler) AddFunc(spec string, cmd func(ctx context.Context) error, opts ...JobOption) (JobID, error) {
	if cmd == nil {
		return 0, ErrNilJob
	}
	return s.AddJob(spec, JobFunc(cmd), opts...)
}

func (s *cronScheduler) AddJob(spec string, job Job, opts ...JobOption) (JobID, error) {
	if job == nil {
		return 0, ErrNilJob
	}

	jo := defaultJobOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(jo)
		}
	}
	locker := jo.locker
	if locker == nil {
		locker = s.opts.locker
	}
	if jo.name == "" && !isNoop(locker) {
		s.opts.logger.Warn(context.Background(),
			"job has a distributed locker but no name, it will run unlocked", slog.String("spec", spec))
	}

	w := &jobWrapper{
		job:      job,
		opts:     jo,
		locker:   locker,
		logger:   s.opts.logger,
		observer: s.opts.observer,
		stats:    s.stats,
	}
	id, err := s.cron.AddJob(spec, w)
	if err != nil {
		return 0, fmt.Errorf("xcron: add job %q: %w", spec, err)
	}

	if jo.immediate {
		s.immediateWg.Add(1)
		go func() {
			defer s.immediateWg.Done()
			_ = w.run(s.immediateCtx)
		}()
	}
	return id, nil
}

func (s *cronScheduler) Remove(id JobID) {
	s.cron.Remove(id)
}

func (s *cronScheduler) Start() {
	s.cron.Start()
}

// Stop 取消立即执行的那一轮并等待其结束，周期任务由返回的 context 通知完成。
func (s *cronScheduler) Stop() context.Context {
	s.immediateCancel()
	ctx := s.cron.Stop()
	s.immediateWg.Wait()
	return ctx
}

func (s *cronScheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *cronScheduler) Stats() *Stats {
	return s.stats
}

var _ Scheduler = (*cronScheduler)(nil)
