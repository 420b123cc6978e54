package xcron

import (
	"sync"
	"sync/atomic"
	"time"
)

// counters 执行计数，Stats 与 JobStats 共用。
type counters struct {
	executions atomic.Int64
	successes  atomic.Int64
	failures   atomic.Int64
	skips      atomic.Int64

	mu           sync.RWMutex
	lastRun      time.Time
	lastDuration time.Duration
	lastErr      error
}

// Executions 实际执行的轮数，不含跳过。
func (c *counters) Executions() int64 { return c.executions.Load() }

func (c *counters) Successes() int64 { return c.successes.Load() }

func (c *counters) Failures() int64 { return c.failures.Load() }

// Skips 因锁被其他副本持有或锁服务异常而跳过的轮数。
func (c *counters) Skips() int64 { return c.skips.Load() }

func (c *counters) LastRun() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRun
}

func (c *counters) LastDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastDuration
}

// LastError 最近一轮的错误，成功时为 nil。
func (c *counters) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *counters) record(start time.Time, d time.Duration, err error) {
	c.executions.Add(1)
	if err != nil {
		c.failures.Add(1)
	} else {
		c.successes.Add(1)
	}
	c.mu.Lock()
	c.lastRun, c.lastDuration, c.lastErr = start, d, err
	c.mu.Unlock()
}

// Stats 调度器级执行统计。
type Stats struct {
	counters
	jobs sync.Map // name -> *JobStats
}

// JobStats 单个命名任务的统计。
type JobStats struct {
	Name string
	counters
}

func newStats() *Stats {
	return &Stats{}
}

// Job 返回命名任务的统计，未执行过时返回 nil。
func (s *Stats) Job(name string) *JobStats {
	if v, ok := s.jobs.Load(name); ok {
		return v.(*JobStats)
	}
	return nil
}

func (s *Stats) recordExecution(name string, start time.Time, d time.Duration, err error) {
	s.record(start, d, err)
	if name != "" {
		s.job(name).record(start, d, err)
	}
}

func (s *Stats) recordSkip(name string) {
	s.skips.Add(1)
	if name != "" {
		s.job(name).skips.Add(1)
	}
}

func (s *Stats) job(name string) *JobStats {
	if v, ok := s.jobs.Load(name); ok {
		return v.(*JobStats)
	}
	v, _ := s.jobs.LoadOrStore(name, &JobStats{Name: name})
	return v.(*JobStats)
}
