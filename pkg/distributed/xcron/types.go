package xcron

import (
	"context"

	"github.com/robfig/cron/v3"
)

// JobID 任务标识，直接复用 cron.EntryID。
type JobID = cron.EntryID

// Job 定时任务。返回的错误会被记录并计入统计。
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc 函数适配器。
type JobFunc func(ctx context.Context) error

// Run 实现 [Job] 接口。
func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}
