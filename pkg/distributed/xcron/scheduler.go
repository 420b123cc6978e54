package xcron

import (
	"context"

	"github.com/robfig/cron/v3"
)

// Scheduler 定时任务调度器。使用 [New] 创建。
type Scheduler interface {
	// AddFunc 按 cron 表达式注册函数任务，如 "@every 1m"。
	AddFunc(spec string, cmd func(ctx context.Context) error, opts ...JobOption) (JobID, error)

	// AddJob 注册 [Job] 任务。
	AddJob(spec string, job Job, opts ...JobOption) (JobID, error)

	// Remove 移除任务，正在执行的那一轮不受影响。
	Remove(id JobID)

	// Start 非阻塞启动，重复调用无效果。
	Start()

	// Stop 停止调度。返回的 context 在运行中的任务全部结束后 Done。
	Stop() context.Context

	// Entries 返回已注册的任务。
	Entries() []cron.Entry

	// Stats 返回执行统计，可并发读取。
	Stats() *Stats
}
