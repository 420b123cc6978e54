// Package xcron 提供多副本安全的定时任务调度。
//
// 基于 [robfig/cron/v3]，在每次触发时先通过 [Locker] 抢占任务锁，
// 抢不到的副本跳过本轮。锁默认由 xdlock.Manager 提供（见 [NewDlockLocker]），
// 长任务按 TTL/3 的间隔自动续期，续期失败时取消任务 context。
//
// 缓存同步中的脏标记清扫任务就运行在这里：
//
//	locker, _ := xcron.NewDlockLocker(locks)
//	s := xcron.New(xcron.WithLocker(locker), xcron.WithLogger(logger))
//	_, err := s.AddFunc("@every 1m", sweep, xcron.WithName("dirty-sweep"))
//	s.Start()
//	defer func() { <-s.Stop().Done() }()
//
// 任务必须响应 ctx.Done()，否则锁失效后仍可能与其他副本并发执行。
//
// [robfig/cron/v3]: https://github.com/robfig/cron
package xcron
