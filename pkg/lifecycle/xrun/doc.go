// Package xrun 基于 errgroup 管理常驻进程内多个服务的运行与协调关闭。
//
// 任一服务退出（无论是否出错）或收到终止信号时，其余服务的 ctx 被取消。
// [Run] 额外监听 [DefaultSignals]，信号退出时返回 *[SignalError]：
//
//	err := xrun.Run(ctx, sweeper.Run, watcher.Run)
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常关闭
//	}
package xrun
