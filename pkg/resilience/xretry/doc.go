// Package xretry 提供有界轮询组合子和退避策略。
//
// 底层使用 [avast/retry-go/v5] 实现重试循环，本包在其之上补充：
//   - Poll：带最大等待时间的"检查-休眠-再检查"循环，超时返回可区分的 [ErrWaitTimeout]
//   - BackoffPolicy：轮询间隔策略（FixedBackoff、ExponentialBackoff）
//   - Do / DoWithData：retry-go 的薄包装，用于启动期连接探测等简单重试
//
// # 轮询
//
//	err := xretry.Poll(ctx, func(ctx context.Context, attempt uint) (bool, error) {
//	    ok, err := tryAcquire(ctx)
//	    return ok, err
//	}, xretry.PollOptions{
//	    Backoff: xretry.NewFixedBackoff(200 * time.Millisecond),
//	    MaxWait: 30 * time.Second,
//	})
//	if errors.Is(err, xretry.ErrWaitTimeout) {
//	    // 等待超过 MaxWait
//	}
//
// 三种结束方式互相区分：
//   - step 返回 done=true：Poll 返回 nil
//   - step 返回非 nil 错误：立即中止并原样返回该错误
//   - 等待超过 MaxWait：返回 [ErrWaitTimeout]；调用方 ctx 取消时返回 ctx.Err()
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
