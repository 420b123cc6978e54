// Package xbreaker 基于 sony/gobreaker 的熔断器。
//
// 同步层用它保护非致命的缓存写入：Redis 不可用时熔断器打开，
// 后续写入直接快速失败，而不是每次都等到超时。
//
//	b := xbreaker.NewBreaker("cache-writes",
//	    xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(5)),
//	    xbreaker.WithTimeout(30*time.Second),
//	)
//	err := b.Do(ctx, func() error { return store.Set(ctx, k, v, 0) })
//	if xbreaker.IsOpen(err) {
//	    // 快速失败
//	}
package xbreaker
