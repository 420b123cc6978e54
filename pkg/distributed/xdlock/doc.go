// Package xdlock 提供基于 Redis 的 token 锁。
//
// 获取锁是一次 SET key token NX PX ttl，token 为 UUIDv4；释放与续期都先比较 token，
// 不匹配时什么也不做并返回 [ErrNotHeld]，调用方通常把它当作无害的空操作。
// 持有者崩溃后只能等 TTL 过期恢复。
//
// 两种后端：
//
//   - NewRedisManager：基于 xcache.Store 的单实例锁
//   - NewRedsyncManager：基于 go-redsync 的 Redlock，多节点时需过半成功
//
// 使用模式：
//
//	lease, err := mgr.Acquire(ctx, xdlock.LockKeyFor("counts:agente:polizas"), 40*time.Second)
//	if err != nil {
//	    return err // 锁服务异常
//	}
//	if lease == nil {
//	    return nil // 被其他实例持有
//	}
//	defer lease.Release(context.WithoutCancel(ctx))
package xdlock
