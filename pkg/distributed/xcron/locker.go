package xcron

import (
	"context"
	"errors"
	"time"
)

// LockHandle 一次成功的锁获取，内部持有唯一 token。
type LockHandle interface {
	// Unlock 只释放本次获取的锁。锁已过期或被覆盖时返回 [ErrLockNotHeld]。
	Unlock(ctx context.Context) error

	// Renew 把锁 TTL 重设为 ttl。
	Renew(ctx context.Context, ttl time.Duration) error

	Key() string
}

// Locker 任务锁。TryLock 必须非阻塞，锁必须带 TTL。
type Locker interface {
	// TryLock 锁被其他副本持有时返回 (nil, nil)，err 只表示锁服务异常。
	TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

var (
	// ErrLockNotHeld 锁已过期或被其他持有者覆盖。
	ErrLockNotHeld = errors.New("xcron: lock not held by this instance")

	// ErrNilJob 任务为 nil。
	ErrNilJob = errors.New("xcron: job cannot be nil")

	// ErrNilManager xdlock.Manager 为 nil。
	ErrNilManager = errors.New("xcron: lock manager cannot be nil")

	// ErrJobPanic 任务 panic 被恢复后返回的错误。
	ErrJobPanic = errors.New("xcron: job panicked")
)
