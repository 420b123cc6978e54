package xcron

import (
	"context"
	"time"
)

type noopLocker struct{}

type noopLockHandle struct {
	key string
}

// NoopLocker 总是获取成功，用于单副本部署。New 不设置 locker 时的默认值。
func NoopLocker() Locker {
	return noopLocker{}
}

func (noopLocker) TryLock(_ context.Context, key string, _ time.Duration) (LockHandle, error) {
	return noopLockHandle{key: key}, nil
}

func (noopLockHandle) Unlock(context.Context) error { return nil }

func (noopLockHandle) Renew(context.Context, time.Duration) error { return nil }

func (h noopLockHandle) Key() string { return h.key }

func isNoop(l Locker) bool {
	_, ok := l.(noopLocker)
	return ok
}
