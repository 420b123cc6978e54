package xcron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/aggsync/pkg/distributed/xdlock"
)

// DefaultLockKeyPrefix 任务锁 key 的默认前缀。
const DefaultLockKeyPrefix = "aggsync:cron:"

// DlockLocker 将 xdlock.Manager 适配为 [Locker]。
//
// Redis 与 Redsync 两种 Manager 都可以使用；续期由 xcron 的续期协程驱动，
// 直接映射到 Lease.Extend。
type DlockLocker struct {
	manager   xdlock.Manager
	keyPrefix string
}

// DlockLockerOption 配置选项。
type DlockLockerOption func(*DlockLocker)

// WithKeyPrefix 设置锁 key 前缀，默认 [DefaultLockKeyPrefix]。
func WithKeyPrefix(prefix string) DlockLockerOption {
	return func(l *DlockLocker) {
		l.keyPrefix = prefix
	}
}

// NewDlockLocker 创建适配器。manager 为 nil 时返回 [ErrNilManager]。
func NewDlockLocker(manager xdlock.Manager, opts ...DlockLockerOption) (*DlockLocker, error) {
	if manager == nil {
		return nil, ErrNilManager
	}
	l := &DlockLocker{manager: manager, keyPrefix: DefaultLockKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// TryLock 实现 [Locker]。
func (l *DlockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	lease, err := l.manager.Acquire(ctx, l.keyPrefix+key, ttl)
	if err != nil {
		return nil, fmt.Errorf("xcron: try lock %s: %w", key, err)
	}
	if lease == nil {
		return nil, nil
	}
	return &leaseHandle{lease: lease, key: key}, nil
}

type leaseHandle struct {
	lease *xdlock.Lease
	key   string
}

func (h *leaseHandle) Unlock(ctx context.Context) error {
	return mapLeaseError("unlock", h.lease.Release(ctx))
}

func (h *leaseHandle) Renew(ctx context.Context, ttl time.Duration) error {
	return mapLeaseError("renew", h.lease.Extend(ctx, ttl))
}

func (h *leaseHandle) Key() string {
	return h.key
}

func mapLeaseError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, xdlock.ErrNotHeld):
		return ErrLockNotHeld
	default:
		return fmt.Errorf("xcron: %s: %w", op, err)
	}
}

var (
	_ Locker     = (*DlockLocker)(nil)
	_ LockHandle = (*leaseHandle)(nil)
)
