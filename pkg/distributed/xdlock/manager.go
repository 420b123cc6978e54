package xdlock

import (
	"context"
	"strings"
	"time"
)

const (
	// LockKeyPrefix 缓存 key 对应锁 key 的前缀。
	LockKeyPrefix = "lock:"

	maxKeyLength = 512
)

// LockKeyFor 返回缓存 key 约定的锁 key。
func LockKeyFor(cacheKey string) string {
	return LockKeyPrefix + cacheKey
}

// Manager 分布式锁管理器。实现必须并发安全。
type Manager interface {
	// Acquire 非阻塞地尝试获取锁。
	// 锁被其他持有者占用时返回 (nil, nil)，err 只表示锁服务异常。
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)

	// Release 仅当 key 仍由 token 持有时释放，否则返回 ErrNotHeld 且不改变 key 与 TTL。
	Release(ctx context.Context, key, token string) error

	// Extend 仅当 key 仍由 token 持有时把 TTL 重设为 ttl。
	Extend(ctx context.Context, key, token string, ttl time.Duration) error
}

// Lease 一次成功的锁获取。
type Lease struct {
	Key        string
	Token      string
	TTL        time.Duration
	AcquiredAt time.Time

	manager Manager
}

// Release 释放本次获取的锁。
func (l *Lease) Release(ctx context.Context) error {
	return l.manager.Release(ctx, l.Key, l.Token)
}

// Extend 续期本次获取的锁。
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	if err := l.manager.Extend(ctx, l.Key, l.Token, ttl); err != nil {
		return err
	}
	l.TTL = ttl
	return nil
}

func newLease(m Manager, key, token string, ttl time.Duration) *Lease {
	return &Lease{
		Key:        key,
		Token:      token,
		TTL:        ttl,
		AcquiredAt: time.Now(),
		manager:    m,
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if len(key) > maxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

func validate(key string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
