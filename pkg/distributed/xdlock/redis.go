package xdlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/storage/xcache"
)

// Option Manager 配置选项。
type Option func(*managerOptions)

type managerOptions struct {
	logger   xlog.Logger
	newToken func() string
}

// WithLogger 设置日志，默认丢弃。
func WithLogger(logger xlog.Logger) Option {
	return func(o *managerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func defaultManagerOptions() *managerOptions {
	return &managerOptions{
		logger:   xlog.Discard(),
		newToken: func() string { return uuid.New().String() },
	}
}

type redisManager struct {
	store    xcache.Store
	logger   xlog.Logger
	newToken func() string
}

// NewRedisManager 基于 xcache.Store 创建锁管理器。
func NewRedisManager(store xcache.Store, opts ...Option) (Manager, error) {
	if store == nil {
		return nil, ErrNilClient
	}
	o := defaultManagerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &redisManager{store: store, logger: o.logger, newToken: o.newToken}, nil
}

func (m *redisManager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := validate(key, ttl); err != nil {
		return nil, err
	}
	token := m.newToken()
	ok, err := m.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("xdlock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	m.logger.Debug(ctx, "lock acquired", xlog.LockKey(key), xlog.Duration(ttl))
	return newLease(m, key, token, ttl), nil
}

func (m *redisManager) Release(ctx context.Context, key, token string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	deleted, err := m.store.CompareAndDelete(ctx, key, token)
	if err != nil {
		return fmt.Errorf("xdlock: release %s: %w", key, err)
	}
	if !deleted {
		return ErrNotHeld
	}
	m.logger.Debug(ctx, "lock released", xlog.LockKey(key))
	return nil
}

func (m *redisManager) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := validate(key, ttl); err != nil {
		return err
	}
	ok, err := m.store.CompareAndExpire(ctx, key, token, ttl)
	if err != nil {
		return fmt.Errorf("xdlock: extend %s: %w", key, err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
