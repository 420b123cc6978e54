package xdlock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/omeyang/aggsync/pkg/observability/xlog"
)

type redsyncManager struct {
	rs       *redsync.Redsync
	opts     *managerOptions
	newToken func() string
}

// NewRedsyncManager 基于 redsync 创建锁管理器。
// 单节点为标准 Redis 锁；多节点使用 Redlock 算法（需过半成功）。
// 不会关闭传入的客户端。
func NewRedsyncManager(clients []redis.UniversalClient, opts ...Option) (Manager, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, client := range clients {
		if client == nil {
			return nil, errors.Join(ErrNilClient, errors.New("client at index "+strconv.Itoa(i)+" is nil"))
		}
		pools[i] = goredis.NewPool(client)
	}

	o := defaultManagerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &redsyncManager{rs: redsync.New(pools...), opts: o, newToken: o.newToken}, nil
}

func (m *redsyncManager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := validate(key, ttl); err != nil {
		return nil, err
	}
	token := m.newToken()
	mutex := m.rs.NewMutex(key,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
		redsync.WithGenValueFunc(func() (string, error) { return token, nil }),
	)
	if err := mutex.TryLockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return nil, nil
		}
		return nil, fmt.Errorf("xdlock: acquire %s: %w", key, err)
	}
	m.opts.logger.Debug(ctx, "lock acquired", xlog.LockKey(key), xlog.Duration(ttl))
	return newLease(m, key, token, ttl), nil
}

func (m *redsyncManager) Release(ctx context.Context, key, token string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ok, err := m.rs.NewMutex(key, redsync.WithValue(token)).UnlockContext(ctx)
	return mapRedsyncResult(key, "release", ok, err)
}

func (m *redsyncManager) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := validate(key, ttl); err != nil {
		return err
	}
	ok, err := m.rs.NewMutex(key, redsync.WithValue(token), redsync.WithExpiry(ttl)).ExtendContext(ctx)
	return mapRedsyncResult(key, "extend", ok, err)
}

// mapRedsyncResult 把 token 不匹配统一为 ErrNotHeld，保留其他错误链。
func mapRedsyncResult(key, op string, ok bool, err error) error {
	if err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrLockAlreadyExpired) || errors.Is(err, redsync.ErrExtendFailed) || errors.As(err, &taken) {
			return ErrNotHeld
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("xdlock: %s %s: %w", op, key, err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
