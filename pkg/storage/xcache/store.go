package xcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
)

// IncrementStatus IncrementUnlessLocked 的执行结果。
type IncrementStatus int64

// 脚本返回值与 Redis 侧约定一致。
const (
	// IncrementLocked 锁被持有，未自增，已置脏标记。
	IncrementLocked IncrementStatus = -1
	// IncrementMissing 字段不存在，未自增，已置脏标记。
	IncrementMissing IncrementStatus = 0
	// IncrementApplied 已执行 HINCRBY。
	IncrementApplied IncrementStatus = 1
)

func (s IncrementStatus) String() string {
	switch s {
	case IncrementLocked:
		return "locked"
	case IncrementMissing:
		return "missing"
	case IncrementApplied:
		return "applied"
	default:
		return "unknown"
	}
}

// IncrementRequest IncrementUnlessLocked 的参数。
type IncrementRequest struct {
	Key      string
	Field    string
	Delta    int64
	LockKey  string
	DirtyKey string
}

// Store 聚合缓存的 Redis 原语集合。
//
// 除 Client 与 Close 外，所有方法在 Store 关闭后返回 [ErrClosed]，
// key 为空时返回 [ErrEmptyKey]。
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)

	// Get 读取字符串值，key 不存在时 found 为 false 且 err 为 nil。
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set 写入字符串值，ttl <= 0 表示不过期。
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// SetNX 仅在 key 不存在时写入，ttl <= 0 表示不过期。
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]any) error
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL 返回剩余过期时间。与 Redis 一致：无过期返回 -1，key 不存在返回 -2。
	TTL(ctx context.Context, key string) (time.Duration, error)

	// ReplaceHash 在一个事务中删除 key 与 alsoDelete，写入 fields，ttl > 0 时设置过期。
	ReplaceHash(ctx context.Context, key string, fields map[string]any, ttl time.Duration, alsoDelete ...string) error

	// CompareAndDelete 仅当 key 的值等于 token 时删除，返回是否删除。
	CompareAndDelete(ctx context.Context, key, token string) (bool, error)

	// CompareAndExpire 仅当 key 的值等于 token 时重设过期时间，返回是否生效。
	CompareAndExpire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// IncrementUnlessLocked 原子地：
	//   - LockKey 存在：置 DirtyKey，返回 IncrementLocked
	//   - Field 不存在：置 DirtyKey，返回 IncrementMissing
	//   - 否则 HINCRBY 并返回新值与 IncrementApplied
	IncrementUnlessLocked(ctx context.Context, req IncrementRequest) (int64, IncrementStatus, error)

	// Client 返回底层 go-redis 客户端。
	Client() redis.UniversalClient

	// Close 关闭底层客户端，重复调用返回 ErrClosed。
	Close() error
}

type options struct {
	observer xmetrics.Observer
	logger   xlog.Logger
}

// Option Store 配置选项。
type Option func(*options)

// WithObserver 为每条命令记录 span 与指标。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New 基于已初始化的 go-redis 客户端创建 Store。
func New(client redis.UniversalClient, opts ...Option) (Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := &options{
		observer: xmetrics.NoopObserver{},
		logger:   xlog.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &redisStore{
		client:   client,
		observer: o.observer,
		logger:   o.logger,
	}, nil
}
