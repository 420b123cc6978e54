package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/aggsync/pkg/config/xconf"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

// 锁后端。
const (
	LockBackendRedis   = "redis"
	LockBackendRedsync = "redsync"
)

// ErrInvalid 配置校验失败。
var ErrInvalid = errors.New("config: invalid")

// Config 进程配置。
type Config struct {
	Redis      RedisConfig                `koanf:"redis"`
	Mongo      MongoConfig                `koanf:"mongo"`
	Sync       SyncConfig                 `koanf:"sync"`
	Aggregates map[string]AggregateConfig `koanf:"aggregates"`
	Sweeper    SweeperConfig              `koanf:"sweeper"`
	Log        LogConfig                  `koanf:"log"`
}

// RedisConfig 单个地址为单机，多个地址为集群。
type RedisConfig struct {
	Addrs    []string `koanf:"addrs"`
	Password string   `koanf:"password"`
	DB       int      `koanf:"db"`
	PoolSize int      `koanf:"pool_size"`

	// LockAddrs redsync 后端的独立 Redis 节点，为空时复用 Addrs。
	LockAddrs []string `koanf:"lock_addrs"`
}

type MongoConfig struct {
	URI                string        `koanf:"uri"`
	Database           string        `koanf:"database"`
	QueryTimeout       time.Duration `koanf:"query_timeout"`
	SlowQueryThreshold time.Duration `koanf:"slow_query_threshold"`
}

// SyncConfig 缓存同步的锁与等待参数。
type SyncConfig struct {
	LockTTL        time.Duration `koanf:"lock_ttl"`
	PollInterval   time.Duration `koanf:"poll_interval"`
	MaxWait        time.Duration `koanf:"max_wait"`
	PlaceholderTTL time.Duration `koanf:"placeholder_ttl"`

	// ComputeTTL 标量缓存的过期时间，0 表示不过期，只靠失效删除。
	ComputeTTL time.Duration `koanf:"compute_ttl"`

	LockBackend string `koanf:"lock_backend"`
}

// AggregateConfig 单个聚合的覆盖项。
type AggregateConfig struct {
	// Policy blocking 或 non-blocking，为空时使用聚合的默认策略。
	Policy string `koanf:"policy"`
}

type SweeperConfig struct {
	Schedule            string        `koanf:"schedule"`
	LockTTL             time.Duration `koanf:"lock_ttl"`
	RepopulatePerMinute int           `koanf:"repopulate_per_minute"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`

	// File 非空时写入文件并按大小轮转。
	File string `koanf:"file"`
}

// Default 返回默认配置。
func Default() Config {
	return Config{
		Redis: RedisConfig{
			Addrs:    []string{"localhost:6379"},
			PoolSize: 10,
		},
		Mongo: MongoConfig{
			URI:                "mongodb://localhost:27017",
			Database:           "seguros",
			QueryTimeout:       30 * time.Second,
			SlowQueryThreshold: 2 * time.Second,
		},
		Sync: SyncConfig{
			LockTTL:        xcachesync.DefaultLockTTL,
			PollInterval:   xcachesync.DefaultPollInterval,
			MaxWait:        xcachesync.DefaultMaxWait,
			PlaceholderTTL: xcachesync.DefaultPlaceholderTTL,
			LockBackend:    LockBackendRedis,
		},
		Aggregates: map[string]AggregateConfig{},
		Sweeper: SweeperConfig{
			Schedule:            "@every 1m",
			LockTTL:             5 * time.Minute,
			RepopulatePerMinute: 6,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load 以 Default 为底，用 path 中的字段覆盖，然后校验。path 为空时只返回默认值。
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	src, err := xconf.New(path)
	if err != nil {
		return Config{}, err
	}
	return FromSource(src)
}

// FromSource 从已加载的配置源解码，用于热重载。
func FromSource(src xconf.Config) (Config, error) {
	cfg := Default()
	if err := src.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Sync.LockBackend = strings.ToLower(strings.TrimSpace(c.Sync.LockBackend))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Aggregates == nil {
		c.Aggregates = map[string]AggregateConfig{}
	}
}

// Validate 汇总所有不合法字段后一次性返回。
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if len(c.Redis.Addrs) == 0 {
		add("redis.addrs is empty")
	}
	if c.Redis.PoolSize < 0 {
		add("redis.pool_size %d < 0", c.Redis.PoolSize)
	}
	if c.Mongo.URI == "" {
		add("mongo.uri is empty")
	}
	if c.Mongo.Database == "" {
		add("mongo.database is empty")
	}

	for name, d := range map[string]time.Duration{
		"sync.lock_ttl":      c.Sync.LockTTL,
		"sync.poll_interval": c.Sync.PollInterval,
		"sync.max_wait":      c.Sync.MaxWait,
		"sweeper.lock_ttl":   c.Sweeper.LockTTL,
	} {
		if d <= 0 {
			add("%s must be positive, got %s", name, d)
		}
	}
	if c.Sync.PlaceholderTTL < 0 || c.Sync.ComputeTTL < 0 {
		add("sync ttl must not be negative")
	}
	if c.Sync.PollInterval > 0 && c.Sync.MaxWait > 0 && c.Sync.PollInterval > c.Sync.MaxWait {
		add("sync.poll_interval %s exceeds sync.max_wait %s", c.Sync.PollInterval, c.Sync.MaxWait)
	}
	switch c.Sync.LockBackend {
	case LockBackendRedis, LockBackendRedsync:
	default:
		add("sync.lock_backend %q", c.Sync.LockBackend)
	}

	for name, a := range c.Aggregates {
		p, err := xcachesync.ParsePolicy(a.Policy)
		if err != nil {
			add("aggregates.%s.policy: %v", name, err)
			continue
		}
		if p == xcachesync.PolicyNonBlocking && c.SeparateLockNodes() {
			add("aggregates.%s.policy %s needs locks on the data node, remove redis.lock_addrs", name, p)
		}
	}

	if _, err := cron.ParseStandard(c.Sweeper.Schedule); err != nil {
		add("sweeper.schedule %q: %v", c.Sweeper.Schedule, err)
	}
	if c.Sweeper.RepopulatePerMinute < 0 {
		add("sweeper.repopulate_per_minute %d < 0", c.Sweeper.RepopulatePerMinute)
	}

	if _, err := xlog.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		add("log.format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// SeparateLockNodes 锁是否放在与缓存数据不同的 Redis 节点上。
// 此时非阻塞自增脚本无法在数据节点上检查锁。
func (c Config) SeparateLockNodes() bool {
	return c.Sync.LockBackend == LockBackendRedsync && len(c.Redis.LockAddrs) > 0
}

// SyncOptions 把同步参数转换为 xcachesync 选项。
func (c Config) SyncOptions() []xcachesync.Option {
	return []xcachesync.Option{
		xcachesync.WithLockTTL(c.Sync.LockTTL),
		xcachesync.WithPollInterval(c.Sync.PollInterval),
		xcachesync.WithMaxWait(c.Sync.MaxWait),
		xcachesync.WithPlaceholderTTL(c.Sync.PlaceholderTTL),
		xcachesync.WithComputeTTL(c.Sync.ComputeTTL),
	}
}

// PolicyFor 返回 name 的策略覆盖，未配置时返回 fallback。
func (c Config) PolicyFor(name string, fallback xcachesync.Policy) xcachesync.Policy {
	a, ok := c.Aggregates[name]
	if !ok || a.Policy == "" {
		return fallback
	}
	p, err := xcachesync.ParsePolicy(a.Policy)
	if err != nil {
		return fallback
	}
	return p
}
