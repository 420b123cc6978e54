package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/aggsync/internal/aggregates"
	"github.com/omeyang/aggsync/internal/config"
	"github.com/omeyang/aggsync/pkg/distributed/xdlock"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
	"github.com/omeyang/aggsync/pkg/resilience/xretry"
	"github.com/omeyang/aggsync/pkg/storage/xcache"
	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
	"github.com/omeyang/aggsync/pkg/storage/xmongo"
)

// 启动时连接检查的重试参数。
const (
	connectAttempts = 3
	connectDelay    = 500 * time.Millisecond
	closeTimeout    = 5 * time.Second
)

// Source 聚合数据来源，*xmongo.Aggregator 实现此接口。
type Source interface {
	xcachesync.Aggregator
	aggregates.Ranker
}

type buildOptions struct {
	redis    redis.UniversalClient
	source   Source
	observer xmetrics.Observer
}

// Option 替换 Build 创建的组件，主要用于测试。
type Option func(*buildOptions)

// WithRedisClient 使用已有客户端，App.Close 不关闭它。
func WithRedisClient(c redis.UniversalClient) Option {
	return func(o *buildOptions) { o.redis = c }
}

// WithSource 使用给定数据源，不再连接 MongoDB。
func WithSource(s Source) Option {
	return func(o *buildOptions) { o.source = s }
}

func WithObserver(obs xmetrics.Observer) Option {
	return func(o *buildOptions) { o.observer = obs }
}

// App 组装完成的进程依赖。
type App struct {
	Config   config.Config
	Logger   xlog.Logger
	Redis    redis.UniversalClient
	Store    xcache.Store
	Mongo    xmongo.Mongo
	Locks    xdlock.Manager
	Registry *aggregates.Registry
	Service  *aggregates.Service

	closers []func(context.Context) error
}

// Build 连接外部依赖并组装 App。任一步骤失败时释放已创建的资源。
func Build(ctx context.Context, cfg config.Config, logger xlog.Logger, opts ...Option) (app *App, err error) {
	var o buildOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	logger = xlog.OrDiscard(logger)
	if o.observer == nil {
		if o.observer, err = xmetrics.NewOTelObserver(xmetrics.WithInstrumentationName("aggsync")); err != nil {
			return nil, err
		}
	}

	app = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
			app = nil
		}
	}()

	if err = app.connectRedis(ctx, cfg.Redis, o.redis); err != nil {
		return nil, err
	}
	if app.Store, err = xcache.New(app.Redis, xcache.WithLogger(logger), xcache.WithObserver(o.observer)); err != nil {
		return nil, err
	}
	if o.redis == nil {
		app.onClose(func(context.Context) error { return app.Store.Close() })
	}
	if app.Locks, err = app.newLocks(ctx, cfg); err != nil {
		return nil, err
	}

	source := o.source
	if source == nil {
		if source, err = app.connectMongo(ctx, cfg.Mongo, o.observer); err != nil {
			return nil, err
		}
	}

	if app.Registry, err = NewRegistry(cfg); err != nil {
		return nil, err
	}
	if app.Service, err = app.newService(ctx, cfg, source, o.observer); err != nil {
		return nil, err
	}
	logger.Info(ctx, "aggsync ready", xlog.Component("bootstrap"))
	return app, nil
}

// Close 按创建的逆序释放资源，返回全部错误。
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) connectRedis(ctx context.Context, cfg config.RedisConfig, injected redis.UniversalClient) error {
	client := injected
	if client == nil {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
	}
	err := xretry.Do(ctx, func() error {
		return client.Ping(ctx).Err()
	}, xretry.Attempts(connectAttempts), xretry.Delay(connectDelay))
	if err != nil {
		if injected == nil {
			_ = client.Close()
		}
		return fmt.Errorf("bootstrap: redis ping: %w", err)
	}
	a.Redis = client
	return nil
}

func (a *App) newLocks(ctx context.Context, cfg config.Config) (xdlock.Manager, error) {
	if cfg.Sync.LockBackend != config.LockBackendRedsync {
		return xdlock.NewRedisManager(a.Store, xdlock.WithLogger(a.Logger))
	}
	clients := []redis.UniversalClient{a.Redis}
	if len(cfg.Redis.LockAddrs) > 0 {
		clients = clients[:0]
		for _, addr := range cfg.Redis.LockAddrs {
			c := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password})
			a.onClose(func(context.Context) error { return c.Close() })
			clients = append(clients, c)
		}
	}
	a.Logger.Info(ctx, "using redsync lock backend", xlog.Count(int64(len(clients))))
	return xdlock.NewRedsyncManager(clients, xdlock.WithLogger(a.Logger))
}

func (a *App) connectMongo(ctx context.Context, cfg config.MongoConfig, obs xmetrics.Observer) (Source, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: mongo connect: %w", err)
	}
	m, err := xmongo.New(client,
		xmongo.WithQueryTimeout(cfg.QueryTimeout),
		xmongo.WithSlowQueryThreshold(cfg.SlowQueryThreshold),
		xmongo.WithObserver(obs),
		xmongo.WithLogger(a.Logger),
	)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	a.Mongo = m
	a.onClose(m.Close)

	err = xretry.Do(ctx, func() error {
		return m.Health(ctx)
	}, xretry.Attempts(connectAttempts), xretry.Delay(connectDelay))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: mongo ping: %w", err)
	}
	return m.Aggregator(cfg.Database), nil
}

// NewRegistry 返回应用了 cfg.Aggregates 策略覆盖的默认注册表。
func NewRegistry(cfg config.Config) (*aggregates.Registry, error) {
	base := aggregates.Default()
	overrides := make(map[string]xcachesync.Policy, len(cfg.Aggregates))
	for name := range cfg.Aggregates {
		d, err := base.Get(name)
		if err != nil {
			return nil, err
		}
		overrides[name] = cfg.PolicyFor(name, d.Policy)
	}
	return base.WithPolicies(overrides)
}

func (a *App) newService(ctx context.Context, cfg config.Config, source Source, obs xmetrics.Observer) (*aggregates.Service, error) {
	opts := append(cfg.SyncOptions(),
		xcachesync.WithLogger(a.Logger),
		xcachesync.WithObserver(obs),
	)
	if n := cfg.Sweeper.RepopulatePerMinute; n > 0 {
		opts = append(opts, xcachesync.WithRepopulateLimit(redis_rate.NewLimiter(a.Redis), redis_rate.PerMinute(n)))
	}

	warmer, err := xcachesync.NewWarmer(a.Store, a.Locks, source, opts...)
	if err != nil {
		return nil, err
	}
	blocking, err := xcachesync.NewIncrementer(warmer, xcachesync.PolicyBlocking)
	if err != nil {
		return nil, err
	}
	var nonBlocking *xcachesync.Incrementer
	if cfg.SeparateLockNodes() {
		a.Logger.Info(ctx, "non-blocking increments disabled, locks are on separate nodes")
	} else if nonBlocking, err = xcachesync.NewIncrementer(warmer, xcachesync.PolicyNonBlocking); err != nil {
		return nil, err
	}
	invalidator, err := xcachesync.NewInvalidator(a.Store, a.Locks, opts...)
	if err != nil {
		return nil, err
	}
	repopulator, err := xcachesync.NewRepopulator(warmer)
	if err != nil {
		return nil, err
	}
	ranking, err := xcachesync.NewComputer[[]aggregates.RankedClient](a.Store, a.Locks, opts...)
	if err != nil {
		return nil, err
	}
	return aggregates.NewService(aggregates.Deps{
		Registry:    a.Registry,
		Store:       a.Store,
		Warmer:      warmer,
		Blocking:    blocking,
		NonBlocking: nonBlocking,
		Invalidator: invalidator,
		Repopulator: repopulator,
		Ranking:     ranking,
		Ranker:      source,
		Logger:      a.Logger,
	})
}
