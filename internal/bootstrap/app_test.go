package bootstrap

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/aggsync/internal/aggregates"
	"github.com/omeyang/aggsync/internal/config"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

type fakeSource struct{}

func (fakeSource) Aggregate(_ context.Context, q xcachesync.Query) ([]xcachesync.Pair, error) {
	if q.Collection == "polizas" {
		return []xcachesync.Pair{{ID: "AG1", Total: 4}}, nil
	}
	return nil, nil
}

func (fakeSource) RankedAggregate(context.Context, xcachesync.Query) ([]bson.M, error) {
	return []bson.M{{"_id": "C1", "cliente_nombre": "Ana", "total_cobertura": 10.0}}, nil
}

func testConfig(mr *miniredis.Miniredis) config.Config {
	cfg := config.Default()
	cfg.Redis.Addrs = []string{mr.Addr()}
	cfg.Sync.PollInterval = 5 * time.Millisecond
	cfg.Sync.MaxWait = time.Second
	return cfg
}

func build(t *testing.T, cfg config.Config, mr *miniredis.Miniredis) *App {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	app, err := Build(context.Background(), cfg, nil,
		WithRedisClient(client), WithSource(fakeSource{}), WithObserver(xmetrics.NoopObserver{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestBuild_WiresService(t *testing.T) {
	mr := miniredis.RunT(t)
	app := build(t, testConfig(mr), mr)
	ctx := context.Background()

	counts, err := app.Service.Read(ctx, aggregates.AgentPolicies)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"AG1": 4}, counts)

	ranking, err := app.Service.Read(ctx, aggregates.TopClients)
	require.NoError(t, err)
	assert.Len(t, ranking, 1)
	assert.Nil(t, app.Mongo)
}

func TestBuild_PolicyOverride(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr)
	cfg.Aggregates[aggregates.AgentClaims] = config.AggregateConfig{Policy: "non-blocking"}

	app := build(t, cfg, mr)

	d, err := app.Registry.Get(aggregates.AgentClaims)
	require.NoError(t, err)
	assert.Equal(t, xcachesync.PolicyNonBlocking, d.Policy)
	d, err = app.Registry.Get(aggregates.AgentPolicies)
	require.NoError(t, err)
	assert.Equal(t, xcachesync.PolicyBlocking, d.Policy)
}

func TestBuild_UnknownAggregateOverride(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr)
	cfg.Aggregates["agent_vehicles"] = config.AggregateConfig{Policy: "blocking"}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	_, err := Build(context.Background(), cfg, nil, WithRedisClient(client), WithSource(fakeSource{}))

	assert.ErrorIs(t, err, aggregates.ErrUnknownAggregate)
}

func TestBuild_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Build(ctx, cfg, nil, WithSource(fakeSource{}), WithObserver(xmetrics.NoopObserver{}))

	assert.ErrorContains(t, err, "redis ping")
}

func TestBuild_RedsyncBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	lockNode := miniredis.RunT(t)
	cfg := testConfig(mr)
	cfg.Sync.LockBackend = config.LockBackendRedsync
	cfg.Redis.LockAddrs = []string{lockNode.Addr()}

	app := build(t, cfg, mr)
	lease, err := app.Locks.Acquire(context.Background(), "lock:test", time.Minute)

	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.True(t, lockNode.Exists("lock:test"))
	assert.False(t, mr.Exists("lock:test"))
	require.NoError(t, lease.Release(context.Background()))
}

func TestBuild_SeparateLockNodesDisableNonBlocking(t *testing.T) {
	mr := miniredis.RunT(t)
	lockNode := miniredis.RunT(t)
	cfg := testConfig(mr)
	cfg.Sync.LockBackend = config.LockBackendRedsync
	cfg.Redis.LockAddrs = []string{lockNode.Addr()}
	app := build(t, cfg, mr)
	ctx := context.Background()

	// Given: 数据节点上的哈希已预热，锁在另一个节点上被持有
	mr.HSet("counts:agente:siniestros", "7", "3")
	d, err := app.Registry.Get(aggregates.AgentClaims)
	require.NoError(t, err)
	lease, err := app.Locks.Acquire(ctx, d.Target.LockKey, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)
	defer func() { _ = lease.Release(ctx) }()

	// When
	_, err = app.Service.IncrementWithPolicy(ctx, aggregates.AgentClaims, "7", 1, xcachesync.PolicyNonBlocking)

	// Then: 脚本看不到另一个节点上的锁，因此不能执行
	assert.ErrorIs(t, err, aggregates.ErrPolicyUnavailable)
	assert.Equal(t, "3", mr.HGet("counts:agente:siniestros", "7"))
}

func TestBuild_SeparateLockNodesRejectNonBlockingConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr)
	cfg.Sync.LockBackend = config.LockBackendRedsync
	cfg.Redis.LockAddrs = []string{miniredis.RunT(t).Addr()}
	cfg.Aggregates[aggregates.AgentClaims] = config.AggregateConfig{Policy: "non-blocking"}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	_, err := Build(context.Background(), cfg, nil,
		WithRedisClient(client), WithSource(fakeSource{}), WithObserver(xmetrics.NoopObserver{}))

	assert.ErrorIs(t, err, aggregates.ErrPolicyUnavailable)
}

func TestBuild_RepopulateRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr)
	cfg.Sweeper.RepopulatePerMinute = 1
	app := build(t, cfg, mr)
	ctx := context.Background()

	require.NoError(t, app.Service.Repopulate(ctx, aggregates.AgentPolicies))
	err := app.Service.Repopulate(ctx, aggregates.AgentPolicies)

	assert.ErrorIs(t, err, xcachesync.ErrRateLimited)
}

func TestApp_Close_OwnsClient(t *testing.T) {
	mr := miniredis.RunT(t)
	app, err := Build(context.Background(), testConfig(mr), nil,
		WithSource(fakeSource{}), WithObserver(xmetrics.NoopObserver{}))
	require.NoError(t, err)

	require.NoError(t, app.Close(context.Background()))

	assert.Error(t, app.Redis.Ping(context.Background()).Err())
	assert.NoError(t, app.Close(context.Background()))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := NewLogger(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	defer func() { _ = cleanup() }()

	logger.Debug(context.Background(), "hello")

	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, _, err = NewLogger(config.LogConfig{Format: "xml"}, &buf)
	assert.Error(t, err)
}
