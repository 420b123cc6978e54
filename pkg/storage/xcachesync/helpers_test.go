package xcachesync

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/aggsync/pkg/distributed/xdlock"
	"github.com/omeyang/aggsync/pkg/storage/xcache"
)

const testKey = "counts:agente:polizas"

var testQuery = Query{Collection: "polizas", IDField: "_id", TotalField: "total"}

type fixture struct {
	mr    *miniredis.Miniredis
	store xcache.Store
	locks xdlock.Manager
	agg   *MockAggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store, err := xcache.New(client)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	locks, err := xdlock.NewRedisManager(store)
	require.NoError(t, err)

	return &fixture{
		mr:    mr,
		store: store,
		locks: locks,
		agg:   NewMockAggregator(gomock.NewController(t)),
	}
}

// fastOptions 缩短轮询间隔与等待上限。
func fastOptions(extra ...Option) []Option {
	return append([]Option{
		WithPollInterval(5 * time.Millisecond),
		WithMaxWait(2 * time.Second),
		WithLockTTL(5 * time.Second),
	}, extra...)
}

func (f *fixture) warmer(t *testing.T, opts ...Option) *Warmer {
	t.Helper()
	w, err := NewWarmer(f.store, f.locks, f.agg, fastOptions(opts...)...)
	require.NoError(t, err)
	return w
}

// holdLock 模拟其他进程持有锁。
func (f *fixture) holdLock(t *testing.T, cacheKey string, ttl time.Duration) {
	t.Helper()
	lockKey := xdlock.LockKeyFor(cacheKey)
	require.NoError(t, f.mr.Set(lockKey, "other-process"))
	f.mr.SetTTL(lockKey, ttl)
}
