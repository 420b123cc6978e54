package xdlock_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/aggsync/pkg/distributed/xdlock"
	"github.com/omeyang/aggsync/pkg/storage/xcache"
)

type backend struct {
	name string
	new  func(t *testing.T, client redis.UniversalClient) xdlock.Manager
}

var backends = []backend{
	{"Redis", func(t *testing.T, client redis.UniversalClient) xdlock.Manager {
		store, err := xcache.New(client)
		require.NoError(t, err)
		m, err := xdlock.NewRedisManager(store)
		require.NoError(t, err)
		return m
	}},
	{"Redsync", func(t *testing.T, client redis.UniversalClient) xdlock.Manager {
		m, err := xdlock.NewRedsyncManager([]redis.UniversalClient{client})
		require.NoError(t, err)
		return m
	}},
}

func setup(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockKeyFor(t *testing.T) {
	assert.Equal(t, "lock:counts:agente:polizas", xdlock.LockKeyFor("counts:agente:polizas"))
}

func TestManager_Acquire_SecondCallerGetsNil(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			mr, client := setup(t)
			m := b.new(t, client)
			ctx := context.Background()

			// Given
			lease, err := m.Acquire(ctx, "lock:a", 40*time.Second)
			require.NoError(t, err)
			require.NotNil(t, lease)

			// When
			other, err := m.Acquire(ctx, "lock:a", 40*time.Second)

			// Then
			require.NoError(t, err)
			assert.Nil(t, other)
			_, err = uuid.Parse(lease.Token)
			assert.NoError(t, err)
			got, _ := mr.Get("lock:a")
			assert.Equal(t, lease.Token, got)
			assert.Equal(t, "lock:a", lease.Key)
			assert.Equal(t, 40*time.Second, lease.TTL)
			assert.False(t, lease.AcquiredAt.IsZero())
		})
	}
}

func TestManager_Release_TokenMismatchIsNoop(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			mr, client := setup(t)
			m := b.new(t, client)
			ctx := context.Background()

			lease, err := m.Acquire(ctx, "lock:a", 40*time.Second)
			require.NoError(t, err)
			require.NotNil(t, lease)
			ttlBefore := mr.TTL("lock:a")

			// When
			err = m.Release(ctx, "lock:a", uuid.New().String())

			// Then
			assert.ErrorIs(t, err, xdlock.ErrNotHeld)
			assert.True(t, mr.Exists("lock:a"))
			assert.Equal(t, ttlBefore, mr.TTL("lock:a"))

			require.NoError(t, lease.Release(ctx))
			assert.False(t, mr.Exists("lock:a"))
		})
	}
}

func TestManager_Release_AfterExpiry(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			mr, client := setup(t)
			m := b.new(t, client)
			ctx := context.Background()

			lease, err := m.Acquire(ctx, "lock:a", time.Second)
			require.NoError(t, err)
			require.NotNil(t, lease)

			// 持有者崩溃，TTL 到期后锁自动恢复
			mr.FastForward(2 * time.Second)
			next, err := m.Acquire(ctx, "lock:a", time.Second)
			require.NoError(t, err)
			require.NotNil(t, next)

			// 旧持有者释放不影响新持有者
			assert.ErrorIs(t, lease.Release(ctx), xdlock.ErrNotHeld)
			got, _ := mr.Get("lock:a")
			assert.Equal(t, next.Token, got)
		})
	}
}

func TestManager_Extend(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			mr, client := setup(t)
			m := b.new(t, client)
			ctx := context.Background()

			lease, err := m.Acquire(ctx, "lock:a", 10*time.Second)
			require.NoError(t, err)
			require.NotNil(t, lease)

			require.NoError(t, lease.Extend(ctx, time.Minute))
			assert.Equal(t, time.Minute, lease.TTL)
			assert.Greater(t, mr.TTL("lock:a"), 10*time.Second)

			assert.ErrorIs(t, m.Extend(ctx, "lock:a", "other", time.Minute), xdlock.ErrNotHeld)
		})
	}
}

func TestManager_Acquire_ExactlyOneWinner(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			_, client := setup(t)
			m := b.new(t, client)

			var winners atomic.Int32
			var wg sync.WaitGroup
			for range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					lease, err := m.Acquire(context.Background(), "lock:race", 40*time.Second)
					if err == nil && lease != nil {
						winners.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), winners.Load())
		})
	}
}

func TestManager_Validation(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			_, client := setup(t)
			m := b.new(t, client)
			ctx := context.Background()

			_, err := m.Acquire(ctx, "", time.Second)
			assert.ErrorIs(t, err, xdlock.ErrEmptyKey)
			_, err = m.Acquire(ctx, "   ", time.Second)
			assert.ErrorIs(t, err, xdlock.ErrEmptyKey)
			_, err = m.Acquire(ctx, strings.Repeat("k", 513), time.Second)
			assert.ErrorIs(t, err, xdlock.ErrKeyTooLong)
			_, err = m.Acquire(ctx, "lock:a", 0)
			assert.ErrorIs(t, err, xdlock.ErrInvalidTTL)
			assert.ErrorIs(t, m.Release(ctx, "", "t"), xdlock.ErrEmptyKey)
			assert.ErrorIs(t, m.Extend(ctx, "lock:a", "t", -time.Second), xdlock.ErrInvalidTTL)
		})
	}
}

func TestManager_RedisDown_ReturnsError(t *testing.T) {
	mr, client := setup(t)
	store, err := xcache.New(client)
	require.NoError(t, err)
	m, err := xdlock.NewRedisManager(store)
	require.NoError(t, err)
	mr.Close()

	lease, err := m.Acquire(context.Background(), "lock:a", time.Second)
	assert.Error(t, err)
	assert.Nil(t, lease)
}

func TestNewManager_NilClient(t *testing.T) {
	_, err := xdlock.NewRedisManager(nil)
	assert.ErrorIs(t, err, xdlock.ErrNilClient)

	_, err = xdlock.NewRedsyncManager(nil)
	assert.ErrorIs(t, err, xdlock.ErrNilClient)

	_, err = xdlock.NewRedsyncManager([]redis.UniversalClient{nil})
	assert.ErrorIs(t, err, xdlock.ErrNilClient)
}
