package xcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := New(client)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return mr, store
}

func TestNew_NilClient(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestStore_StringOperations(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	// Given
	require.NoError(t, store.Set(ctx, "ranking:top", `[1,2]`, 0))

	// When
	v, found, err := store.Get(ctx, "ranking:top")

	// Then
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[1,2]`, v)
	assert.Equal(t, time.Duration(0), mr.TTL("ranking:top"))

	_, found, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := store.Exists(ctx, "ranking:top")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := store.Del(ctx, "ranking:top", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_Set_NegativeTTLMeansNoExpiry(t *testing.T) {
	mr, store := newTestStore(t)
	require.NoError(t, store.Set(context.Background(), "k", "v", -time.Second))
	assert.Equal(t, time.Duration(0), mr.TTL("k"))
}

func TestStore_SetNX_OnlyFirstWins(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "lock:a", "t1", 40*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "lock:a", "t2", 40*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := mr.Get("lock:a")
	assert.Equal(t, "t1", got)
	assert.Equal(t, 40*time.Second, mr.TTL("lock:a"))
}

func TestStore_HashOperations(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.HSet(ctx, "counts:a", map[string]any{"A1": 3, "A2": 1}))
	n, err := store.HIncrBy(ctx, "counts:a", "A1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	fields, err := store.HGetAll(ctx, "counts:a")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A1": "5", "A2": "1"}, fields)

	assert.ErrorIs(t, store.HSet(ctx, "counts:a", nil), ErrEmptyFields)
}

func TestStore_ExpireAndTTL(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	mr.HSet("counts:a", "A1", "1")

	ok, err := store.Expire(ctx, "counts:a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := store.TTL(ctx, "counts:a")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	_, err = store.Expire(ctx, "counts:a", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestStore_ReplaceHash_ReplacesAtomically(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	// Given 旧数据与脏标记
	mr.HSet("counts:a", "stale", "9")
	require.NoError(t, mr.Set("counts:a:dirty", "1"))

	// When
	err := store.ReplaceHash(ctx, "counts:a", map[string]any{"A1": int64(3)}, 0, "counts:a:dirty", "")

	// Then
	require.NoError(t, err)
	keys, err := mr.HKeys("counts:a")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, keys)
	assert.Equal(t, "3", mr.HGet("counts:a", "A1"))
	assert.False(t, mr.Exists("counts:a:dirty"))
	assert.Equal(t, time.Duration(0), mr.TTL("counts:a"))
}

func TestStore_ReplaceHash_WithTTL(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceHash(ctx, "counts:a", map[string]any{"_placeholder": "true"}, 5*time.Minute))
	assert.Equal(t, 5*time.Minute, mr.TTL("counts:a"))

	mr.FastForward(5 * time.Minute)
	assert.False(t, mr.Exists("counts:a"))

	assert.ErrorIs(t, store.ReplaceHash(ctx, "counts:a", map[string]any{}, 0), ErrEmptyFields)
}

func TestStore_CompareAndDelete(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("lock:a", "mine"))
	mr.SetTTL("lock:a", 40*time.Second)

	// 不匹配：不删除，TTL 不变
	deleted, err := store.CompareAndDelete(ctx, "lock:a", "other")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, mr.Exists("lock:a"))
	assert.Equal(t, 40*time.Second, mr.TTL("lock:a"))

	deleted, err = store.CompareAndDelete(ctx, "lock:a", "mine")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists("lock:a"))

	deleted, err = store.CompareAndDelete(ctx, "lock:a", "mine")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStore_CompareAndExpire(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("lock:a", "mine"))
	mr.SetTTL("lock:a", 10*time.Second)

	ok, err := store.CompareAndExpire(ctx, "lock:a", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL("lock:a"))

	ok, err = store.CompareAndExpire(ctx, "lock:a", "mine", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("lock:a"))

	_, err = store.CompareAndExpire(ctx, "lock:a", "mine", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestStore_IncrementUnlessLocked(t *testing.T) {
	req := IncrementRequest{
		Key:      "counts:a",
		Field:    "A1",
		Delta:    1,
		LockKey:  "lock:counts:a",
		DirtyKey: "counts:a:dirty",
	}

	t.Run("Applied", func(t *testing.T) {
		mr, store := newTestStore(t)
		mr.HSet("counts:a", "A1", "4")

		v, status, err := store.IncrementUnlessLocked(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, IncrementApplied, status)
		assert.Equal(t, int64(5), v)
		assert.False(t, mr.Exists("counts:a:dirty"))
	})

	t.Run("DecrementToZeroIsApplied", func(t *testing.T) {
		mr, store := newTestStore(t)
		mr.HSet("counts:a", "A1", "1")

		dec := req
		dec.Delta = -1
		v, status, err := store.IncrementUnlessLocked(context.Background(), dec)
		require.NoError(t, err)
		assert.Equal(t, IncrementApplied, status)
		assert.Equal(t, int64(0), v)
	})

	t.Run("Locked", func(t *testing.T) {
		mr, store := newTestStore(t)
		mr.HSet("counts:a", "A1", "4")
		require.NoError(t, mr.Set("lock:counts:a", "token"))

		v, status, err := store.IncrementUnlessLocked(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, IncrementLocked, status)
		assert.Equal(t, int64(-1), v)
		assert.Equal(t, "4", mr.HGet("counts:a", "A1"))
		dirty, _ := mr.Get("counts:a:dirty")
		assert.Equal(t, "1", dirty)
	})

	t.Run("FieldMissing", func(t *testing.T) {
		mr, store := newTestStore(t)
		mr.HSet("counts:a", "A2", "4")

		v, status, err := store.IncrementUnlessLocked(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, IncrementMissing, status)
		assert.Equal(t, int64(0), v)
		assert.Empty(t, mr.HGet("counts:a", "A1"))
		assert.True(t, mr.Exists("counts:a:dirty"))
	})

	t.Run("MissingGuardKeys", func(t *testing.T) {
		_, store := newTestStore(t)
		_, _, err := store.IncrementUnlessLocked(context.Background(), IncrementRequest{Key: "k", Field: "f"})
		assert.ErrorIs(t, err, ErrEmptyKey)
	})
}

func TestIncrementStatus_String(t *testing.T) {
	assert.Equal(t, "locked", IncrementLocked.String())
	assert.Equal(t, "missing", IncrementMissing.String())
	assert.Equal(t, "applied", IncrementApplied.String())
	assert.Equal(t, "unknown", IncrementStatus(7).String())
}

func TestStore_Validation(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Exists(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = store.Del(ctx)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = store.Del(ctx, "a", "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestStore_Close(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	assert.NotNil(t, store.Client())

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Close(), ErrClosed)

	_, err = store.Exists(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.ReplaceHash(context.Background(), "k", map[string]any{"a": 1}, 0), ErrClosed)
}

func TestStore_RedisDown_ReturnsError(t *testing.T) {
	mr, store := newTestStore(t)
	mr.Close()

	_, err := store.Exists(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrClosed))
}
