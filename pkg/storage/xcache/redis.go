package xcache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
)

const componentName = "xcache"

type redisStore struct {
	client   redis.UniversalClient
	observer xmetrics.Observer
	logger   xlog.Logger
	closed   atomic.Bool
}

// do 统一处理关闭检查、key 校验与观测。
func (s *redisStore) do(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	ctx, span := xmetrics.Start(ctx, s.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: op,
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String(xmetrics.AttrCacheKey, key)},
	})
	err := fn(ctx)
	span.End(xmetrics.Result{Err: err})
	return err
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.do(ctx, "exists", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.Exists(ctx, key).Result()
		return err
	})
	return n > 0, err
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.do(ctx, "get", key, func(ctx context.Context) error {
		v, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	return value, found, err
}

func (s *redisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.do(ctx, "set", key, func(ctx context.Context) error {
		return s.client.Set(ctx, key, value, normalizeTTL(ttl)).Err()
	})
}

func (s *redisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	var ok bool
	err := s.do(ctx, "setnx", key, func(ctx context.Context) error {
		var err error
		ok, err = s.client.SetNX(ctx, key, value, normalizeTTL(ttl)).Result()
		return err
	})
	return ok, err
}

func (s *redisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, ErrEmptyKey
	}
	for _, k := range keys {
		if k == "" {
			return 0, ErrEmptyKey
		}
	}
	var n int64
	err := s.do(ctx, "del", keys[0], func(ctx context.Context) error {
		var err error
		n, err = s.client.Del(ctx, keys...).Result()
		return err
	})
	return n, err
}

func (s *redisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := s.do(ctx, "hgetall", key, func(ctx context.Context) error {
		var err error
		fields, err = s.client.HGetAll(ctx, key).Result()
		return err
	})
	return fields, err
}

func (s *redisStore) HSet(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return ErrEmptyFields
	}
	return s.do(ctx, "hset", key, func(ctx context.Context) error {
		return s.client.HSet(ctx, key, fields).Err()
	})
}

func (s *redisStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	var n int64
	err := s.do(ctx, "hincrby", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.HIncrBy(ctx, key, field, delta).Result()
		return err
	})
	return n, err
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	var ok bool
	err := s.do(ctx, "expire", key, func(ctx context.Context) error {
		var err error
		ok, err = s.client.Expire(ctx, key, ttl).Result()
		return err
	})
	return ok, err
}

func (s *redisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	var d time.Duration
	err := s.do(ctx, "ttl", key, func(ctx context.Context) error {
		var err error
		d, err = s.client.TTL(ctx, key).Result()
		return err
	})
	return d, err
}

func (s *redisStore) ReplaceHash(ctx context.Context, key string, fields map[string]any, ttl time.Duration, alsoDelete ...string) error {
	if len(fields) == 0 {
		return ErrEmptyFields
	}
	dels := make([]string, 0, 1+len(alsoDelete))
	dels = append(dels, key)
	for _, k := range alsoDelete {
		if k != "" {
			dels = append(dels, k)
		}
	}

	err := s.do(ctx, "replace_hash", key, func(ctx context.Context) error {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, dels...)
			pipe.HSet(ctx, key, fields)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			return nil
		})
		return err
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Warn(ctx, "xcache: replace hash failed", xlog.Key(key), xlog.Err(err))
	}
	return err
}

func (s *redisStore) CompareAndDelete(ctx context.Context, key, token string) (bool, error) {
	var deleted bool
	err := s.do(ctx, "compare_and_delete", key, func(ctx context.Context) error {
		n, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, token).Int64()
		if err != nil {
			return err
		}
		deleted = n == 1
		return nil
	})
	return deleted, err
}

func (s *redisStore) CompareAndExpire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	var ok bool
	err := s.do(ctx, "compare_and_expire", key, func(ctx context.Context) error {
		n, err := compareAndExpireScript.Run(ctx, s.client, []string{key}, token, ttl.Milliseconds()).Int64()
		if err != nil {
			return err
		}
		ok = n == 1
		return nil
	})
	return ok, err
}

func (s *redisStore) IncrementUnlessLocked(ctx context.Context, req IncrementRequest) (int64, IncrementStatus, error) {
	if req.LockKey == "" || req.DirtyKey == "" {
		return 0, IncrementMissing, ErrEmptyKey
	}
	var (
		value  int64
		status IncrementStatus
	)
	err := s.do(ctx, "increment_unless_locked", req.Key, func(ctx context.Context) error {
		reply, err := incrementUnlessLockedScript.Run(ctx, s.client,
			[]string{req.Key, req.LockKey, req.DirtyKey}, req.Field, req.Delta).Int64Slice()
		if err != nil {
			return err
		}
		if len(reply) != 2 {
			return fmt.Errorf("%w: %v", ErrUnexpectedReply, reply)
		}
		status = IncrementStatus(reply[0])
		switch status {
		case IncrementApplied:
			value = reply[1]
		case IncrementLocked, IncrementMissing:
			value = int64(status)
		default:
			return fmt.Errorf("%w: status %d", ErrUnexpectedReply, reply[0])
		}
		return nil
	})
	return value, status, err
}

func (s *redisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *redisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return s.client.Close()
}

// normalizeTTL 把负值收敛为 0，避免 go-redis 把 -1 解释为 KEEPTTL。
func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
