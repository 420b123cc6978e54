package xlog

import (
	"log/slog"
	"time"
)

// 标准字段名。
const (
	KeyError     = "error"
	KeyDuration  = "duration"
	KeyCount     = "count"
	KeyComponent = "component"
	KeyOperation = "operation"
	KeyCacheKey  = "cache_key"
	KeyLockKey   = "lock_key"
	KeyAggregate = "aggregate"
)

// Err 错误属性，err 为 nil 时返回空属性（被 slog 忽略）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 耗时属性，输出如 "1.5s"。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// Key 缓存 key 属性。
func Key(key string) slog.Attr {
	return slog.String(KeyCacheKey, key)
}

// LockKey 锁 key 属性。
func LockKey(key string) slog.Attr {
	return slog.String(KeyLockKey, key)
}

// Aggregate 聚合名属性。
func Aggregate(name string) slog.Attr {
	return slog.String(KeyAggregate, name)
}
