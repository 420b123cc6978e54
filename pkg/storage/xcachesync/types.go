package xcachesync

import (
	"context"

	"github.com/omeyang/aggsync/pkg/distributed/xdlock"
)

// PlaceholderField 空聚合结果写入的占位字段，值为 PlaceholderValue。
const (
	PlaceholderField = "_placeholder"
	PlaceholderValue = "true"

	// DirtyFlagSuffix 默认脏标记 key 后缀。
	DirtyFlagSuffix = ":dirty"
)

// Target 一个缓存 key 及其关联的锁与脏标记。
type Target struct {
	CacheKey string

	// LockKey 为空时使用 "lock:" + CacheKey。
	LockKey string

	// DirtyKey 为空时使用 CacheKey + ":dirty"。
	DirtyKey string
}

// NewTarget 按默认约定创建 Target。
func NewTarget(cacheKey string) Target {
	return Target{CacheKey: cacheKey}
}

func (t Target) lockKey() string {
	if t.LockKey != "" {
		return t.LockKey
	}
	return xdlock.LockKeyFor(t.CacheKey)
}

func (t Target) dirtyKey() string {
	if t.DirtyKey != "" {
		return t.DirtyKey
	}
	return t.CacheKey + DirtyFlagSuffix
}

func (t Target) validate() error {
	if t.CacheKey == "" {
		return ErrEmptyCacheKey
	}
	return nil
}

// Query 权威存储上的分组计数聚合。
type Query struct {
	// Collection 聚合的集合名。
	Collection string

	// Pipeline 聚合管道，由具体 Aggregator 解释。
	Pipeline any

	// IDField 结果文档中的分组字段，默认 "_id"。
	IDField string

	// TotalField 结果文档中的计数字段，默认 "total"。
	TotalField string

	// Limit > 0 时只取前 Limit 条。
	Limit int
}

// Pair 聚合结果中的一行。
type Pair struct {
	ID    string
	Total int64
}

// Aggregator 权威存储的聚合接口。
//
// 返回的 Pair 构成完整快照：未出现的 id 视为 0。
//
//go:generate mockgen -source=types.go -destination=mock_aggregator_test.go -package=xcachesync
type Aggregator interface {
	Aggregate(ctx context.Context, q Query) ([]Pair, error)
}

// AggregatorFunc 函数形式的 Aggregator。
type AggregatorFunc func(ctx context.Context, q Query) ([]Pair, error)

func (f AggregatorFunc) Aggregate(ctx context.Context, q Query) ([]Pair, error) {
	return f(ctx, q)
}
