package xcachesync

import (
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/aggsync/pkg/resilience/xretry"
)

var (
	// ErrCacheUnavailable 等锁超过 MaxWait，缓存暂时不可用。
	ErrCacheUnavailable = errors.New("xcachesync: cache temporarily unavailable")

	// ErrAggregateFailed 权威存储聚合失败。此时锁已释放，缓存 key 保持不存在。
	ErrAggregateFailed = errors.New("xcachesync: aggregate failed")

	// ErrComputeFailed 单值计算失败。
	ErrComputeFailed = errors.New("xcachesync: compute failed")

	// ErrRateLimited 强制重算超过限流配额。
	ErrRateLimited = errors.New("xcachesync: repopulate rate limited")

	ErrNilStore      = errors.New("xcachesync: store is nil")
	ErrNilLocker     = errors.New("xcachesync: lock manager is nil")
	ErrNilAggregator = errors.New("xcachesync: aggregator is nil")
	ErrNilWarmer     = errors.New("xcachesync: warmer is nil")
	ErrNilCompute    = errors.New("xcachesync: compute function is nil")
	ErrEmptyCacheKey = errors.New("xcachesync: cache key is empty")
	ErrEmptyField    = errors.New("xcachesync: hash field is empty")
	ErrZeroDelta     = errors.New("xcachesync: increment delta is zero")
	ErrInvalidPolicy = errors.New("xcachesync: invalid increment policy")
)

// UnavailableError 等锁超时。
//
// 同时满足 errors.Is(err, ErrCacheUnavailable) 与 errors.Is(err, xretry.ErrWaitTimeout)。
type UnavailableError struct {
	Key    string
	Waited time.Duration
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("xcachesync: cache %q temporarily unavailable after waiting %s", e.Key, e.Waited.Round(time.Millisecond))
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrCacheUnavailable || target == xretry.ErrWaitTimeout //nolint:errorlint // sentinel 比较
}

// IsUnavailable 是否为等锁超时。
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCacheUnavailable)
}
