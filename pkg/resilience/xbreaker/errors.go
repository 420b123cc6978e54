package xbreaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

// BreakerError 包装熔断器拒绝请求的错误，Retryable 返回 false。
type BreakerError struct {
	Err   error
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("breaker %s: %v", e.Name, e.Err)
	}
	return e.Err.Error()
}

func (e *BreakerError) Unwrap() error {
	return e.Err
}

// Retryable 熔断拒绝不应重试。
func (e *BreakerError) Retryable() bool {
	return false
}

// wrapBreakerError 只包装当前熔断器直接返回的 sentinel，状态由错误类型推导。
func wrapBreakerError(err error, name string) error {
	if err == nil {
		return nil
	}
	var be *BreakerError
	if errors.As(err, &be) {
		return err
	}
	if err == gobreaker.ErrOpenState { //nolint:errorlint // 只匹配本熔断器的 sentinel
		return &BreakerError{Err: err, Name: name, State: StateOpen}
	}
	if err == gobreaker.ErrTooManyRequests { //nolint:errorlint // 同上
		return &BreakerError{Err: err, Name: name, State: StateHalfOpen}
	}
	return err
}

// IsOpen 是否为熔断器打开错误。
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState)
}

// IsTooManyRequests 是否为半开状态请求过多错误。
func IsTooManyRequests(err error) bool {
	return errors.Is(err, gobreaker.ErrTooManyRequests)
}

// IsBreakerError 是否为熔断器拒绝请求的错误。
func IsBreakerError(err error) bool {
	return IsOpen(err) || IsTooManyRequests(err)
}
