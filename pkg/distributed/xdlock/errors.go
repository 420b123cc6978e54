package xdlock

import "errors"

var (
	// ErrNotHeld 锁已过期或被其他持有者占用，释放或续期未生效。
	ErrNotHeld = errors.New("xdlock: lock not held by this token")

	// ErrEmptyKey 锁 key 为空或仅含空白。
	ErrEmptyKey = errors.New("xdlock: key must not be empty")

	// ErrKeyTooLong 锁 key 超过 512 字节。
	ErrKeyTooLong = errors.New("xdlock: key exceeds maximum length of 512 bytes")

	// ErrInvalidTTL 锁 TTL 不是正数。
	ErrInvalidTTL = errors.New("xdlock: ttl must be positive")

	// ErrNilClient 传入的存储或客户端为 nil。
	ErrNilClient = errors.New("xdlock: client is nil")
)
