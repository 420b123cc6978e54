package xcache

import "errors"

var (
	// ErrNilClient 表示传入的客户端为 nil。
	ErrNilClient = errors.New("xcache: nil client")

	// ErrClosed 表示 Store 已关闭。
	ErrClosed = errors.New("xcache: store closed")

	// ErrEmptyKey 表示 key 为空字符串。
	ErrEmptyKey = errors.New("xcache: empty key")

	// ErrEmptyFields 表示写入 Hash 时没有任何字段。
	ErrEmptyFields = errors.New("xcache: empty hash fields")

	// ErrInvalidTTL 表示 Expire 的 TTL 不是正数。
	ErrInvalidTTL = errors.New("xcache: ttl must be positive")

	// ErrUnexpectedReply 表示 Lua 脚本返回了无法识别的结果。
	ErrUnexpectedReply = errors.New("xcache: unexpected script reply")
)
