package xmongo

import "errors"

var (
	// ErrNilClient 传入的客户端为 nil。
	ErrNilClient = errors.New("xmongo: nil client")

	// ErrNilDatabase 传入的数据库为 nil。
	ErrNilDatabase = errors.New("xmongo: nil database")

	// ErrNilContext 传入的 context 为 nil。Close 例外，nil 会被替换为 Background。
	ErrNilContext = errors.New("xmongo: context must not be nil")

	// ErrClosed 客户端已关闭。
	ErrClosed = errors.New("xmongo: client closed")

	// ErrEmptyCollection 聚合未指定集合。
	ErrEmptyCollection = errors.New("xmongo: empty collection name")

	// ErrInvalidPipeline 管道类型不支持追加 $limit。
	ErrInvalidPipeline = errors.New("xmongo: unsupported pipeline type")

	// ErrMissingField 结果文档缺少 id 或 total 字段。
	ErrMissingField = errors.New("xmongo: field missing in aggregate result")

	// ErrInvalidTotal total 字段不是数值。
	ErrInvalidTotal = errors.New("xmongo: total is not numeric")
)
