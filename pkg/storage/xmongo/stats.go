package xmongo

// Stats 包装器统计信息。
type Stats struct {
	PingCount   int64
	PingErrors  int64
	SlowQueries int64

	// Aggregates 聚合执行次数，AggregateErrors 为其中失败次数。
	Aggregates      int64
	AggregateErrors int64

	// Rows 成功聚合返回的总行数。
	Rows int64

	Pool PoolStats
}

// PoolStats 连接池状态。
//
// driver v2 不暴露连接池明细，InUseConnections 取自 NumberSessionsInProgress，
// 即活跃会话数。
type PoolStats struct {
	InUseConnections int
}
