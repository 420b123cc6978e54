package storageopt

import "sync/atomic"

// HealthCounter 健康检查计数器。
type HealthCounter struct {
	pingCount  atomic.Int64
	pingErrors atomic.Int64
}

func (h *HealthCounter) IncPing() {
	h.pingCount.Add(1)
}

func (h *HealthCounter) IncPingError() {
	h.pingErrors.Add(1)
}

func (h *HealthCounter) PingCount() int64 {
	return h.pingCount.Load()
}

func (h *HealthCounter) PingErrors() int64 {
	return h.pingErrors.Load()
}

// SlowQueryCounter 慢查询计数器。
type SlowQueryCounter struct {
	count atomic.Int64
}

func (s *SlowQueryCounter) Inc() {
	s.count.Add(1)
}

func (s *SlowQueryCounter) Count() int64 {
	return s.count.Load()
}

// QueryCounter 查询次数、失败次数与返回行数。
type QueryCounter struct {
	queries atomic.Int64
	errors  atomic.Int64
	rows    atomic.Int64
}

// Record 记录一次查询。err 非 nil 时计为失败，rows 不计入。
func (q *QueryCounter) Record(rows int, err error) {
	q.queries.Add(1)
	if err != nil {
		q.errors.Add(1)
		return
	}
	q.rows.Add(int64(rows))
}

func (q *QueryCounter) Queries() int64 {
	return q.queries.Load()
}

func (q *QueryCounter) Errors() int64 {
	return q.errors.Load()
}

func (q *QueryCounter) Rows() int64 {
	return q.rows.Load()
}
