package xmongo

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/omeyang/aggsync/internal/storageopt"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
)

const mongoComponent = "xmongo"

// Mongo MongoDB 包装器。基础操作请直接使用 Client()。
type Mongo interface {
	// Client 返回底层的 mongo.Client。
	Client() *mongo.Client

	// Health 通过 Ping 检测连接状态。
	Health(ctx context.Context) error

	// Stats 返回健康检查、慢查询与聚合统计。
	Stats() Stats

	// Aggregator 返回指定数据库上的聚合执行器，与包装器共享配置与统计。
	Aggregator(database string) *Aggregator

	// Close 断开连接，重复调用返回 ErrClosed。
	Close(ctx context.Context) error
}

// New 创建 MongoDB 包装器。client 必须是已初始化的 mongo.Client。
func New(client *mongo.Client, opts ...Option) (Mongo, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := applyOptions(opts)
	return &mongoWrapper{
		client:    client,
		clientOps: client,
		options:   o,
		shared:    newShared(o),
	}, nil
}

type mongoWrapper struct {
	client    *mongo.Client
	clientOps clientOperations
	options   *Options
	shared    *shared

	healthCounter storageopt.HealthCounter
	closed        atomic.Bool
}

func (w *mongoWrapper) Client() *mongo.Client {
	return w.client
}

func (w *mongoWrapper) Health(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if w.closed.Load() {
		return ErrClosed
	}

	ctx, span := xmetrics.Start(ctx, w.options.Observer, xmetrics.SpanOptions{
		Component: mongoComponent,
		Operation: "health",
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String("db.system", "mongodb")},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	w.healthCounter.IncPing()

	ctx, cancel := storageopt.HealthContext(ctx, w.options.HealthTimeout)
	defer cancel()

	if err = w.clientOps.Ping(ctx, readpref.Primary()); err != nil {
		w.healthCounter.IncPingError()
		return fmt.Errorf("xmongo health: %w", err)
	}
	return nil
}

func (w *mongoWrapper) Stats() Stats {
	return Stats{
		PingCount:       w.healthCounter.PingCount(),
		PingErrors:      w.healthCounter.PingErrors(),
		SlowQueries:     w.shared.detector.Count(),
		Aggregates:      w.shared.queries.Queries(),
		AggregateErrors: w.shared.queries.Errors(),
		Rows:            w.shared.queries.Rows(),
		Pool:            PoolStats{InUseConnections: w.clientOps.NumberSessionsInProgress()},
	}
}

func (w *mongoWrapper) Aggregator(database string) *Aggregator {
	return newAggregator(adaptDatabase(w.client.Database(database)), w.shared)
}

// Close 断开连接。nil ctx 视为 Background；Disconnect 失败不回滚关闭状态。
func (w *mongoWrapper) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !w.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if err := w.clientOps.Disconnect(ctx); err != nil {
		return fmt.Errorf("xmongo close: %w", err)
	}
	return nil
}
