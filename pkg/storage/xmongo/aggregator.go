package xmongo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/aggsync/internal/storageopt"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xmetrics"
	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

// 结果文档默认字段。
const (
	DefaultIDField    = "_id"
	DefaultTotalField = "total"
)

var _ xcachesync.Aggregator = (*Aggregator)(nil)

// shared 同一包装器下所有 Aggregator 共享的配置与统计。
type shared struct {
	options  *Options
	detector *storageopt.SlowQueryDetector[SlowQueryInfo]
	queries  storageopt.QueryCounter
}

func newShared(o *Options) *shared {
	return &shared{options: o, detector: newSlowQueryDetector(o)}
}

// Aggregator 在权威数据库上执行聚合管道。
type Aggregator struct {
	db     databaseOperations
	shared *shared
}

// NewAggregator 基于数据库句柄创建独立的 Aggregator。
func NewAggregator(db *mongo.Database, opts ...Option) (*Aggregator, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	return newAggregator(adaptDatabase(db), newShared(applyOptions(opts))), nil
}

func newAggregator(db databaseOperations, s *shared) *Aggregator {
	return &Aggregator{db: db, shared: s}
}

// Aggregate 执行 q.Pipeline 并解码为 (id, total) 行。
func (a *Aggregator) Aggregate(ctx context.Context, q xcachesync.Query) ([]xcachesync.Pair, error) {
	idField := q.IDField
	if idField == "" {
		idField = DefaultIDField
	}
	totalField := q.TotalField
	if totalField == "" {
		totalField = DefaultTotalField
	}

	var pairs []xcachesync.Pair
	err := a.run(ctx, "aggregate", q, func(ctx context.Context, cursor *mongo.Cursor) (int, error) {
		for cursor.Next(ctx) {
			var doc bson.M
			if err := cursor.Decode(&doc); err != nil {
				return 0, err
			}
			rawID, ok := lookup(doc, idField)
			if !ok {
				return 0, fmt.Errorf("%w: %s", ErrMissingField, idField)
			}
			if rawID == nil {
				a.shared.options.Logger.Debug(ctx, "skip aggregate row with null id",
					xlog.Aggregate(q.Collection))
				continue
			}
			rawTotal, ok := lookup(doc, totalField)
			if !ok {
				return 0, fmt.Errorf("%w: %s", ErrMissingField, totalField)
			}
			total, err := toInt64(rawTotal)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", totalField, err)
			}
			pairs = append(pairs, xcachesync.Pair{ID: stringifyID(rawID), Total: total})
		}
		return len(pairs), cursor.Err()
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// RankedAggregate 执行 q.Pipeline 并返回原始文档，Limit > 0 时截取前 Limit 条。
// 无结果时返回空切片。
func (a *Aggregator) RankedAggregate(ctx context.Context, q xcachesync.Query) ([]bson.M, error) {
	docs := []bson.M{}
	err := a.run(ctx, "ranked_aggregate", q, func(ctx context.Context, cursor *mongo.Cursor) (int, error) {
		if err := cursor.All(ctx, &docs); err != nil {
			return 0, err
		}
		return len(docs), nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

type decodeFunc func(ctx context.Context, cursor *mongo.Cursor) (int, error)

func (a *Aggregator) run(ctx context.Context, operation string, q xcachesync.Query, decode decodeFunc) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if q.Collection == "" {
		return ErrEmptyCollection
	}
	pipeline, err := withLimit(q.Pipeline, q.Limit)
	if err != nil {
		return err
	}

	o := a.shared.options
	ctx, cancel := storageopt.FallbackTimeout(ctx, o.QueryTimeout)
	defer cancel()

	info := SlowQueryInfo{
		Database:   a.db.Name(),
		Collection: q.Collection,
		Operation:  operation,
		Pipeline:   pipeline,
	}
	start := time.Now()
	rows := 0
	ctx, span := xmetrics.Start(ctx, o.Observer, xmetrics.SpanOptions{
		Component: mongoComponent,
		Operation: operation,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String("db.system", "mongodb"),
			xmetrics.String("db.name", info.Database),
			xmetrics.String("db.collection", info.Collection),
		},
	})
	defer func() {
		info.Duration = time.Since(start)
		a.shared.queries.Record(rows, err)
		attrs := []xmetrics.Attr{xmetrics.Int("db.rows", rows)}
		if a.shared.detector.MaybeSlowQuery(ctx, info, info.Duration) {
			attrs = append(attrs,
				xmetrics.Bool("slow", true),
				xmetrics.Int64("slow_threshold_ms", a.shared.detector.Threshold().Milliseconds()),
			)
		}
		span.End(xmetrics.Result{Err: err, Attrs: attrs})
	}()

	cursor, err := a.db.Collection(q.Collection).Aggregate(ctx, pipeline,
		options.Aggregate().SetAllowDiskUse(o.AllowDiskUse))
	if err != nil {
		return fmt.Errorf("xmongo %s %s.%s: %w", operation, info.Database, info.Collection, err)
	}
	defer func() {
		if closeErr := cursor.Close(ctx); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("xmongo %s close cursor: %w", operation, closeErr))
		}
	}()

	rows, err = decode(ctx, cursor)
	if err != nil {
		return fmt.Errorf("xmongo %s decode %s.%s: %w", operation, info.Database, info.Collection, err)
	}
	return nil
}

// withLimit 在管道末尾追加 $limit。limit <= 0 时原样返回，nil 管道视为空管道。
func withLimit(pipeline any, limit int) (any, error) {
	if pipeline == nil {
		pipeline = mongo.Pipeline{}
	}
	if limit <= 0 {
		return pipeline, nil
	}
	stage := bson.D{{Key: "$limit", Value: limit}}
	switch p := pipeline.(type) {
	case mongo.Pipeline:
		return append(slices.Clone(p), stage), nil
	case []bson.D:
		return append(slices.Clone(p), stage), nil
	case bson.A:
		return append(slices.Clone(p), stage), nil
	case []any:
		return append(slices.Clone(p), stage), nil
	case []bson.M:
		return append(slices.Clone(p), bson.M{"$limit": limit}), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidPipeline, pipeline)
	}
}
