package xmongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// clientOperations *mongo.Client 实现此接口。
type clientOperations interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
	NumberSessionsInProgress() int
}

// databaseOperations 聚合所需的数据库操作，测试中可注入 mock。
type databaseOperations interface {
	Name() string
	Collection(name string) collectionOperations
}

// collectionOperations *mongo.Collection 实现此接口。
type collectionOperations interface {
	Aggregate(ctx context.Context, pipeline any, opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error)
	Name() string
}

type databaseAdapter struct {
	db *mongo.Database
}

func (a databaseAdapter) Name() string {
	return a.db.Name()
}

func (a databaseAdapter) Collection(name string) collectionOperations {
	return a.db.Collection(name)
}

func adaptDatabase(db *mongo.Database) databaseOperations {
	return databaseAdapter{db: db}
}
