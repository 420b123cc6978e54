package xmongo

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// mockClientOps 实现 clientOperations 接口
type mockClientOps struct {
	pingErr            error
	pingCount          int
	disconnectErr      error
	disconnected       bool
	sessionsInProgress int
}

func (m *mockClientOps) Ping(context.Context, *readpref.ReadPref) error {
	m.pingCount++
	return m.pingErr
}

func (m *mockClientOps) Disconnect(context.Context) error {
	m.disconnected = true
	return m.disconnectErr
}

func (m *mockClientOps) NumberSessionsInProgress() int {
	return m.sessionsInProgress
}

// mockDatabase 按集合名返回 mockCollection
type mockDatabase struct {
	name        string
	collections map[string]*mockCollection
}

func newMockDatabase(name string) *mockDatabase {
	return &mockDatabase{name: name, collections: make(map[string]*mockCollection)}
}

func (d *mockDatabase) Name() string {
	return d.name
}

func (d *mockDatabase) Collection(name string) collectionOperations {
	c, ok := d.collections[name]
	if !ok {
		c = &mockCollection{name: name}
		d.collections[name] = c
	}
	return c
}

func (d *mockDatabase) with(name string, docs ...any) *mockCollection {
	c := &mockCollection{name: name, docs: docs}
	d.collections[name] = c
	return c
}

// mockCollection 使用 mongo.NewCursorFromDocuments 返回可解码的 cursor
type mockCollection struct {
	name      string
	docs      []any
	aggErr    error
	cursorErr error

	mu        sync.Mutex
	pipelines []any
	opts      []options.Lister[options.AggregateOptions]
}

func (c *mockCollection) Aggregate(_ context.Context, pipeline any, opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error) {
	c.mu.Lock()
	c.pipelines = append(c.pipelines, pipeline)
	c.opts = append(c.opts, opts...)
	c.mu.Unlock()
	if c.aggErr != nil {
		return nil, c.aggErr
	}
	return mongo.NewCursorFromDocuments(c.docs, c.cursorErr, nil)
}

func (c *mockCollection) Name() string {
	return c.name
}

func (c *mockCollection) lastPipeline() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pipelines) == 0 {
		return nil
	}
	return c.pipelines[len(c.pipelines)-1]
}

var (
	errMockPing       = errors.New("mock ping error")
	errMockDisconnect = errors.New("mock disconnect error")
	errMockAggregate  = errors.New("mock aggregate error")
)
