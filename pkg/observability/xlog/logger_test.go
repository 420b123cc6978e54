package xlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error(context.Background(), "nothing")
	l.With(Count(1)).Info(context.Background(), "nothing")
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))

	var buf bytes.Buffer
	logger, _, err := New().SetOutput(&buf).Build()
	require.NoError(t, err)
	assert.Same(t, logger, OrDiscard(logger))
}

func TestLogger_NilContext(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New().SetOutput(&buf).Build()
	require.NoError(t, err)

	logger.Info(nil, "nil ctx", Aggregate("agent_policies")) //nolint:staticcheck // 验证 nil ctx 兜底
	assert.Contains(t, buf.String(), "aggregate=agent_policies")
}

func TestNewEnrichHandler(t *testing.T) {
	_, err := NewEnrichHandler(nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	var buf bytes.Buffer
	h, err := NewEnrichHandler(slog.NewTextHandler(&buf, nil))
	require.NoError(t, err)

	slog.New(h).WithGroup("g").With("k", "v").Info("grouped")
	assert.Contains(t, buf.String(), "g.k=v")
	assert.NotContains(t, buf.String(), KeyTraceID)
}
