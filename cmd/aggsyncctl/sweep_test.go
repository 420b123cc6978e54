package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/aggsync/internal/bootstrap"
	"github.com/omeyang/aggsync/internal/config"
	"github.com/omeyang/aggsync/internal/sweeper"
	"github.com/omeyang/aggsync/pkg/config/xconf"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

type noopSweep struct{}

func (noopSweep) Sweep(context.Context) (xcachesync.SweepReport, error) {
	return xcachesync.SweepReport{}, nil
}

func newReloadEnv(t *testing.T) (*env, *sweeper.Sweeper, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, cleanup, err := bootstrap.NewLogger(config.LogConfig{Level: "info"}, &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })
	sw, err := sweeper.New(noopSweep{}, "@every 1m")
	require.NoError(t, err)
	return &env{logger: logger}, sw, &buf
}

func TestReloadHandler_AppliesLevelAndSchedule(t *testing.T) {
	e, sw, _ := newReloadEnv(t)
	src, err := xconf.NewFromBytes([]byte("log:\n  level: debug\nsweeper:\n  schedule: \"@every 5m\"\n"), xconf.FormatYAML)
	require.NoError(t, err)

	reloadHandler(e, sw, false, false)(src, nil)

	assert.Equal(t, xlog.LevelDebug, e.logger.GetLevel())
	assert.Equal(t, "@every 5m", sw.Schedule())
}

func TestReloadHandler_PinnedFlags(t *testing.T) {
	e, sw, _ := newReloadEnv(t)
	src, err := xconf.NewFromBytes([]byte("log:\n  level: debug\nsweeper:\n  schedule: \"@every 5m\"\n"), xconf.FormatYAML)
	require.NoError(t, err)

	reloadHandler(e, sw, true, true)(src, nil)

	assert.Equal(t, xlog.LevelInfo, e.logger.GetLevel())
	assert.Equal(t, "@every 1m", sw.Schedule())
}

func TestReloadHandler_KeepsPreviousOnError(t *testing.T) {
	e, sw, buf := newReloadEnv(t)

	reloadHandler(e, sw, false, false)(nil, errors.New("yaml: line 2: did not find expected key"))
	assert.Contains(t, buf.String(), "config reload failed")

	src, err := xconf.NewFromBytes([]byte("sweeper:\n  schedule: sometimes\n"), xconf.FormatYAML)
	require.NoError(t, err)
	reloadHandler(e, sw, false, false)(src, nil)

	assert.Contains(t, buf.String(), "reloaded config invalid")
	assert.Equal(t, "@every 1m", sw.Schedule())
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer

	printReport(&buf, xcachesync.SweepReport{
		Checked:     2,
		Repopulated: []string{"agent_claims"},
		Failed:      map[string]error{"agent_policies": errors.New("mongo timeout")},
	})

	assert.Contains(t, buf.String(), "checked=2 repopulated=[agent_claims] rate_limited=[]")
	assert.Contains(t, buf.String(), "failed agent_policies: mongo timeout")
}
