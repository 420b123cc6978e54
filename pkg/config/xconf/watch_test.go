package xconf

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	// Given
	path := writeFile(t, "aggsync.yaml", "log:\n  level: info\n")
	cfg, err := New(path)
	require.NoError(t, err)

	var mu sync.Mutex
	var reloads int
	var lastErr error
	w, err := Watch(cfg, func(_ Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		reloads++
		lastErr = err
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// When
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	// Then
	require.Eventually(t, func() bool {
		return cfg.Client().String("log.level") == "debug"
	}, 3*time.Second, 20*time.Millisecond)
	mu.Lock()
	assert.GreaterOrEqual(t, reloads, 1)
	assert.NoError(t, lastErr)
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	path := writeFile(t, "aggsync.yaml", "a: 1\n")
	cfg, err := New(path)
	require.NoError(t, err)

	called := make(chan struct{}, 1)
	w, err := Watch(cfg, func(Config, error) { called <- struct{}{} }, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path+".bak", []byte("a: 2\n"), 0o600))

	select {
	case <-called:
		t.Fatal("unrelated file must not trigger reload")
	case <-time.After(200 * time.Millisecond):
	}
	cancel()
	<-done
}

func TestWatch_FromBytes(t *testing.T) {
	cfg, err := NewFromBytes([]byte("a: 1"), FormatYAML)
	require.NoError(t, err)

	_, err = Watch(cfg, nil)

	assert.ErrorIs(t, err, ErrNotReloadable)
}
