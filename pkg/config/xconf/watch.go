package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 连续变更合并为一次重载的窗口。
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc 每次重载后调用，err 非 nil 表示重载失败且旧配置仍生效。
type ReloadFunc func(cfg Config, err error)

// Watcher 监视配置文件并自动重载。
type Watcher struct {
	cfg      Config
	fs       *fsnotify.Watcher
	onReload ReloadFunc
	debounce time.Duration
}

// WatchOption 监视器选项。
type WatchOption func(*Watcher)

// WithDebounce 非正值被忽略。
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watch 为从文件创建的 cfg 创建监视器，调用 Run 开始监视。
func Watch(cfg Config, onReload ReloadFunc, opts ...WatchOption) (*Watcher, error) {
	if cfg == nil || cfg.Path() == "" {
		return nil, ErrNotReloadable
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: create watcher: %w", err)
	}
	dir := filepath.Dir(cfg.Path())
	if err := fs.Add(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("xconf: watch %s: %w", dir, err), fs.Close())
	}

	w := &Watcher{cfg: cfg, fs: fs, onReload: onReload, debounce: DefaultDebounce}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run 阻塞直到 ctx 取消，返回前关闭底层 watcher，不再触发回调。
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fs.Close() }()

	name := filepath.Base(w.cfg.Path())
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.notify(w.cfg.Reload())

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.notify(fmt.Errorf("xconf: watch: %w", err))
		}
	}
}

func (w *Watcher) notify(err error) {
	if w.onReload != nil {
		w.onReload(w.cfg, err)
	}
}
