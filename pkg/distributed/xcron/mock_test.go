package xcron

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errLockService = errors.New("lock service down")

// fakeLocker 可编排的 Locker。
type fakeLocker struct {
	held     bool
	err      error
	renewErr error

	mu       sync.Mutex
	tryCalls []string
	ttls     []time.Duration
	handles  []*fakeHandle
}

func (l *fakeLocker) TryLock(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tryCalls = append(l.tryCalls, key)
	l.ttls = append(l.ttls, ttl)
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, nil
	}
	h := &fakeHandle{key: key, renewErr: l.renewErr}
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLocker) lastHandle() *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return nil
	}
	return l.handles[len(l.handles)-1]
}

type fakeHandle struct {
	key      string
	renewErr error
	renews   atomic.Int32
	unlocks  atomic.Int32
}

func (h *fakeHandle) Unlock(context.Context) error {
	h.unlocks.Add(1)
	return nil
}

func (h *fakeHandle) Renew(context.Context, time.Duration) error {
	h.renews.Add(1)
	return h.renewErr
}

func (h *fakeHandle) Key() string { return h.key }
