package xrun

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGroup_Empty(t *testing.T) {
	g, _ := NewGroup(context.Background())
	if err := g.Wait(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestGroup_ServiceError(t *testing.T) {
	expected := errors.New("sweep failed")

	g, _ := NewGroup(context.Background())
	g.Go("sweeper", func(context.Context) error { return expected })

	if err := g.Wait(); !errors.Is(err, expected) {
		t.Errorf("expected %v, got %v", expected, err)
	}
}

func TestGroup_FirstExitStopsOthers(t *testing.T) {
	var stopped atomic.Bool

	g, ctx := NewGroup(context.Background())
	g.Go("watcher", func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	})
	g.Go("once", func(context.Context) error { return nil })

	if err := g.Wait(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if !stopped.Load() {
		t.Error("watcher was not cancelled")
	}
	if ctx.Err() == nil {
		t.Error("group context not cancelled")
	}
}

func TestGroup_NilFunc(t *testing.T) {
	g, _ := NewGroup(context.Background())
	g.Go("nil", nil)

	if err := g.Wait(); !errors.Is(err, ErrNilFunc) {
		t.Errorf("expected ErrNilFunc, got %v", err)
	}
}

func TestGroup_CancelWithCause(t *testing.T) {
	cause := errors.New("config removed")

	g, _ := NewGroup(context.Background())
	g.Go("sweeper", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	g.Cancel(cause)

	if err := g.Wait(); !errors.Is(err, cause) {
		t.Errorf("expected %v, got %v", cause, err)
	}
}

func TestGroup_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	g, _ := NewGroup(parent)
	g.Go("sweeper", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()

	if err := g.Wait(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestRun_Signal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	ctx := withTestSigChan(context.Background(), sigCh)

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	sigCh <- syscall.SIGTERM

	select {
	case err := <-done:
		var sigErr *SignalError
		if !errors.As(err, &sigErr) || sigErr.Signal != syscall.SIGTERM {
			t.Fatalf("expected SIGTERM SignalError, got %v", err)
		}
		if !errors.Is(err, ErrSignal) {
			t.Error("expected errors.Is(err, ErrSignal)")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after signal")
	}
}

func TestRun_ServiceReturns(t *testing.T) {
	err := RunWithOptions(context.Background(), []Option{WithName("cli"), WithSignals(syscall.SIGUSR1)},
		func(context.Context) error { return nil })

	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestRun_WithoutSignalHandler(t *testing.T) {
	expected := errors.New("boom")

	err := RunWithOptions(context.Background(), []Option{WithoutSignalHandler()},
		func(context.Context) error { return expected })

	if !errors.Is(err, expected) {
		t.Errorf("expected %v, got %v", expected, err)
	}
}

func TestSignalError(t *testing.T) {
	if got := (&SignalError{}).Error(); got != "received signal <nil>" {
		t.Errorf("unexpected message %q", got)
	}
	if got := (&SignalError{Signal: syscall.SIGINT}).Error(); got != "received signal interrupt" {
		t.Errorf("unexpected message %q", got)
	}
}
