package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter serves until stopped, cancelled, or told to exit with err.
type fakeAdapter struct {
	name string
	exit chan error

	once    sync.Once
	stopped chan struct{}
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, exit: make(chan error, 1), stopped: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopped:
		return nil
	case err := <-f.exit:
		return err
	}
}

func (f *fakeAdapter) Stop(context.Context) error {
	f.once.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.name }

func (f *fakeAdapter) wasStopped() bool {
	select {
	case <-f.stopped:
		return true
	default:
		return false
	}
}

func serveAsync(s *Server, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestAddAdapter_DuplicateProtocol(t *testing.T) {
	s := New(0)
	require.NoError(t, s.AddAdapter(newFakeAdapter("D-Bus")))
	assert.Error(t, s.AddAdapter(newFakeAdapter("D-Bus")))
	assert.Len(t, s.Adapters(), 1)
}

func TestServe_NoAdapters(t *testing.T) {
	assert.Error(t, New(0).Serve(context.Background()))
}

func TestServe_ContextCancel(t *testing.T) {
	s := New(time.Second)
	a, b := newFakeAdapter("a"), newFakeAdapter("b")
	require.NoError(t, s.AddAdapter(a))
	require.NoError(t, s.AddAdapter(b))

	ctx, cancel := context.WithCancel(context.Background())
	done := serveAsync(s, ctx)
	cancel()

	assert.ErrorIs(t, waitResult(t, done), context.Canceled)
	assert.True(t, a.wasStopped())
	assert.True(t, b.wasStopped())
}

func TestServe_AdapterFailureStopsOthers(t *testing.T) {
	s := New(time.Second)
	a, b := newFakeAdapter("a"), newFakeAdapter("b")
	require.NoError(t, s.AddAdapter(a))
	require.NoError(t, s.AddAdapter(b))

	done := serveAsync(s, context.Background())
	boom := errors.New("bus connection closed")
	a.exit <- boom

	err := waitResult(t, done)
	assert.ErrorIs(t, err, boom)
	assert.True(t, b.wasStopped())
}

func TestServe_AdapterExitIsCleanShutdown(t *testing.T) {
	s := New(time.Second)
	a, b := newFakeAdapter("a"), newFakeAdapter("b")
	require.NoError(t, s.AddAdapter(a))
	require.NoError(t, s.AddAdapter(b))

	done := serveAsync(s, context.Background())
	a.exit <- nil

	assert.NoError(t, waitResult(t, done))
	assert.True(t, b.wasStopped())
}

func TestServe_OnlyOnce(t *testing.T) {
	s := New(time.Second)
	a := newFakeAdapter("a")
	require.NoError(t, s.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	done := serveAsync(s, ctx)
	cancel()
	waitResult(t, done)

	assert.ErrorIs(t, s.Serve(context.Background()), ErrAlreadyServed)
	assert.Panics(t, func() { _ = s.AddAdapter(newFakeAdapter("late")) })
}
