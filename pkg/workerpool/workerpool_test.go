package workerpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_ReturnsResult(t *testing.T) {
	p := New(Config{WorkerCount: 2})
	defer p.Close()

	val, err := Submit(p, func() (int, error) { return 7, nil }).Get()
	require.NoError(t, err)
	assert.Equal(t, 7, val)

	boom := errors.New("boom")
	_, err = Submit(p, func() (int, error) { return 0, boom }).Get()
	assert.ErrorIs(t, err, boom)
}

func TestSubmit_RecoversPanic(t *testing.T) {
	p := New(Config{WorkerCount: 1})
	defer p.Close()

	_, err := Submit(p, func() (struct{}, error) { panic("worker bug") }).Get()
	var pe *future.PanicError
	require.ErrorAs(t, err, &pe)

	// The worker must still be alive.
	val, err := Submit(p, func() (string, error) { return "ok", nil }).Get()
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestSubmit_RunsConcurrently(t *testing.T) {
	p := New(Config{WorkerCount: 4})
	defer p.Close()

	var active, peak int32
	var mu sync.Mutex
	futures := make([]*future.Future[struct{}], 0, 8)
	for i := 0; i < 8; i++ {
		futures = append(futures, Submit(p, func() (struct{}, error) {
			n := atomic.AddInt32(&active, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return struct{}{}, nil
		}))
	}
	for _, f := range futures {
		_, err := f.Get()
		require.NoError(t, err)
	}
	assert.Greater(t, peak, int32(1))
	assert.LessOrEqual(t, peak, int32(4))
}

func TestClose_DrainsAndRejects(t *testing.T) {
	p := New(Config{WorkerCount: 1, QueueSize: 4})

	var ran int32
	for i := 0; i < 3; i++ {
		Submit(p, func() (struct{}, error) {
			atomic.AddInt32(&ran, 1)
			return struct{}{}, nil
		})
	}
	p.Close()
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))

	_, err := Submit(p, func() (int, error) { return 1, nil }).Get()
	assert.ErrorIs(t, err, ErrPoolClosed)

	// Closing twice is harmless.
	p.Close()
}
