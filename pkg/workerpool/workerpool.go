// Package workerpool runs blocking work on a fixed set of goroutines and
// hands results back as futures.
package workerpool

import (
	"errors"
	"runtime"
	"sync"

	"github.com/marmos91/dittostorage/pkg/future"
)

// ErrPoolClosed is returned by futures submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Config sizes the pool. Zero values select defaults.
type Config struct {
	// WorkerCount is the number of worker goroutines (default 3 x NumCPU).
	WorkerCount int

	// QueueSize is the number of tasks that may wait for a free worker
	// before Submit blocks (default 1024).
	QueueSize int
}

// Pool is a fixed-size worker pool.
type Pool struct {
	tasks  chan func()
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts a pool.
func New(cfg Config) *Pool {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = runtime.NumCPU() * 3
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1024
	}

	p := &Pool{tasks: make(chan func(), cfg.QueueSize)}
	p.wg.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// post queues task. It reports false once the pool is closed.
func (p *Pool) post(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.tasks <- task
	return true
}

// Close stops accepting work and waits for queued tasks to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Submit runs fn on a pool worker. A panic in fn fails the returned future
// with a *future.PanicError.
func Submit[T any](p *Pool, fn func() (T, error)) *future.Future[T] {
	f, promise := future.New[T]()
	ok := p.post(func() {
		promise.Complete(future.Call(fn))
	})
	if !ok {
		promise.Reject(ErrPoolClosed)
	}
	return f
}
