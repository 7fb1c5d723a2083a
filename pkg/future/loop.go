package future

import (
	"context"
	"sync"

	"github.com/marmos91/dittostorage/internal/logger"
)

// Loop is a serial executor: every posted function runs on the goroutine
// executing Run, one at a time, in posting order.
//
// Functions posted after Run has returned are still executed, each on its
// own goroutine but under the same mutex the loop uses, so the one-at-a-time
// guarantee survives shutdown. Late completions (for example a reply that
// must still be sent) are therefore never dropped.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool

	// runMu is held while a posted function executes.
	runMu sync.Mutex
}

// NewLoop creates a loop. Call Run to start processing.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn for execution.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		go l.exec(fn)
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes posted functions until ctx is cancelled, then drains the
// queue and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			pending := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, fn := range pending {
				l.exec(fn)
			}
			return ctx.Err()
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in loop task: %v", r)
		}
	}()
	fn()
}
