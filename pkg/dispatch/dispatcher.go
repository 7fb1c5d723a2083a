package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/metrics"
)

// Config wires a Dispatcher to its collaborators.
type Config struct {
	Broker   CredentialBroker
	Resolver PeerIdentityResolver

	// Loop runs all handler transitions. The caller runs it.
	Loop *future.Loop

	// Context becomes AuthContext.Context for every request. It should live
	// as long as the service, since transfer jobs outlive the request that
	// started them.
	Context context.Context

	// Metrics is optional.
	Metrics metrics.RequestMetrics
}

// Dispatcher owns the in-flight handlers, keyed by a numeric handle.
type Dispatcher struct {
	broker   CredentialBroker
	resolver PeerIdentityResolver
	loop     *future.Loop
	ctx      context.Context
	metrics  metrics.RequestMetrics

	mu           sync.Mutex
	nextID       uint64
	inflight     map[uint64]*Handler
	lastActivity time.Time
	drained      chan struct{}
}

func New(cfg Config) *Dispatcher {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopRequestMetrics()
	}
	return &Dispatcher{
		broker:       cfg.Broker,
		resolver:     cfg.Resolver,
		loop:         cfg.Loop,
		ctx:          cfg.Context,
		metrics:      cfg.Metrics,
		inflight:     make(map[uint64]*Handler),
		lastActivity: time.Now(),
	}
}

// Submit registers a handler for req and starts it on the loop. It may be
// called from any goroutine and returns the handler's handle.
func (d *Dispatcher) Submit(req Request) uint64 {
	d.mu.Lock()
	d.nextID++
	h := &Handler{id: d.nextID, d: d, req: req, started: time.Now()}
	d.inflight[h.id] = h
	d.lastActivity = h.started
	d.mu.Unlock()

	d.metrics.RecordRequestStart(req.Method)
	logger.Debug("[%d] %s from %s", h.id, req.Method, req.Sender)

	d.loop.Post(h.begin)
	return h.id
}

func (d *Dispatcher) finished(h *Handler) {
	kind := ""
	if h.reply.Err != nil {
		kind = strings.TrimSuffix(strings.TrimPrefix(h.reply.Err.Name, ErrorPrefix), "Exception")
	}
	d.metrics.RecordRequestEnd(h.req.Method)
	d.metrics.RecordRequest(h.req.Method, time.Since(h.started), kind)

	d.mu.Lock()
	delete(d.inflight, h.id)
	d.lastActivity = time.Now()
	if len(d.inflight) == 0 && d.drained != nil {
		close(d.drained)
		d.drained = nil
	}
	d.mu.Unlock()
}

// InFlight returns the number of requests that have not been answered.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// LastActivity returns when a request last arrived or completed.
func (d *Dispatcher) LastActivity() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastActivity
}

// Touch records activity that did not go through Submit.
func (d *Dispatcher) Touch() {
	d.mu.Lock()
	d.lastActivity = time.Now()
	d.mu.Unlock()
}

// Wait blocks until no request is in flight or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	for {
		d.mu.Lock()
		if len(d.inflight) == 0 {
			d.mu.Unlock()
			return nil
		}
		if d.drained == nil {
			d.drained = make(chan struct{})
		}
		ch := d.drained
		d.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
