package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/adapter"
)

// DefaultStopTimeout bounds each adapter's Stop call.
const DefaultStopTimeout = 30 * time.Second

// Server manages the lifecycle of the adapters exposing the provider.
//
// Lifecycle:
//  1. Creation: New()
//  2. Registration: AddAdapter() for each transport
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: context cancellation, an adapter failure, or an adapter
//     exiting on its own stops every adapter
//
// Example usage:
//
//	srv := server.New(cfg.Server.ShutdownTimeout)
//	srv.AddAdapter(dbus.New(busCfg, prov, broker, m))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type Server struct {
	stopTimeout time.Duration

	// mu protects adapters and served.
	mu       sync.Mutex
	adapters []adapter.Adapter
	served   bool
}

// New creates a server. A non-positive stopTimeout uses DefaultStopTimeout.
func New(stopTimeout time.Duration) *Server {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Server{stopTimeout: stopTimeout}
}

// AddAdapter registers an adapter. Each protocol may be registered once.
//
// Panics if a is nil or Serve() has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
	}
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter", protocol)
	return nil
}

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve already called")

// Serve starts all adapters and blocks until they have all stopped.
//
// Returns:
//   - nil if an adapter exited on its own (for example an inactivity
//     timeout) and the others shut down cleanly
//   - ctx.Err() if shutdown was triggered by context cancellation
//   - the first adapter failure otherwise
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	// Buffered so that every adapter can report without blocking.
	exits := make(chan adapterExit, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()
			err := a.Serve(ctx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", a.Protocol())
			case errors.Is(err, context.Canceled) && ctx.Err() != nil:
				logger.Debug("%s adapter stopped gracefully", a.Protocol())
			default:
				logger.Error("%s adapter failed: %v", a.Protocol(), err)
			}
			exits <- adapterExit{protocol: a.Protocol(), err: err}
		}(adp)
	}

	var result error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		result = ctx.Err()

	case exit := <-exits:
		if exit.err != nil && ctx.Err() == nil {
			logger.Error("Adapter %s failed - initiating shutdown of all adapters", exit.protocol)
			result = fmt.Errorf("%s adapter error: %w", exit.protocol, exit.err)
		} else {
			logger.Info("Adapter %s exited - initiating shutdown", exit.protocol)
			result = ctx.Err()
		}
	}

	s.stopAll(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("Server stopped")
	return result
}

type adapterExit struct {
	protocol string
	err      error
}

// stopAll stops adapters in reverse registration order.
func (s *Server) stopAll(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", adp.Protocol(), err)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
