package adapter

import "context"

// Adapter exposes a storage provider over one transport and is managed by
// server.Server.
//
// Lifecycle:
//  1. Creation: the adapter is built with its configuration and provider
//  2. Startup: Serve() connects and blocks until shutdown
//  3. Shutdown: Stop() drains in-flight requests within the context deadline
//
// Thread safety:
// Stop() may be called concurrently with Serve() and more than once.
type Adapter interface {
	// Serve runs the adapter until ctx is cancelled, Stop is called, or the
	// adapter decides on its own to exit (for example after an inactivity
	// timeout).
	//
	// Returns:
	//   - nil when the adapter stopped by itself or via Stop
	//   - ctx.Err() when cancelled via context
	//   - error if startup failed or the transport broke
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown and waits for Serve to return or ctx
	// to expire.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable transport name for logging and
	// metrics.
	Protocol() string
}
