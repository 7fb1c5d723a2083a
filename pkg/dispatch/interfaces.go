// Package dispatch turns inbound bus requests into provider calls.
//
// Each request gets a Handler, a small state machine that makes sure the
// account has credentials, identifies the calling process, invokes the
// provider and sends exactly one reply. Handler state is only touched on
// the dispatcher's future.Loop; provider futures complete on worker
// goroutines and their continuations are posted back to the loop.
//
// Request flow:
//
//	Created -> Authenticating -> PeerValidating -> Dispatching -> Completed
//	                 ^                                  |
//	                 +---- Unauthorized, first time ----+
//
// A provider failure of kind Unauthorized restarts the request once with a
// forced, non-interactive credential refresh. Every other failure, and a
// second Unauthorized, is marshalled into the reply.
package dispatch

import (
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/provider"
)

// PeerInfo identifies the process behind a bus connection.
type PeerInfo struct {
	UID           uint32
	PID           uint32
	SecurityLabel string
}

// PeerIdentityResolver looks up the process identity of a bus client.
type PeerIdentityResolver interface {
	// Resolve returns the identity of the client with the given unique bus
	// name, or fails if it cannot be determined.
	Resolve(sender string) *future.Future[PeerInfo]
}

// CredentialBroker holds the credentials of one account.
type CredentialBroker interface {
	// HasCredentials reports whether a credential bundle is available.
	HasCredentials() bool

	// Credentials returns the current bundle.
	Credentials() provider.Credentials

	// Authenticate obtains or refreshes the bundle. interactive allows
	// prompting the user; forceRefresh discards a cached bundle first.
	// The future completes when the attempt is over; callers check
	// HasCredentials afterwards.
	Authenticate(interactive, forceRefresh bool) *future.Future[struct{}]
}

// Callback performs the provider operation of a request. It returns the
// reply body asynchronously. A synchronous error or a panic is treated like
// a failed future but never triggers a retry.
type Callback func(ctx *provider.AuthContext) (*future.Future[[]any], error)

// Reply is the single response to a request: either a body or an error.
type Reply struct {
	Body []any
	Err  *WireError
}

// Request is one inbound bus call.
type Request struct {
	// Sender is the unique bus name of the caller.
	Sender string

	// Method is the bus method name, used for logging and metrics.
	Method string

	// Call runs the provider operation.
	Call Callback

	// Respond delivers the reply. It is called exactly once, on the loop.
	Respond func(Reply)
}
