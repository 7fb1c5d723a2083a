package dispatch

import (
	"time"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/provider"
)

// State is the position of a Handler in the request flow.
type State int

const (
	StateCreated State = iota
	StateAuthenticating
	StatePeerValidating
	StateDispatching
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAuthenticating:
		return "authenticating"
	case StatePeerValidating:
		return "peer-validating"
	case StateDispatching:
		return "dispatching"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Handler drives one request. All methods run on the dispatcher loop.
type Handler struct {
	id      uint64
	d       *Dispatcher
	req     Request
	started time.Time

	state   State
	retried bool
	authCtx *provider.AuthContext
	reply   Reply
}

func (h *Handler) begin() {
	if h.d.broker.HasCredentials() && !h.retried {
		h.onAuthenticated(nil)
		return
	}

	h.state = StateAuthenticating
	interactive, forceRefresh := true, false
	if h.retried {
		interactive, forceRefresh = false, true
	}
	future.Then(h.d.broker.Authenticate(interactive, forceRefresh), h.d.loop, func(_ struct{}, err error) {
		h.onAuthenticated(err)
	})
}

func (h *Handler) onAuthenticated(err error) {
	if err != nil || !h.d.broker.HasCredentials() {
		if err != nil {
			logger.Debug("[%d] %s: authentication failed: %v", h.id, h.req.Method, err)
		}
		h.d.metrics.RecordRejected("credentials")
		h.fail(provider.Unauthorized("%s: could not retrieve account credentials", h.req.Method))
		return
	}

	h.state = StatePeerValidating
	future.Then(h.d.resolver.Resolve(h.req.Sender), h.d.loop, h.onPeerResolved)
}

func (h *Handler) onPeerResolved(info PeerInfo, err error) {
	if err != nil {
		logger.Debug("[%d] %s: peer %s: %v", h.id, h.req.Method, h.req.Sender, err)
		h.d.metrics.RecordRejected("peer")
		h.fail(provider.Unauthorized("%s: could not retrieve D-Bus peer credentials", h.req.Method))
		return
	}

	h.authCtx = &provider.AuthContext{
		Context:       h.d.ctx,
		UID:           info.UID,
		PID:           info.PID,
		SecurityLabel: info.SecurityLabel,
		Credentials:   h.d.broker.Credentials(),
	}
	h.dispatch()
}

func (h *Handler) dispatch() {
	h.state = StateDispatching

	f, err := future.Call(func() (*future.Future[[]any], error) {
		return h.req.Call(h.authCtx)
	})
	if err == nil && f == nil {
		err = provider.Unknown("%s: provider returned no result", h.req.Method)
	}
	if err != nil {
		logger.Debug("[%d] %s: provider method failed: %v", h.id, h.req.Method, err)
		h.fail(err)
		return
	}

	future.Then(f, h.d.loop, h.onResult)
}

func (h *Handler) onResult(body []any, err error) {
	if err == nil {
		h.reply = Reply{Body: body}
		h.send()
		return
	}

	if provider.IsKind(err, provider.KindUnauthorized) && !h.retried {
		logger.Debug("[%d] %s: unauthorized, retrying with fresh credentials", h.id, h.req.Method)
		h.d.metrics.RecordRetry(h.req.Method)
		h.retried = true
		h.authCtx = nil
		h.reply = Reply{}
		h.begin()
		return
	}

	h.fail(err)
}

func (h *Handler) fail(err error) {
	h.reply = Reply{Err: MarshalError(err)}
	h.send()
}

func (h *Handler) send() {
	if h.state == StateCompleted {
		logger.Error("[%d] %s: reply already sent", h.id, h.req.Method)
		return
	}
	h.state = StateCompleted

	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("[%d] %s: sending reply panicked: %v", h.id, h.req.Method, r)
			}
		}()
		h.req.Respond(h.reply)
	}()

	h.d.finished(h)
}
