// Package dbus exposes a provider.Provider as an object on a D-Bus message
// bus.
//
// Every exported method becomes one dispatch.Request. The godbus connection
// runs each incoming call on its own goroutine; that goroutine blocks until
// the request's single reply is delivered. Transfers are registered in a
// jobs.Registry under the caller's unique bus name, so a client that drops
// off the bus has its unfinished transfers cancelled.
package dbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/internal/ratelimiter"
	"github.com/marmos91/dittostorage/pkg/dispatch"
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/jobs"
	"github.com/marmos91/dittostorage/pkg/metrics"
	"github.com/marmos91/dittostorage/pkg/provider"
)

// senderIdleTimeout is how long a rate-limit bucket survives without
// traffic from its sender.
const senderIdleTimeout = 10 * time.Minute

// Adapter serves a provider on the bus.
type Adapter struct {
	cfg      Config
	provider provider.Provider
	broker   dispatch.CredentialBroker
	metrics  metrics.RequestMetrics

	jobs *jobs.Registry
	gate *ratelimiter.Gate

	conn       *godbus.Conn
	peers      *PeerCache
	loop       *future.Loop
	dispatcher *dispatch.Dispatcher

	// jobsCtx outlives individual requests; transfers watch it and abort
	// when the adapter stops.
	jobsCtx    context.Context
	cancelJobs context.CancelFunc
	stopLoop   context.CancelFunc
	loopDone   chan struct{}

	started      atomic.Bool
	shutdownOnce sync.Once
	shutdown     chan struct{}
	done         chan struct{}
}

// New creates an adapter. A nil m disables metrics.
//
// Panics if cfg is invalid after defaults are applied.
func New(cfg Config, prov provider.Provider, broker dispatch.CredentialBroker, m metrics.RequestMetrics) *Adapter {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("invalid D-Bus config: %v", err))
	}
	if m == nil {
		m = metrics.NewNoopRequestMetrics()
	}
	return &Adapter{
		cfg:      cfg,
		provider: prov,
		broker:   broker,
		metrics:  m,
		jobs:     jobs.NewRegistry(),
		gate:     ratelimiter.NewGate(cfg.RateLimit),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (a *Adapter) Protocol() string {
	return "D-Bus"
}

func connect(cfg Config) (*godbus.Conn, error) {
	switch cfg.Bus {
	case BusSystem:
		return godbus.ConnectSystemBus()
	case BusAddress:
		return godbus.Connect(cfg.Address)
	default:
		return godbus.ConnectSessionBus()
	}
}

// Serve connects to the bus, claims the well-known name and answers calls
// until ctx is cancelled, Stop is called or the inactivity timeout expires.
func (a *Adapter) Serve(ctx context.Context) error {
	a.started.Store(true)
	defer close(a.done)

	conn, err := connect(a.cfg)
	if err != nil {
		return fmt.Errorf("connect to %s bus: %w", a.cfg.Bus, err)
	}
	defer conn.Close()
	a.conn = conn

	a.start(newPeerCache(busCredentialsQuery(conn)))
	defer a.stop()

	if err := a.export(conn); err != nil {
		return err
	}

	reply, err := conn.RequestName(a.cfg.Name, godbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name %s: %w", a.cfg.Name, err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s is already owned", a.cfg.Name)
	}

	if err := conn.AddMatchSignal(
		godbus.WithMatchSender("org.freedesktop.DBus"),
		godbus.WithMatchInterface("org.freedesktop.DBus"),
		godbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		return fmt.Errorf("subscribe to NameOwnerChanged: %w", err)
	}
	signals := make(chan *godbus.Signal, 64)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	logger.Info("Serving %s at %s as %s on the %s bus", Interface, a.cfg.ObjectPath, a.cfg.Name, a.cfg.Bus)

	ticker := time.NewTicker(a.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("D-Bus shutdown signal received: %v", ctx.Err())
			a.drain()
			return ctx.Err()

		case <-a.shutdown:
			a.drain()
			return nil

		case sig, ok := <-signals:
			if !ok {
				a.drain()
				return errors.New("bus connection closed")
			}
			a.onSignal(sig)

		case now := <-ticker.C:
			if n := a.gate.Prune(senderIdleTimeout); n > 0 {
				logger.Debug("Dropped %d idle rate-limit bucket(s)", n)
			}
			if a.idle(now) {
				logger.Info("No activity for %v, exiting", a.cfg.InactivityTimeout)
				a.drain()
				return nil
			}
		}
	}
}

// start creates the loop and dispatcher. It is separate from Serve so the
// request path can run without a bus connection.
func (a *Adapter) start(resolver *PeerCache) {
	a.peers = resolver
	a.jobsCtx, a.cancelJobs = context.WithCancel(context.Background())

	a.loop = future.NewLoop()
	var loopCtx context.Context
	loopCtx, a.stopLoop = context.WithCancel(context.Background())
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		_ = a.loop.Run(loopCtx)
	}()

	a.dispatcher = dispatch.New(dispatch.Config{
		Broker:   a.broker,
		Resolver: resolver,
		Loop:     a.loop,
		Context:  a.jobsCtx,
		Metrics:  a.metrics,
	})
}

func (a *Adapter) stop() {
	a.cancelJobs()
	a.stopLoop()
	<-a.loopDone
}

func (a *Adapter) export(conn *godbus.Conn) error {
	obj := &busObject{a: a}
	path := godbus.ObjectPath(a.cfg.ObjectPath)

	if err := conn.Export(obj, path, Interface); err != nil {
		return fmt.Errorf("export %s: %w", Interface, err)
	}

	node := &introspect.Node{
		Name: a.cfg.ObjectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: Interface, Methods: introspect.Methods(obj)},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection data: %w", err)
	}
	return nil
}

// drain stops taking calls, cancels pending transfers and waits for the
// requests already in flight.
func (a *Adapter) drain() {
	if a.conn != nil {
		path := godbus.ObjectPath(a.cfg.ObjectPath)
		_ = a.conn.Export(nil, path, Interface)
		if _, err := a.conn.ReleaseName(a.cfg.Name); err != nil {
			logger.Debug("Release bus name %s: %v", a.cfg.Name, err)
		}
	}

	if n := a.jobs.CancelAll(); n > 0 {
		logger.Info("Cancelled %d pending transfer(s)", n)
	}
	a.metrics.SetPendingJobs(0)

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	inflight := a.dispatcher.InFlight()
	if inflight > 0 {
		logger.Info("Waiting for %d request(s) to complete (timeout: %v)", inflight, a.cfg.ShutdownTimeout)
	}
	if err := a.dispatcher.Wait(ctx); err != nil {
		logger.Warn("D-Bus shutdown timeout: %d request(s) still active", a.dispatcher.InFlight())
	}
}

// Stop initiates graceful shutdown and waits for Serve to return.
func (a *Adapter) Stop(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		logger.Debug("D-Bus shutdown initiated")
		close(a.shutdown)
	})
	if !a.started.Load() {
		return nil
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) tickInterval() time.Duration {
	interval := time.Second
	if t := a.cfg.InactivityTimeout; t > 0 && t/4 < interval {
		interval = t / 4
	}
	return interval
}

// idle reports whether the inactivity timeout has expired.
func (a *Adapter) idle(now time.Time) bool {
	if a.cfg.InactivityTimeout <= 0 {
		return false
	}
	if a.dispatcher.InFlight() > 0 || a.jobs.Len() > 0 {
		return false
	}
	return now.Sub(a.dispatcher.LastActivity()) >= a.cfg.InactivityTimeout
}

func (a *Adapter) onSignal(sig *godbus.Signal) {
	if sig == nil || sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)
	if newOwner != "" || !strings.HasPrefix(name, ":") {
		return
	}
	a.clientGone(name)
}

// clientGone releases everything held on behalf of a client that left the
// bus.
func (a *Adapter) clientGone(sender string) {
	a.peers.Forget(sender)
	a.gate.Forget(sender)
	if n := a.jobs.CancelOwner(sender); n > 0 {
		logger.Info("Client %s disconnected, cancelled %d transfer(s)", sender, n)
		a.metrics.SetPendingJobs(a.jobs.Len())
		a.dispatcher.Touch()
	}
}
