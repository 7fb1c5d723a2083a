// Package ratelimiter throttles inbound bus requests with token buckets.
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// unlimited stands in for rate.Inf, which reports zero tokens.
const unlimited = 1_000_000_000

// RateLimiter is a single token bucket. It is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a bucket refilled at requestsPerSecond holding at most burst
// tokens. A zero rate disables limiting.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = unlimited
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow consumes a token if one is available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetLimit changes the refill rate. The burst grows with it when it was at
// or below twice the old rate.
func (r *RateLimiter) SetLimit(requestsPerSecond uint) {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
	}
	oldRate := uint(r.limiter.Limit())
	oldBurst := uint(r.limiter.Burst())
	r.limiter.SetLimit(rate.Limit(requestsPerSecond))
	if oldBurst <= oldRate*2 {
		r.limiter.SetBurst(int(requestsPerSecond * 2))
	}
}

// Tokens returns the tokens currently in the bucket.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// Config configures a Gate. Zero rates disable the corresponding limit.
type Config struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             uint `mapstructure:"burst" yaml:"burst"`

	PerSenderRequestsPerSecond uint `mapstructure:"per_sender_requests_per_second" yaml:"per_sender_requests_per_second"`
	PerSenderBurst             uint `mapstructure:"per_sender_burst" yaml:"per_sender_burst"`
}

// Gate combines a global bucket with one bucket per bus sender.
type Gate struct {
	cfg    Config
	global *RateLimiter

	mu      sync.Mutex
	senders map[string]*senderBucket
}

type senderBucket struct {
	limiter  *RateLimiter
	lastSeen time.Time
}

// NewGate creates a Gate for cfg.
func NewGate(cfg Config) *Gate {
	return &Gate{
		cfg:     cfg,
		global:  New(cfg.RequestsPerSecond, cfg.Burst),
		senders: make(map[string]*senderBucket),
	}
}

// Allow reports whether a request from sender may proceed. The sender's
// bucket is checked first so a noisy client does not drain the global one.
func (g *Gate) Allow(sender string) bool {
	if g.cfg.PerSenderRequestsPerSecond > 0 {
		g.mu.Lock()
		b, ok := g.senders[sender]
		if !ok {
			b = &senderBucket{limiter: New(g.cfg.PerSenderRequestsPerSecond, g.cfg.PerSenderBurst)}
			g.senders[sender] = b
		}
		b.lastSeen = time.Now()
		g.mu.Unlock()

		if !b.limiter.Allow() {
			return false
		}
	}
	return g.global.Allow()
}

// Forget drops the bucket of a sender that left the bus.
func (g *Gate) Forget(sender string) {
	g.mu.Lock()
	delete(g.senders, sender)
	g.mu.Unlock()
}

// Prune drops sender buckets idle for longer than maxIdle and returns how
// many were removed.
func (g *Gate) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for sender, b := range g.senders {
		if b.lastSeen.Before(cutoff) {
			delete(g.senders, sender)
			n++
		}
	}
	return n
}

// Senders returns the number of tracked sender buckets.
func (g *Gate) Senders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.senders)
}
