// Package ratelimit bounds request rates for the public emergency route and
// device telemetry ingestion using a sliding window per key.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"instahelp/pkg/platform/circuit"
)

// Limit is a request budget per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Enabled reports whether the limit should be enforced.
func (l Limit) Enabled() bool {
	return l.Requests > 0 && l.Window > 0
}

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int
}

// Store counts requests per key inside a sliding window.
type Store interface {
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*Result, error)
}

// Key prefixes. Device keys are scoped per device ID, emergency keys per
// client IP.
const (
	scopeDevice    = "device"
	scopeEmergency = "emergency"
)

// DeviceKey builds the bucket key for a telemetry device.
func DeviceKey(deviceID string) string {
	return "rl:" + scopeDevice + ":" + deviceID
}

// ClientKey builds the bucket key for an anonymous client.
func ClientKey(ip string) string {
	return "rl:" + scopeEmergency + ":" + ip
}

// Limiter checks the primary store and falls back to an in-process store
// while the primary's circuit is open.
type Limiter struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithFallback sets the store used while the primary is failing.
func WithFallback(s Store) Option {
	return func(l *Limiter) { l.fallback = s }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) { l.breaker = b }
}

func NewLimiter(primary Store, opts ...Option) *Limiter {
	l := &Limiter{
		primary: primary,
		breaker: circuit.New("ratelimit"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow spends one request from key's budget. degraded is true when the
// answer came from the fallback store. With no fallback configured, a
// failing primary fails open.
func (l *Limiter) Allow(ctx context.Context, key string, limit Limit) (res *Result, degraded bool, err error) {
	if !l.breaker.Allow() {
		return l.fromFallback(ctx, key, limit)
	}
	res, err = l.primary.AllowN(ctx, key, 1, limit.Requests, limit.Window)
	if err != nil {
		_, change := l.breaker.RecordFailure()
		l.logger.WarnContext(ctx, "rate limit store failed",
			"error", err,
			"circuit_opened", change.Opened,
		)
		return l.fromFallback(ctx, key, limit)
	}
	if _, change := l.breaker.RecordSuccess(); change.Closed {
		l.logger.InfoContext(ctx, "rate limit store recovered")
	}
	return res, false, nil
}

func (l *Limiter) fromFallback(ctx context.Context, key string, limit Limit) (*Result, bool, error) {
	if l.fallback == nil {
		return &Result{Allowed: true, Limit: limit.Requests, Remaining: limit.Requests}, true, nil
	}
	res, err := l.fallback.AllowN(ctx, key, 1, limit.Requests, limit.Window)
	return res, true, err
}
