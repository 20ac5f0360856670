// Package publisher is the audit entry point for services. Emit never blocks
// a state transition on audit persistence: in async mode events are queued
// and dropped when the queue is full, and mirror sinks sit behind a circuit
// breaker so a dead stream costs nothing once it has tripped.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	audit "instahelp/pkg/platform/audit"
	"instahelp/pkg/platform/audit/worker"
	"instahelp/pkg/platform/circuit"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

const defaultAppendTimeout = 5 * time.Second

type Publisher struct {
	store   audit.Store
	mirrors []mirror
	logger  *slog.Logger
	dropped prometheus.Counter

	appendTimeout time.Duration

	// mu guards buffer sends against Close.
	mu     sync.RWMutex
	closed bool
	buffer chan audit.Event
	wg     sync.WaitGroup
}

type mirror struct {
	sink    audit.Sink
	breaker *circuit.Breaker
}

type Option func(*Publisher)

// WithAsyncBuffer queues events in a channel of size n drained by a worker.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan audit.Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMirror adds a best-effort secondary sink guarded by a circuit breaker.
func WithMirror(name string, sink audit.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.mirrors = append(p.mirrors, mirror{
				sink:    sink,
				breaker: circuit.New(name, circuit.WithSuccessThreshold(1)),
			})
		}
	}
}

// WithAppendTimeout bounds each queued write to the store and mirrors.
func WithAppendTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.appendTimeout = d
		}
	}
}

// WithDroppedCounter counts events lost to a full buffer.
func WithDroppedCounter(c prometheus.Counter) Option {
	return func(p *Publisher) {
		p.dropped = c
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, appendTimeout: defaultAppendTimeout}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		w := worker.NewWorker(sinkFunc(p.persistBounded), p.buffer, p.logger)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			_ = w.Run(context.Background())
		}()
	}
	return p
}

type sinkFunc func(ctx context.Context, event audit.Event) error

func (f sinkFunc) Append(ctx context.Context, event audit.Event) error { return f(ctx, event) }

// Emit records an event. In async mode it returns ErrBufferFull, ErrClosed
// or the context error when the event could not be queued; callers log and
// move on.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.buffer == nil {
		return p.persist(ctx, event)
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	select {
	case p.buffer <- event:
		p.mu.RUnlock()
		return nil
	default:
	}
	p.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.dropped != nil {
		p.dropped.Inc()
	}
	return ErrBufferFull
}

func (p *Publisher) persistBounded(ctx context.Context, event audit.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.appendTimeout)
	defer cancel()
	return p.persist(ctx, event)
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	err := p.store.Append(ctx, event)
	for _, m := range p.mirrors {
		p.mirrorAppend(ctx, m, event)
	}
	return err
}

func (p *Publisher) mirrorAppend(ctx context.Context, m mirror, event audit.Event) {
	if !m.breaker.Allow() {
		return
	}
	if err := m.sink.Append(ctx, event); err != nil {
		_, change := m.breaker.RecordFailure()
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit mirror append failed",
				"mirror", m.breaker.Name(),
				"error", err,
				"circuit_opened", change.Opened,
			)
		}
		return
	}
	m.breaker.RecordSuccess()
}

// List returns events recorded for a resource.
func (p *Publisher) List(ctx context.Context, resourceType, resourceID string) ([]audit.Event, error) {
	return p.store.ListByResource(ctx, resourceType, resourceID)
}

// Close drains queued events and stops the worker. Later Emit calls in
// async mode return ErrClosed.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
