// Package publisher is the emission point services use for audit events.
// It fills in defaults (timestamp, category) and either appends to the
// store synchronously or hands the event to a buffered background worker.
package publisher

import (
	"context"
	"sync"
	"time"

	id "ralphbot/pkg/domain"
	audit "ralphbot/pkg/platform/audit"
)

// Publisher emits audit events to a store. In sync mode (the default),
// Emit appends before returning. With WithAsyncBuffer, events go through
// a channel and a background goroutine; a full buffer drops the event
// rather than blocking the caller.
type Publisher struct {
	store audit.Store

	inbox chan audit.Event
	done  chan struct{}

	closeOnce sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// NewPublisher constructs a Publisher backed by store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an audit event. Missing timestamps and categories are
// filled in. In async mode a full buffer drops the event silently; audit
// emission must never block or fail domain operations.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
	default:
		// Buffer full: drop rather than block the request path.
	}
	return nil
}

// List returns the audit trail for one user.
func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// ListRecent returns the most recent events across all users.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}

// Close stops the background worker, draining any buffered events first.
// Safe to call more than once. A nil receiver is a no-op so wiring code
// can defer Close unconditionally.
func (p *Publisher) Close() {
	if p == nil || p.inbox == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		// Store errors are swallowed here; the store is responsible for
		// its own logging. Audit writes never propagate to callers.
		_ = p.store.Append(context.Background(), event)
	}
}
