// Package publisher is the entry point services use to emit history events.
// It stamps events, then appends them synchronously or through a buffered
// background worker.
package publisher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	audit "actarchive/pkg/platform/audit"
	"actarchive/pkg/platform/audit/worker"
	"actarchive/pkg/requestcontext"
)

// Publisher stamps and forwards history events to a sink.
type Publisher struct {
	sink   audit.Appender
	logger *slog.Logger

	buffer int
	inbox  chan audit.Event
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit hand events to a background worker through a
// channel of the given size. When the channel is full Emit appends inline
// rather than dropping the event.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(sink audit.Appender, opts ...Option) *Publisher {
	p := &Publisher{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer > 0 {
		p.inbox = make(chan audit.Event, p.buffer)
		p.done = make(chan struct{})
		w := worker.NewWorker(sink, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit records one event. ID, timestamp and request ID are filled in when
// the caller left them empty.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.inbox == nil || p.closed {
		return p.sink.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "history buffer full, appending inline",
			"document_id", event.DocumentID,
			"action", string(event.Action),
		)
		return p.sink.Append(ctx, event)
	}
}

// Close stops accepting buffered events and waits for queued ones to be
// appended. Later Emit calls append synchronously.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox == nil {
			return
		}
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
		<-p.done
	})
}
