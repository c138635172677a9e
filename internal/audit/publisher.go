package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"checkin/pkg/requestcontext"
)

// ErrQueueFull is returned by Emit when the event had to be dropped.
var ErrQueueFull = errors.New("audit queue full")

const (
	defaultBuffer = 256
	drainTimeout  = 5 * time.Second
)

// Sink persists audit events.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Publisher enqueues events on a bounded channel drained by Run. Emit never
// blocks the caller.
type Publisher struct {
	sink    Sink
	inbox   chan Event
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Publisher)

func WithBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(sink Sink, opts ...Option) (*Publisher, error) {
	if sink == nil {
		return nil, errors.New("audit sink is required")
	}
	p := &Publisher{sink: sink, inbox: make(chan Event, defaultBuffer)}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Emit stamps request metadata onto base and queues it.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.At.IsZero() {
		base.At = requestcontext.Now(ctx)
	}
	if base.RequestID == "" {
		base.RequestID = requestcontext.RequestID(ctx)
	}
	if base.ClientIP == "" {
		base.ClientIP = requestcontext.ClientIP(ctx)
	}
	if base.Device == "" {
		base.Device = DeviceSummary(requestcontext.UserAgent(ctx))
	}

	select {
	case p.inbox <- base:
		return nil
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit event dropped",
				"action", string(base.Action),
				"candidate_id", base.CandidateID,
				"request_id", base.RequestID,
			)
		}
		if p.metrics != nil {
			p.metrics.Dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Run drains the queue into the sink until ctx is cancelled, then flushes
// whatever is still buffered.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return nil
		case event := <-p.inbox:
			p.write(ctx, event)
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-p.inbox:
			p.write(ctx, event)
		default:
			return
		}
	}
}

func (p *Publisher) write(ctx context.Context, event Event) {
	if err := p.sink.Write(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "failed to write audit event",
				"error", err,
				"action", string(event.Action),
				"event_id", event.ID.String(),
			)
		}
		if p.metrics != nil {
			p.metrics.SinkFailures.Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.Published.Inc()
	}
}
