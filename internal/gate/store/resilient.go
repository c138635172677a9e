package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	gateMetrics "checkin/internal/gate/metrics"
	"checkin/pkg/platform/circuit"
	"checkin/pkg/platform/sentinel"
)

// Backend is a gate store. Both Redis and Memory satisfy it.
type Backend interface {
	Get(ctx context.Context) (bool, error)
	Set(ctx context.Context, enabled bool) error
}

// Resilient fronts a remote gate with a circuit breaker. Every successful
// primary read or write refreshes the in-process copy; while the primary is
// failing, the in-process copy answers. Until some value has been seen from
// the primary, a failing read is reported as unavailable rather than guessed.
// Writes only succeed through the primary.
type Resilient struct {
	primary  Backend
	fallback *Memory
	known    atomic.Bool
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *gateMetrics.Metrics
}

type ResilientOption func(*Resilient)

func WithLogger(logger *slog.Logger) ResilientOption {
	return func(r *Resilient) {
		r.logger = logger
	}
}

func WithMetrics(m *gateMetrics.Metrics) ResilientOption {
	return func(r *Resilient) {
		r.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) ResilientOption {
	return func(r *Resilient) {
		if b != nil {
			r.breaker = b
		}
	}
}

func NewResilient(primary Backend, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		primary:  primary,
		fallback: NewMemory(false),
		breaker:  circuit.New("gate-redis"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resilient) Get(ctx context.Context) (bool, error) {
	enabled, err := r.primary.Get(ctx)
	if err != nil {
		_, change := r.breaker.RecordFailure()
		r.observe(ctx, change, err)
		if !r.known.Load() {
			return false, unavailable("gate state unknown", err)
		}
		return r.fromFallback(ctx)
	}

	_, change := r.breaker.RecordSuccess()
	r.observe(ctx, change, nil)
	r.remember(ctx, enabled)
	return enabled, nil
}

// Set writes through to the primary. A write the primary rejects is not
// applied anywhere, so replicas never diverge on operator changes.
func (r *Resilient) Set(ctx context.Context, enabled bool) error {
	if err := r.primary.Set(ctx, enabled); err != nil {
		_, change := r.breaker.RecordFailure()
		r.observe(ctx, change, err)
		if r.logger != nil {
			r.logger.WarnContext(ctx, "gate change rejected, store unreachable",
				"enabled", enabled,
				"error", err,
			)
		}
		return unavailable("set gate state", err)
	}
	_, change := r.breaker.RecordSuccess()
	r.observe(ctx, change, nil)
	r.remember(ctx, enabled)
	return nil
}

// BreakerState exposes the breaker position for health reporting.
func (r *Resilient) BreakerState() circuit.State {
	return r.breaker.State()
}

func (r *Resilient) fromFallback(ctx context.Context) (bool, error) {
	if r.metrics != nil {
		r.metrics.FallbackReads.Inc()
	}
	return r.fallback.Get(ctx)
}

func (r *Resilient) remember(ctx context.Context, enabled bool) {
	_ = r.fallback.Set(ctx, enabled)
	r.known.Store(true)
}

func unavailable(msg string, err error) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w", msg, errors.Join(sentinel.ErrUnavailable, err))
}

func (r *Resilient) observe(ctx context.Context, change circuit.StateChange, err error) {
	if change.Opened {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "gate store circuit opened", "breaker", r.breaker.Name(), "error", err)
		}
		if r.metrics != nil {
			r.metrics.SetBreakerOpen(true)
		}
	}
	if change.Closed {
		if r.logger != nil {
			r.logger.InfoContext(ctx, "gate store circuit closed", "breaker", r.breaker.Name())
		}
		if r.metrics != nil {
			r.metrics.SetBreakerOpen(false)
		}
	}
}
