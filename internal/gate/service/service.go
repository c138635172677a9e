package service

import (
	"context"
	"errors"
	"log/slog"

	"checkin/internal/audit"
	gateMetrics "checkin/internal/gate/metrics"
	dErrors "checkin/pkg/domain-errors"
	"checkin/pkg/platform/sentinel"
	"checkin/pkg/requestcontext"
)

// Store holds the single process-wide admission flag.
type Store interface {
	Get(ctx context.Context) (bool, error)
	Set(ctx context.Context, enabled bool) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service is the admission gate. Only check-in recording consults it;
// removals and reporting ignore it.
type Service struct {
	store          Store
	logger         *slog.Logger
	metrics        *gateMetrics.Metrics
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *gateMetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("gate store is required")
	}
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Enabled reports whether new check-ins are currently admitted.
func (s *Service) Enabled(ctx context.Context) (bool, error) {
	enabled, err := s.store.Get(ctx)
	if err != nil {
		return false, translate(err, "failed to read admission gate")
	}
	if s.metrics != nil {
		s.metrics.SetEnabled(enabled)
	}
	return enabled, nil
}

// Set overwrites the gate and returns the new value.
func (s *Service) Set(ctx context.Context, enabled bool) (bool, error) {
	if err := s.store.Set(ctx, enabled); err != nil {
		return false, translate(err, "failed to update admission gate")
	}
	if s.metrics != nil {
		s.metrics.SetEnabled(enabled)
		s.metrics.Changes.Inc()
	}
	s.logAudit(ctx, enabled)
	return enabled, nil
}

func (s *Service) logAudit(ctx context.Context, enabled bool) {
	event := string(audit.ActionGateChanged)
	if s.logger != nil {
		s.logger.InfoContext(ctx, event,
			"enabled", enabled,
			"request_id", requestcontext.RequestID(ctx),
			"event", event,
			"log_type", "audit",
		)
	}
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Action:  audit.ActionGateChanged,
		Enabled: &enabled,
	})
}

func translate(err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
