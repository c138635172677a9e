package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"checkin/internal/audit"
	checkinMetrics "checkin/internal/checkin/metrics"
	checkinModels "checkin/internal/checkin/models"
	"checkin/internal/roster/models"
	dErrors "checkin/pkg/domain-errors"
	"checkin/pkg/platform/sentinel"
	"checkin/pkg/requestcontext"
)

// CandidateStore is the persistence the ledger needs. UpdateIfVersion must
// fail with sentinel.ErrConflict when the stored version moved on.
type CandidateStore interface {
	FindByAliasValue(ctx context.Context, keys []string, value string) ([]*models.Candidate, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Candidate, error)
	UpdateIfVersion(ctx context.Context, c *models.Candidate) error
}

// Gate reports whether new check-ins are admitted.
type Gate interface {
	Enabled(ctx context.Context) (bool, error)
}

// IdempotencyStore remembers client request tokens for a while.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

const (
	// A writer can lose at most once per competing successful write, so this
	// bounds contention rather than retrying failures.
	maxUpdateAttempts = 64

	defaultIdempotencyTTL = 10 * time.Minute
)

var tracer = otel.Tracer("checkin/internal/checkin/service")

// Service records and retracts check-ins. Each mutation is a read, a pure
// ledger transition and a version-checked write, re-applied on conflict.
type Service struct {
	candidates     CandidateStore
	gate           Gate
	matcher        *Matcher
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	logger         *slog.Logger
	metrics        *checkinMetrics.Metrics
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *checkinMetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithIdempotency enables request-token deduplication.
func WithIdempotency(store IdempotencyStore, ttl time.Duration) Option {
	return func(s *Service) {
		s.idempotency = store
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

func New(candidates CandidateStore, gate Gate, opts ...Option) (*Service, error) {
	if candidates == nil {
		return nil, errors.New("candidate store is required")
	}
	if gate == nil {
		return nil, errors.New("admission gate is required")
	}
	s := &Service{
		candidates:     candidates,
		gate:           gate,
		idempotencyTTL: defaultIdempotencyTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.matcher = NewMatcher(candidates, s.logger, s.metrics)
	return s, nil
}

// Lookup resolves identifier and returns the candidate's current view.
func (s *Service) Lookup(ctx context.Context, identifier string) (*models.Candidate, error) {
	ctx, span := tracer.Start(ctx, "checkin.Lookup")
	defer span.End()
	c, err := s.matcher.Resolve(ctx, identifier)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("candidate.id", c.ID.String()))
	return c, nil
}

// RecordCheckIn marks the candidate identified by req present for req.PaperID.
// Every accepted call increments the candidate's check-in count, including
// repeats for a paper already recorded; a replayed RequestToken does not.
func (s *Service) RecordCheckIn(ctx context.Context, req checkinModels.RecordCheckInRequest) (*models.CandidateView, error) {
	ctx, span := tracer.Start(ctx, "checkin.RecordCheckIn",
		trace.WithAttributes(attribute.String("paper.id", req.PaperID)))
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveRecord(time.Now())
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		fail(span, err)
		return nil, err
	}

	enabled, err := s.gate.Enabled(ctx)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	if !enabled {
		if s.metrics != nil {
			s.metrics.GateRejected.Inc()
		}
		err := dErrors.New(dErrors.CodeGateClosed, "check-in is currently closed")
		fail(span, err)
		return nil, err
	}

	candidate, err := s.matcher.Resolve(ctx, req.Identifier)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("candidate.id", candidate.ID.String()))

	var claimKey string
	if req.RequestToken != "" && s.idempotency != nil {
		key := idempotencyKey(candidate.ID, req.PaperID, req.RequestToken)
		claimed, err := s.idempotency.Claim(ctx, key, s.idempotencyTTL)
		if err != nil {
			err = storeError(err, "failed to check request token")
			fail(span, err)
			return nil, err
		}
		if !claimed {
			if s.metrics != nil {
				s.metrics.IdempotentReplays.Inc()
			}
			if s.logger != nil {
				s.logger.InfoContext(ctx, "check-in replay ignored",
					"candidate_id", candidate.ID.String(),
					"paper_id", req.PaperID,
					"request_id", requestcontext.RequestID(ctx),
				)
			}
			view := candidate.View()
			return &view, nil
		}
		claimKey = key
	}

	title := req.Title
	if title == "" {
		title = models.PaperTitle(req.PaperID)
	}
	at := requestcontext.Now(ctx)

	updated, _, err := s.apply(ctx, candidate, func(c *models.Candidate) bool {
		c.RecordCheckIn(req.PaperID, title, at)
		return true
	})
	if err != nil {
		if claimKey != "" {
			if relErr := s.idempotency.Release(ctx, claimKey); relErr != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "failed to release request token", "error", relErr)
			}
		}
		fail(span, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Recorded.Inc()
	}
	view := updated.View()
	s.logAudit(ctx, audit.ActionCheckInRecorded, &view, req.PaperID,
		"check_in_count", updated.CheckInCount)
	return &view, nil
}

// RemoveCheckIn retracts the candidate's check-in for paperID. Removing a
// paper that was never recorded succeeds without writing. The gate is not
// consulted.
func (s *Service) RemoveCheckIn(ctx context.Context, identifier, paperID string) (*models.CandidateView, error) {
	ctx, span := tracer.Start(ctx, "checkin.RemoveCheckIn",
		trace.WithAttributes(attribute.String("paper.id", paperID)))
	defer span.End()

	req := checkinModels.RemoveCheckInRequest{Identifier: identifier, PaperID: paperID}
	req.Normalize()
	if err := req.Validate(); err != nil {
		fail(span, err)
		return nil, err
	}

	candidate, err := s.matcher.Resolve(ctx, req.Identifier)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("candidate.id", candidate.ID.String()))

	updated, removed, err := s.apply(ctx, candidate, func(c *models.Candidate) bool {
		return c.RemoveCheckIn(req.PaperID)
	})
	if err != nil {
		fail(span, err)
		return nil, err
	}

	view := updated.View()
	if removed {
		if s.metrics != nil {
			s.metrics.Removed.Inc()
		}
		s.logAudit(ctx, audit.ActionCheckInRemoved, &view, req.PaperID,
			"check_in_count", updated.CheckInCount)
	}
	return &view, nil
}

// apply runs mutate against c and persists the result with a version check.
// On conflict the candidate is re-read and mutate re-applied to fresh state.
// mutate returning false means nothing changed and nothing is written.
func (s *Service) apply(ctx context.Context, c *models.Candidate, mutate func(*models.Candidate) bool) (*models.Candidate, bool, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if attempt > 0 {
			fresh, err := s.candidates.FindByID(ctx, c.ID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return nil, false, dErrors.New(dErrors.CodeNotFound, "candidate not found")
				}
				return nil, false, storeError(err, "failed to reload candidate")
			}
			c = fresh
		}

		if !mutate(c) {
			return c, false, nil
		}
		c.Fields = c.Fields.Backfill(c.Canonical())

		err := s.candidates.UpdateIfVersion(ctx, c)
		switch {
		case err == nil:
			return c, true, nil
		case errors.Is(err, sentinel.ErrConflict):
			if s.metrics != nil {
				s.metrics.VersionConflicts.Inc()
			}
			continue
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, false, dErrors.New(dErrors.CodeNotFound, "candidate not found")
		default:
			return nil, false, storeError(err, "failed to save check-in")
		}
	}
	return nil, false, dErrors.New(dErrors.CodeConflict, "candidate is being updated concurrently, please retry")
}

func (s *Service) logAudit(ctx context.Context, action audit.Action, view *models.CandidateView, paperID string, attributes ...any) {
	event := string(action)
	requestID := requestcontext.RequestID(ctx)
	if s.logger != nil {
		args := append(attributes,
			"candidate_id", view.ID.String(),
			"barcode", view.Barcode,
			"paper_id", paperID,
			"request_id", requestID,
			"event", event,
			"log_type", "audit",
		)
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Action:      action,
		CandidateID: view.ID.String(),
		Barcode:     view.Barcode,
		PaperID:     paperID,
	})
}

// storeError maps store failures onto domain codes. Only availability is
// surfaced; everything else is internal.
func storeError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
}
