package service

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	reportMetrics "checkin/internal/report/metrics"
	"checkin/internal/roster/models"
	dErrors "checkin/pkg/domain-errors"
	"checkin/pkg/platform/sentinel"
	pstrings "checkin/pkg/platform/strings"
	"checkin/pkg/requestcontext"
)

// Lister is the roster scan reports are built from. ListAll returns
// candidates in id order.
type Lister interface {
	ListAll(ctx context.Context) ([]*models.Candidate, error)
}

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 200

	DefaultScanTimeout = 30 * time.Second
)

// DefaultCutoff hides placeholder timeslots far in the future.
var DefaultCutoff = models.MustParseSlotDate("15/02/2026")

var tracer = otel.Tracer("checkin/internal/report/service")

// DateGroup counts candidates sharing a timeslot date and their check-ins
// per paper.
type DateGroup struct {
	Date   string         `json:"date"`
	Total  int            `json:"total"`
	Papers map[string]int `json:"papers"`

	slot models.SlotDate
}

// Summary is the headline count for the dashboard.
type Summary struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checkedIn"`
}

// Service derives read-only views from the full roster. Concurrent reports
// share one in-flight scan.
type Service struct {
	store   Lister
	cutoff  models.SlotDate
	logger  *slog.Logger
	metrics *reportMetrics.Metrics
	scans   singleflight.Group

	scanTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *reportMetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithScanTimeout bounds a shared roster scan.
func WithScanTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.scanTimeout = d
		}
	}
}

// WithCutoff excludes date groups falling strictly after cutoff.
func WithCutoff(cutoff models.SlotDate) Option {
	return func(s *Service) {
		s.cutoff = cutoff
	}
}

func New(store Lister, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("candidate store is required")
	}
	s := &Service{store: store, cutoff: DefaultCutoff, scanTimeout: DefaultScanTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListRecent returns the candidates with a check-in, most recent first.
// limit falls back to DefaultRecentLimit when non-positive and is capped at
// MaxRecentLimit.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]models.CandidateView, error) {
	ctx, span := tracer.Start(ctx, "report.ListRecent")
	defer span.End()
	limit = ClampLimit(limit)
	span.SetAttributes(attribute.Int("report.limit", limit))

	roster, err := s.roster(ctx)
	if err != nil {
		return nil, err
	}

	recent := make([]*models.Candidate, 0, len(roster))
	for _, c := range roster {
		if c.LastCheckIn != nil {
			recent = append(recent, c)
		}
	}
	slices.SortStableFunc(recent, func(a, b *models.Candidate) int {
		return b.LastCheckIn.Compare(*a.LastCheckIn)
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}

	out := make([]models.CandidateView, len(recent))
	for i, c := range recent {
		out[i] = c.View()
	}
	return out, nil
}

// GroupByDateAndPaper groups candidates by the date in their timeslot.
// Candidates without a parseable date are left out, as are dates after the
// cutoff. Groups come back in date order.
func (s *Service) GroupByDateAndPaper(ctx context.Context) ([]DateGroup, error) {
	ctx, span := tracer.Start(ctx, "report.GroupByDateAndPaper")
	defer span.End()

	roster, err := s.roster(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*DateGroup)
	undated := 0
	for _, c := range roster {
		slot, ok := models.ParseSlotDate(c.Canonical().Timeslot)
		if !ok {
			undated++
			continue
		}
		if slot.After(s.cutoff) {
			continue
		}
		label := slot.Label()
		g, ok := groups[label]
		if !ok {
			g = newDateGroup(slot)
			groups[label] = g
		}
		g.Total++
		for _, e := range c.CheckIns {
			g.Papers[e.PaperID]++
		}
	}
	if s.metrics != nil {
		s.metrics.UndatedTimeslots.Set(float64(undated))
	}

	out := make([]DateGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b DateGroup) int {
		return cmp.Or(
			cmp.Compare(a.slot.Year, b.slot.Year),
			cmp.Compare(a.slot.Month, b.slot.Month),
			cmp.Compare(a.slot.Day, b.slot.Day),
		)
	})
	span.SetAttributes(attribute.Int("report.groups", len(out)))
	return out, nil
}

func newDateGroup(slot models.SlotDate) *DateGroup {
	papers := make(map[string]int, len(models.DefaultPapers))
	for _, p := range models.DefaultPapers {
		papers[p.ID] = 0
	}
	return &DateGroup{Date: slot.Label(), Papers: papers, slot: slot}
}

// Search returns the first candidate whose phone number, barcode or name
// contains query, ignoring case. A blank query or no hit returns nil.
func (s *Service) Search(ctx context.Context, query string) (*models.CandidateView, error) {
	ctx, span := tracer.Start(ctx, "report.Search")
	defer span.End()

	q := pstrings.Fold(query)
	if q == "" {
		return nil, nil
	}

	roster, err := s.roster(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range roster {
		canon := c.Canonical()
		if pstrings.ContainsFold(canon.PhoneNumber, q) ||
			pstrings.ContainsFold(canon.Barcode, q) ||
			pstrings.ContainsFold(canon.CandidateName, q) {
			view := c.View()
			return &view, nil
		}
	}
	return nil, nil
}

// Summary counts the roster and the candidates with at least one check-in.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "report.Summary")
	defer span.End()

	roster, err := s.roster(ctx)
	if err != nil {
		return nil, err
	}
	out := &Summary{Total: len(roster)}
	for _, c := range roster {
		if c.CheckInCount > 0 {
			out.CheckedIn++
		}
	}
	return out, nil
}

// ClampLimit normalizes a caller-supplied recent-activity limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return min(limit, MaxRecentLimit)
}

// roster loads the full candidate list. Callers arriving while a scan is
// running wait for it instead of starting another; the shared slice must
// not be mutated.
// roster shares one store scan among concurrent callers. The scan runs
// detached from any single caller so one cancelled request cannot fail the
// others; each caller still stops waiting when its own context ends.
func (s *Service) roster(ctx context.Context) ([]*models.Candidate, error) {
	start := time.Now()
	ch := s.scans.DoChan("roster", func() (any, error) {
		scanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.scanTimeout)
		defer cancel()
		return s.store.ListAll(scanCtx)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "roster scan abandoned")
	}
	if res.Err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to scan roster",
				"error", res.Err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		if errors.Is(res.Err, sentinel.ErrUnavailable) ||
			errors.Is(res.Err, context.DeadlineExceeded) ||
			errors.Is(res.Err, context.Canceled) {
			return nil, dErrors.Wrap(res.Err, dErrors.CodeUnavailable, "failed to load roster")
		}
		return nil, dErrors.Wrap(res.Err, dErrors.CodeInternal, "failed to load roster")
	}
	roster := res.Val.([]*models.Candidate)
	if s.metrics != nil {
		s.metrics.ObserveScan(start, len(roster), res.Shared)
	}
	return roster, nil
}
