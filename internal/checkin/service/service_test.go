package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks CandidateStore,Gate,IdempotencyStore,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"checkin/internal/audit"
	checkinMetrics "checkin/internal/checkin/metrics"
	checkinModels "checkin/internal/checkin/models"
	"checkin/internal/checkin/service/mocks"
	"checkin/internal/checkin/store/idempotency"
	gateService "checkin/internal/gate/service"
	gateStore "checkin/internal/gate/store"
	"checkin/internal/roster/models"
	rosterStore "checkin/internal/roster/store"
	dErrors "checkin/pkg/domain-errors"
	"checkin/pkg/platform/sentinel"
	"checkin/pkg/requestcontext"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// =============================================================================
// Ledger Scenarios (in-memory store, real gate)
// =============================================================================
// Justification: the ledger's invariants only mean something against a store
// that enforces versioned writes, so these run on the in-memory store.

type LedgerServiceSuite struct {
	suite.Suite
	ctx       context.Context
	store     *rosterStore.InMemory
	gate      *gateService.Service
	sink      *audit.MemorySink
	publisher *audit.Publisher
	metrics   *checkinMetrics.Metrics
	service   *Service
	t1        time.Time
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.t1 = time.Date(2026, 2, 15, 8, 31, 0, 0, time.UTC)
	s.store = rosterStore.NewInMemory()

	var err error
	s.gate, err = gateService.New(gateStore.NewMemory(true))
	s.Require().NoError(err)

	s.sink = audit.NewMemorySink()
	s.publisher, err = audit.NewPublisher(s.sink, audit.WithBuffer(1024))
	s.Require().NoError(err)

	s.metrics = checkinMetrics.New(prometheus.NewRegistry())
	s.service, err = New(s.store, s.gate,
		WithLogger(discardLogger),
		WithMetrics(s.metrics),
		WithAuditPublisher(s.publisher),
		WithIdempotency(idempotency.NewInMemory(), time.Minute),
	)
	s.Require().NoError(err)
}

func (s *LedgerServiceSuite) insert(fields models.Record) *models.Candidate {
	c, err := s.store.Insert(s.ctx, fields)
	s.Require().NoError(err)
	return c
}

func (s *LedgerServiceSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(s.ctx, t)
}

func (s *LedgerServiceSuite) record(ctx context.Context, identifier, paperID string) *models.CandidateView {
	view, err := s.service.RecordCheckIn(ctx, checkinModels.RecordCheckInRequest{
		Identifier: identifier, PaperID: paperID, Title: "Paper 1",
	})
	s.Require().NoError(err)
	return view
}

// drainAudit stops accepting and flushes everything queued so far.
func (s *LedgerServiceSuite) drainAudit() []audit.Event {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Require().NoError(s.publisher.Run(ctx))
	return s.sink.Events()
}

func (s *LedgerServiceSuite) TestRecordScenarios() {
	s.insert(models.Record{"barcode": "91234567"})
	t2 := s.t1.Add(5 * time.Minute)

	s.Run("first record sets count, event and last check-in", func() {
		view := s.record(s.at(s.t1), "91234567", "paper1")
		s.Equal(1, view.CheckInCount)
		s.Require().Len(view.CheckIns, 1)
		s.Equal("paper1", view.CheckIns[0].PaperID)
		s.Equal(s.t1, view.CheckIns[0].At)
		s.Require().NotNil(view.LastCheckIn)
		s.Equal(s.t1, *view.LastCheckIn)
	})

	s.Run("repeat for same paper counts again and moves the timestamp", func() {
		view := s.record(s.at(t2), "91234567", "paper1")
		s.Equal(2, view.CheckInCount)
		s.Require().Len(view.CheckIns, 1)
		s.Equal(t2, view.CheckIns[0].At)
		s.Equal(t2, *view.LastCheckIn)
		s.Equal("Paper 1", view.CheckIns[0].Title)
	})

	events := s.drainAudit()
	s.Require().Len(events, 2)
	s.Equal(audit.ActionCheckInRecorded, events[0].Action)
	s.Equal("91234567", events[0].Barcode)
	s.Equal(float64(2), promtestutil.ToFloat64(s.metrics.Recorded))
}

func (s *LedgerServiceSuite) TestRemoveAbsentPaperIsNoop() {
	c := s.insert(models.Record{"barcode": "91234567"})
	s.record(s.at(s.t1), "91234567", "paper2")
	before, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)

	view, err := s.service.RemoveCheckIn(s.ctx, "91234567", "paper1")
	s.Require().NoError(err)
	s.Equal(1, view.CheckInCount)
	s.Require().Len(view.CheckIns, 1)

	after, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(before.Version, after.Version, "no write for a no-op removal")
	s.Equal(float64(0), promtestutil.ToFloat64(s.metrics.Removed))
}

func (s *LedgerServiceSuite) TestRecordThenRemoveRestoresCount() {
	s.insert(models.Record{"phoneNumber": "61234567"})
	s.record(s.at(s.t1), "61234567", "paper1")
	s.record(s.at(s.t1.Add(time.Hour)), "61234567", "paper2")

	view, err := s.service.RemoveCheckIn(s.ctx, "61234567", "paper2")
	s.Require().NoError(err)
	s.Equal(1, view.CheckInCount)
	s.Require().Len(view.CheckIns, 1)
	s.Equal(s.t1, *view.LastCheckIn, "last check-in falls back to the remaining event")

	view, err = s.service.RemoveCheckIn(s.ctx, "61234567", "paper1")
	s.Require().NoError(err)
	s.Equal(0, view.CheckInCount)
	s.Empty(view.CheckIns)
	s.Nil(view.LastCheckIn)
}

func (s *LedgerServiceSuite) TestAliasOrderIndependence() {
	s.Run("phone only record matches on phone", func() {
		s.insert(models.Record{"電話號碼 Phone Number": "98765432", "Name on barcode": "Chan Tai Man"})
		view := s.record(s.at(s.t1), "98765432", "paper1")
		s.Equal("Chan Tai Man", view.Name)
		s.Equal("98765432", view.Barcode)
	})

	s.Run("barcode only record matches on barcode", func() {
		s.insert(models.Record{"Barcode": "55554444"})
		view := s.record(s.at(s.t1), "55554444", "paper1")
		s.Equal("55554444", view.PhoneNumber)
	})

	s.Run("numeric phone cells match", func() {
		s.insert(models.Record{"phoneNumber": float64(91112222)})
		view := s.record(s.at(s.t1), "91112222", "paper1")
		s.Equal(1, view.CheckInCount)
	})
}

func (s *LedgerServiceSuite) TestBarcodeBackfill() {
	c := s.insert(models.Record{"電話號碼 Phone Number": "93334444"})
	s.record(s.at(s.t1), "93334444", "paper1")

	stored, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal("93334444", stored.Fields.Get("barcode"))
	s.Equal("93334444", stored.Fields.Get("phoneNumber"))
	s.Equal("93334444", stored.Fields.Get("電話號碼 Phone Number"), "raw field untouched")
}

func (s *LedgerServiceSuite) TestGateClosed() {
	c := s.insert(models.Record{"barcode": "91234567"})
	s.record(s.at(s.t1), "91234567", "paper1")
	_, err := s.gate.Set(s.ctx, false)
	s.Require().NoError(err)

	before, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)

	s.Run("record is rejected without mutation", func() {
		_, err := s.service.RecordCheckIn(s.ctx, checkinModels.RecordCheckInRequest{Identifier: "91234567", PaperID: "paper2"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeGateClosed))

		after, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(before.Version, after.Version)
		s.Equal(before.CheckInCount, after.CheckInCount)
		s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.GateRejected))
	})

	s.Run("remove still works", func() {
		view, err := s.service.RemoveCheckIn(s.ctx, "91234567", "paper1")
		s.Require().NoError(err)
		s.Equal(0, view.CheckInCount)
	})

	s.Run("lookup still works", func() {
		got, err := s.service.Lookup(s.ctx, "91234567")
		s.Require().NoError(err)
		s.Equal(c.ID, got.ID)
	})
}

func (s *LedgerServiceSuite) TestValidationAndNotFound() {
	s.Run("blank identifier", func() {
		_, err := s.service.RecordCheckIn(s.ctx, checkinModels.RecordCheckInRequest{Identifier: "  ", PaperID: "paper1"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing paper", func() {
		_, err := s.service.RemoveCheckIn(s.ctx, "91234567", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown identifier", func() {
		_, err := s.service.RecordCheckIn(s.ctx, checkinModels.RecordCheckInRequest{Identifier: "00000000", PaperID: "paper1"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("raw alias hit without resolved match is not found", func() {
		// barcode wins resolution, so the Barcode column is never consulted.
		s.insert(models.Record{"barcode": "A-1", "Barcode": "77778888"})
		_, err := s.service.RemoveCheckIn(s.ctx, "77778888", "paper1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *LedgerServiceSuite) TestAmbiguousIdentifierPicksFirst() {
	first := s.insert(models.Record{"barcode": "92223333"})
	s.insert(models.Record{"phoneNumber": "92223333"})

	view := s.record(s.at(s.t1), "92223333", "paper1")
	s.Equal(first.ID, view.ID)
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.AmbiguousIdentifier))
}

func (s *LedgerServiceSuite) TestRequestTokenReplay() {
	s.insert(models.Record{"barcode": "91234567"})
	req := checkinModels.RecordCheckInRequest{Identifier: "91234567", PaperID: "paper1", RequestToken: "scan-1"}

	view, err := s.service.RecordCheckIn(s.at(s.t1), req)
	s.Require().NoError(err)
	s.Equal(1, view.CheckInCount)

	view, err = s.service.RecordCheckIn(s.at(s.t1.Add(time.Second)), req)
	s.Require().NoError(err)
	s.Equal(1, view.CheckInCount, "replayed token is not counted")
	s.Equal(s.t1, *view.LastCheckIn)
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.IdempotentReplays))

	req.RequestToken = "scan-2"
	view, err = s.service.RecordCheckIn(s.at(s.t1.Add(time.Minute)), req)
	s.Require().NoError(err)
	s.Equal(2, view.CheckInCount)
}

// TestConcurrentRecordsAreLinearized verifies no increment is lost when
// many scanners hit the same candidate at once.
func (s *LedgerServiceSuite) TestConcurrentRecordsAreLinearized() {
	c := s.insert(models.Record{"barcode": "91234567"})
	const writers = 25

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := requestcontext.WithTime(s.ctx, s.t1.Add(time.Duration(i)*time.Second))
			_, err := s.service.RecordCheckIn(ctx, checkinModels.RecordCheckInRequest{Identifier: "91234567", PaperID: "paper1"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	stored, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(writers, stored.CheckInCount)
	s.Require().Len(stored.CheckIns, 1)
	s.Equal(s.t1.Add((writers-1)*time.Second), *stored.LastCheckIn)
}

// =============================================================================
// Failure Paths (mocked collaborators)
// =============================================================================
// Justification: store outages, conflicts and token bookkeeping are hard to
// provoke with real stores.

type CheckInServiceMockSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	store       *mocks.MockCandidateStore
	gate        *mocks.MockGate
	idempotency *mocks.MockIdempotencyStore
	audit       *mocks.MockAuditPublisher
	service     *Service
	ctx         context.Context
}

func TestCheckInServiceMockSuite(t *testing.T) {
	suite.Run(t, new(CheckInServiceMockSuite))
}

func (s *CheckInServiceMockSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockCandidateStore(s.ctrl)
	s.gate = mocks.NewMockGate(s.ctrl)
	s.idempotency = mocks.NewMockIdempotencyStore(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	s.ctx = context.Background()
	var err error
	s.service, err = New(s.store, s.gate,
		WithLogger(discardLogger),
		WithAuditPublisher(s.audit),
		WithIdempotency(s.idempotency, time.Minute),
	)
	s.Require().NoError(err)
}

func (s *CheckInServiceMockSuite) TearDownTest() {
	s.ctrl.Finish()
}

func candidate(barcode string, version int64) *models.Candidate {
	return &models.Candidate{Fields: models.Record{"barcode": barcode}, Version: version}
}

func (s *CheckInServiceMockSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, s.gate)
		s.Require().Error(err)
		s.Contains(err.Error(), "candidate store is required")
	})

	s.Run("nil gate returns error", func() {
		_, err := New(s.store, nil)
		s.Require().Error(err)
		s.Contains(err.Error(), "admission gate is required")
	})
}

func (s *CheckInServiceMockSuite) TestStoreUnavailable() {
	s.gate.EXPECT().Enabled(gomock.Any()).Return(true, nil)
	s.store.EXPECT().FindByAliasValue(gomock.Any(), gomock.Any(), "91234567").
		Return(nil, errors.Join(sentinel.ErrUnavailable, errors.New("connection refused")))

	_, err := s.service.RecordCheckIn(s.ctx, checkinModels.RecordCheckInRequest{Identifier: "91234567", PaperID: "paper1"})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *CheckInServiceMockSuite) TestGateErrorPropagates() {
	s.gate.EXPECT().Enabled(gomock.Any()).Return(false, dErrors.New(dErrors.CodeUnavailable, "gate down"))

	_, err := s.service.RecordCheckIn(s.ctx, checkinModels.RecordCheckInRequest{Identifier: "91234567", PaperID: "paper1"})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *CheckInServiceMockSuite) TestConflictReappliesOnFreshState() {
	stale := candidate("91234567", 1)
	fresh := candidate("91234567", 2)
	fresh.ID = stale.ID
	fresh.RecordCheckIn("paper2", "Chemistry Paper 2", time.Now())

	gomock.InOrder(
		s.gate.EXPECT().Enabled(gomock.Any()).Return(true, nil),
		s.store.EXPECT().FindByAliasValue(gomock.Any(), gomock.Any(), "91234567").Return([]*models.Candidate{stale}, nil),
		s.store.EXPECT().UpdateIfVersion(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict),
		s.store.EXPECT().FindByID(gomock.Any(), stale.ID).Return(fresh, nil),
		s.store.EXPECT().UpdateIfVersion(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, c *models.Candidate) error {
				s.Equal(int64(2), c.Version)
				s.True(c.HasCheckIn("paper2"), "competing write is preserved")
				s.True(c.HasCheckIn("paper1"))
				return nil
			}),
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil),
	)

	view, err := s.service.RecordCheckIn(s.ctx, checkinModels.RecordCheckInRequest{Identifier: "91234567", PaperID: "paper1"})
	s.Require().NoError(err)
	s.Equal(2, view.CheckInCount)
}

func (s *CheckInServiceMockSuite) TestFailedApplyReleasesToken() {
	c := candidate("91234567", 1)
	s.gate.EXPECT().Enabled(gomock.Any()).Return(true, nil)
	s.store.EXPECT().FindByAliasValue(gomock.Any(), gomock.Any(), "91234567").Return([]*models.Candidate{c}, nil)
	s.idempotency.EXPECT().Claim(gomock.Any(), gomock.Any(), time.Minute).Return(true, nil)
	s.store.EXPECT().UpdateIfVersion(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	s.idempotency.EXPECT().Release(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.service.RecordCheckIn(s.ctx, checkinModels.RecordCheckInRequest{
		Identifier: "91234567", PaperID: "paper1", RequestToken: "tok",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *CheckInServiceMockSuite) TestIdempotencyStoreUnavailable() {
	c := candidate("91234567", 1)
	s.gate.EXPECT().Enabled(gomock.Any()).Return(true, nil)
	s.store.EXPECT().FindByAliasValue(gomock.Any(), gomock.Any(), "91234567").Return([]*models.Candidate{c}, nil)
	s.idempotency.EXPECT().Claim(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(false, errors.Join(sentinel.ErrUnavailable, errors.New("i/o timeout")))

	_, err := s.service.RecordCheckIn(s.ctx, checkinModels.RecordCheckInRequest{
		Identifier: "91234567", PaperID: "paper1", RequestToken: "tok",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *CheckInServiceMockSuite) TestCandidateDeletedMidUpdate() {
	c := candidate("91234567", 1)
	s.store.EXPECT().FindByAliasValue(gomock.Any(), gomock.Any(), "91234567").Return([]*models.Candidate{c}, nil)
	c.RecordCheckIn("paper1", "", time.Now())
	s.store.EXPECT().UpdateIfVersion(gomock.Any(), gomock.Any()).Return(sentinel.ErrNotFound)

	_, err := s.service.RemoveCheckIn(s.ctx, "91234567", "paper1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
