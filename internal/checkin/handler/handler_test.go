package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"checkin/internal/checkin/service"
	gateService "checkin/internal/gate/service"
	gateStore "checkin/internal/gate/store"
	"checkin/internal/roster/models"
	rosterStore "checkin/internal/roster/store"
	"checkin/pkg/testutil"
)

type attendeeBody struct {
	Attendee models.CandidateView `json:"attendee"`
}

type candidateBody struct {
	models.CandidateView
	Papers []models.Paper `json:"papers"`
}

type fixture struct {
	router http.Handler
	gate   *gateService.Service
	store  *rosterStore.InMemory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := rosterStore.NewInMemory()
	_, err := store.Insert(context.Background(), models.Record{
		"Barcode":                   "91234567",
		"Name on barcode":           "Chan Tai Man",
		"考試日期 Timeslot":             "15/02/2026 09:00am – 12:30pm",
		"學校名稱 School of Candidates": "St. Paul's College",
	})
	require.NoError(t, err)

	gate, err := gateService.New(gateStore.NewMemory(true))
	require.NoError(t, err)
	svc, err := service.New(store, gate)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return &fixture{router: r, gate: gate, store: store}
}

func TestRecordCheckIn(t *testing.T) {
	f := newFixture(t)

	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/api/check-ins", map[string]string{
		"barcode": " 91234567 ", "paperId": "paper1", "paperTitle": "Paper 1",
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	got := testutil.UnmarshalResponse[attendeeBody](t, rr).Attendee
	if got.CheckInCount != 1 {
		t.Fatalf("expected checkInCount 1, got %d", got.CheckInCount)
	}
	if got.Name != "Chan Tai Man" || got.PhoneNumber != "91234567" {
		t.Fatalf("expected resolved fields, got %+v", got)
	}
	if _, ok := got.CheckedPapers["paper1"]; !ok {
		t.Fatalf("expected paper1 in checkedPapers, got %v", got.CheckedPapers)
	}
	if got.LastCheckIn == nil {
		t.Fatalf("expected lastCheckIn to be set")
	}
}

func TestRecordCheckInDefaultsTitleFromCatalog(t *testing.T) {
	f := newFixture(t)

	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/api/check-ins", map[string]string{
		"barcode": "91234567", "paperId": "paper2",
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)
	got := testutil.UnmarshalResponse[attendeeBody](t, rr).Attendee
	require.Len(t, got.CheckIns, 1)
	if got.CheckIns[0].Title != "Chemistry Paper 2" {
		t.Fatalf("expected catalog title, got %q", got.CheckIns[0].Title)
	}
}

func TestRecordCheckInErrors(t *testing.T) {
	f := newFixture(t)

	t.Run("missing barcode", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/api/check-ins", map[string]string{"paperId": "paper1"}))
		body := testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
		if body.Description != "barcode is required" {
			t.Fatalf("unexpected description %q", body.Description)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewRawRequest(http.MethodPost, "/api/check-ins", `{"barcode":`))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("unknown barcode", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/api/check-ins", map[string]string{
			"barcode": "00000000", "paperId": "paper1",
		}))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("gate closed", func(t *testing.T) {
		_, err := f.gate.Set(context.Background(), false)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = f.gate.Set(context.Background(), true)
		})

		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/api/check-ins", map[string]string{
			"barcode": "91234567", "paperId": "paper1",
		}))
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "gate_closed")
	})
}

func TestRemoveCheckIn(t *testing.T) {
	f := newFixture(t)
	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/api/check-ins", map[string]string{
		"barcode": "91234567", "paperId": "paper1",
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	t.Run("absent paper leaves the ledger unchanged", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodDelete, "/api/check-ins", map[string]string{
			"barcode": "91234567", "paperId": "paper2",
		}))
		testutil.AssertStatus(t, rr, http.StatusOK)
		if got := testutil.UnmarshalResponse[attendeeBody](t, rr).Attendee; got.CheckInCount != 1 {
			t.Fatalf("expected checkInCount 1, got %d", got.CheckInCount)
		}
	})

	t.Run("recorded paper is retracted", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodDelete, "/api/check-ins", map[string]string{
			"barcode": "91234567", "paperId": "paper1",
		}))
		testutil.AssertStatus(t, rr, http.StatusOK)
		got := testutil.UnmarshalResponse[attendeeBody](t, rr).Attendee
		if got.CheckInCount != 0 || len(got.CheckIns) != 0 || got.LastCheckIn != nil {
			t.Fatalf("expected empty ledger, got %+v", got)
		}
	})

	t.Run("missing paper id", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodDelete, "/api/check-ins", map[string]string{
			"barcode": "91234567",
		}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})
}

func TestLookupCandidate(t *testing.T) {
	f := newFixture(t)

	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodGet, "/api/candidates/91234567", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	got := testutil.UnmarshalResponse[candidateBody](t, rr)
	if got.School != "St. Paul's College" {
		t.Fatalf("expected school from alias column, got %q", got.School)
	}
	require.Len(t, got.Papers, 2)
	want := "15 Feb 2026 · 09:00am"
	if got.Papers[0].Time != want {
		t.Fatalf("expected %q, got %q", want, got.Papers[0].Time)
	}
	if got.Papers[1].Time != "15 Feb 2026 · 12:30pm" {
		t.Fatalf("unexpected second paper time %q", got.Papers[1].Time)
	}

	rr = testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodGet, "/api/candidates/404404", nil))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestLookupCandidateWithoutTimeslot(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Insert(context.Background(), models.Record{"phoneNumber": "66667777"})
	require.NoError(t, err)

	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodGet, "/api/candidates/66667777", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	got := testutil.UnmarshalResponse[candidateBody](t, rr)
	if got.Papers[0].Time != "Date TBD · 08:30 AM" {
		t.Fatalf("unexpected default schedule %q", got.Papers[0].Time)
	}
	if got.CheckedPapers == nil || len(got.CheckedPapers) != 0 {
		t.Fatalf("expected empty checkedPapers, got %v", got.CheckedPapers)
	}
}
