package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"checkin/internal/gate/service"
	"checkin/internal/gate/store"
	"checkin/pkg/testutil"
)

type statusBody struct {
	Enabled bool `json:"enabled"`
}

func newGateRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, err := service.New(store.NewMemory(true))
	require.NoError(t, err)
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestGateStatusDefaultsToEnabled(t *testing.T) {
	router := newGateRouter(t)
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/api/check-ins/status", nil))

	testutil.AssertStatus(t, rr, http.StatusOK)
	if got := testutil.UnmarshalResponse[statusBody](t, rr); !got.Enabled {
		t.Fatalf("expected gate enabled by default")
	}
}

func TestGateStatusToggle(t *testing.T) {
	router := newGateRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/api/check-ins/status", map[string]bool{"enabled": false}))
	testutil.AssertStatus(t, rr, http.StatusOK)
	if got := testutil.UnmarshalResponse[statusBody](t, rr); got.Enabled {
		t.Fatalf("expected response to echo enabled=false")
	}

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/api/check-ins/status", nil))
	if got := testutil.UnmarshalResponse[statusBody](t, rr); got.Enabled {
		t.Fatalf("expected gate to stay closed after toggle")
	}
}

func TestGateStatusValidation(t *testing.T) {
	router := newGateRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/api/check-ins/status", map[string]string{}))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")

	rr = testutil.DoRequest(router, testutil.NewRawRequest(http.MethodPost, "/api/check-ins/status", `{"enabled":`))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}
