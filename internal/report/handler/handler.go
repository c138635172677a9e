package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	reportService "checkin/internal/report/service"
	"checkin/internal/roster/models"
	dErrors "checkin/pkg/domain-errors"
	"checkin/pkg/platform/httputil"
	"checkin/pkg/requestcontext"
)

// Service defines the reporting reads exposed over HTTP.
type Service interface {
	ListRecent(ctx context.Context, limit int) ([]models.CandidateView, error)
	GroupByDateAndPaper(ctx context.Context) ([]reportService.DateGroup, error)
	Search(ctx context.Context, query string) (*models.CandidateView, error)
	Summary(ctx context.Context) (*reportService.Summary, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register adds the report routes. Shared middleware is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/check-ins", h.handleListRecent)
	r.Get("/api/reports/dates", h.handleDates)
	r.Get("/api/reports/summary", h.handleSummary)
	r.Get("/api/search", h.handleSearch)
}

func (h *Handler) handleListRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be an integer"))
			return
		}
		limit = n
	}

	views, err := h.service.ListRecent(ctx, limit)
	if err != nil {
		h.fail(ctx, w, "failed to list recent check-ins", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) handleDates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groups, err := h.service.GroupByDateAndPaper(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to group check-ins by date", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, groups)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.service.Summary(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to summarize roster", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.Search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		h.fail(ctx, w, "candidate search failed", err)
		return
	}
	if view == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no matching candidate"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	httputil.WriteError(w, err)
}
