package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	checkinModels "checkin/internal/checkin/models"
	"checkin/internal/roster/models"
	dErrors "checkin/pkg/domain-errors"
	"checkin/pkg/platform/httputil"
	"checkin/pkg/requestcontext"
)

// Service defines the interface for check-in operations.
type Service interface {
	Lookup(ctx context.Context, identifier string) (*models.Candidate, error)
	RecordCheckIn(ctx context.Context, req checkinModels.RecordCheckInRequest) (*models.CandidateView, error)
	RemoveCheckIn(ctx context.Context, identifier, paperID string) (*models.CandidateView, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register adds the check-in routes. Shared middleware is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/check-ins", h.handleRecord)
	r.Delete("/api/check-ins", h.handleRemove)
	r.Get("/api/candidates/{identifier}", h.handleLookup)
}

type recordRequest struct {
	Barcode      string `json:"barcode"`
	PaperID      string `json:"paperId"`
	PaperTitle   string `json:"paperTitle"`
	RequestToken string `json:"requestToken"`
}

type removeRequest struct {
	Barcode string `json:"barcode"`
	PaperID string `json:"paperId"`
}

type attendeeResponse struct {
	Attendee *models.CandidateView `json:"attendee"`
}

type candidateResponse struct {
	models.CandidateView
	Papers []models.Paper `json:"papers"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req recordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid check-in request", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	view, err := h.service.RecordCheckIn(ctx, checkinModels.RecordCheckInRequest{
		Identifier:   req.Barcode,
		PaperID:      req.PaperID,
		Title:        req.PaperTitle,
		RequestToken: req.RequestToken,
	})
	if err != nil {
		h.logFailure(ctx, "check-in failed", err, "paper_id", req.PaperID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, attendeeResponse{Attendee: view})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req removeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid check-in removal", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	view, err := h.service.RemoveCheckIn(ctx, req.Barcode, req.PaperID)
	if err != nil {
		h.logFailure(ctx, "check-in removal failed", err, "paper_id", req.PaperID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, attendeeResponse{Attendee: view})
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.service.Lookup(ctx, chi.URLParam(r, "identifier"))
	if err != nil {
		h.logFailure(ctx, "candidate lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	view := c.View()
	httputil.WriteJSON(w, http.StatusOK, candidateResponse{
		CandidateView: view,
		Papers:        models.PaperSchedule(view.Timeslot),
	})
}

// logFailure logs client-side outcomes at WARN and the rest at ERROR.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	args := append([]any{"error", err, "request_id", requestcontext.RequestID(ctx)}, attrs...)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeNotFound, dErrors.CodeGateClosed:
		h.logger.WarnContext(ctx, msg, args...)
	default:
		h.logger.ErrorContext(ctx, msg, args...)
	}
}
