package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "checkin/pkg/domain-errors"
	"checkin/pkg/platform/httputil"
	"checkin/pkg/requestcontext"
)

// Service is the admission gate as seen by HTTP.
type Service interface {
	Enabled(ctx context.Context) (bool, error)
	Set(ctx context.Context, enabled bool) (bool, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the gate routes. Shared middleware is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/check-ins/status", h.handleGetStatus)
	r.Post("/api/check-ins/status", h.handleSetStatus)
}

type statusRequest struct {
	Enabled *bool `json:"enabled"`
}

type statusResponse struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	enabled, err := h.service.Enabled(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read admission gate",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Enabled: enabled})
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req statusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid gate request", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	if req.Enabled == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "enabled is required"))
		return
	}

	enabled, err := h.service.Set(ctx, *req.Enabled)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update admission gate", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Enabled: enabled})
}
