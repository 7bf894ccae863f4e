// Package handler exposes the application lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"loanflow/internal/application/models"
	"loanflow/internal/application/service"
	"loanflow/internal/platform/middleware"
	dErrors "loanflow/pkg/domain-errors"
	"loanflow/pkg/platform/httputil"
	"loanflow/pkg/requestcontext"
)

// Handler handles application CRUD, listing, statistics and audit endpoints.
type Handler struct {
	apps           *service.Service
	adminValidator middleware.AdminValidator
	logger         *slog.Logger
}

// New creates a new application Handler. Deletion is the only privileged
// route; everything else is open to the API consumer.
func New(apps *service.Service, adminValidator middleware.AdminValidator, logger *slog.Logger) *Handler {
	return &Handler{apps: apps, adminValidator: adminValidator, logger: logger}
}

// Register registers the application routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/stats", h.handleStats)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleUpdate)
		r.Get("/{id}/audit", h.handleAuditTrail)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(h.adminValidator, h.logger))
			r.Delete("/{id}", h.handleDelete)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req CreateApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid create application request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	app, created, err := h.apps.Create(ctx, req.toService())
	if err != nil {
		h.logServiceError(ctx, "create application failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if !created {
		// Idempotent replay answers with the original row.
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, toResponse(app))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.apps.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(app))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req UpdateApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid update application request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	upd, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx = requestcontext.WithActor(ctx, "api", req.Reason)
	app, err := h.apps.Update(ctx, id, upd)
	if err != nil {
		h.logServiceError(ctx, "update application failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(app))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	subject := middleware.GetAdminSubject(ctx)
	ctx = requestcontext.WithActor(ctx, subject, "administrative deletion")

	if err := h.apps.Delete(ctx, id); err != nil {
		h.logServiceError(ctx, "delete application failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := models.ListFilter{
		Country: models.Country(r.URL.Query().Get("country")),
		Status:  models.Status(r.URL.Query().Get("status")),
		Limit:   queryInt(r, "limit", 50),
		Offset:  queryInt(r, "offset", 0),
	}

	apps, err := h.apps.List(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{
		Applications: toResponses(apps),
		Count:        len(apps),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.apps.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// The application must exist even if it has no transitions yet.
	if _, err := h.apps.Get(ctx, id); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.apps.AuditTrail(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditResponses(entries))
}

func (h *Handler) logServiceError(ctx context.Context, msg, requestID string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err.Error())
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err.Error())
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id is not a valid UUID")
	}
	return id, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
