// Package handler serves the self-service data rights endpoints. Routes
// resolve the subject from the token, the same way the consent handler
// does, so a user token only ever reaches its own data.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ralphbot/internal/gdpr"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/platform/httputil"
	"ralphbot/pkg/requestcontext"
)

// Service defines the privacy operations the handler needs.
type Service interface {
	Export(ctx context.Context, userID id.UserID) (*gdpr.ExportBundle, error)
	Erase(ctx context.Context, userID id.UserID) (*gdpr.ErasureReport, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the data rights routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me/data-export", h.handleExport)
	r.Delete("/me", h.handleErase)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.subject(w, ctx)
	if !ok {
		return
	}

	bundle, err := h.service.Export(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "data export failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="data-export.json"`)
	httputil.WriteJSON(w, http.StatusOK, bundle)
}

func (h *Handler) handleErase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.subject(w, ctx)
	if !ok {
		return
	}

	report, err := h.service.Erase(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "erasure failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, report)
}

// subject pulls the authenticated user from context. Operator tokens have
// no subject and cannot exercise another user's data rights.
func (h *Handler) subject(w http.ResponseWriter, ctx context.Context) (id.UserID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "route requires a user token"))
		return id.UserID{}, false
	}
	return userID, true
}
