package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ralphbot/internal/consent/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/platform/httputil"
	"ralphbot/pkg/requestcontext"
)

// Service defines the consent operations the handler needs.
type Service interface {
	Grant(ctx context.Context, userID id.UserID, purposes []string) ([]models.ConsentRecord, error)
	Revoke(ctx context.Context, userID id.UserID, purpose string) error
	Status(ctx context.Context, userID id.UserID) ([]models.ConsentStatus, error)
}

// Handler serves the self-service consent endpoints. Routes resolve the
// subject from the token, so a user token only ever reaches its own rows.
type Handler struct {
	logger  *slog.Logger
	consent Service
}

func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
	}
}

// Register mounts the consent routes. The router applies auth middleware;
// these handlers only read the resolved identity.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me/consent", h.handleStatus)
	r.Post("/me/consent", h.handleGrant)
	r.Post("/me/consent/revoke", h.handleRevoke)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.subject(w, ctx)
	if !ok {
		return
	}

	statuses, err := h.consent.Status(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load consent status",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consents": statuses})
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.subject(w, ctx)
	if !ok {
		return
	}

	var req models.GrantConsentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid grant consent request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	records, err := h.consent.Grant(ctx, userID, req.Purposes)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeBadRequest) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to grant consent",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to grant consent"))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"granted": records})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.subject(w, ctx)
	if !ok {
		return
	}

	var req models.RevokeConsentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.consent.Revoke(ctx, userID, req.Purpose); err != nil {
		if dErrors.HasCode(err, dErrors.CodeBadRequest) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to revoke consent",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to revoke consent"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// subject pulls the authenticated user from context. A missing user means
// an operator token hit a self-service route.
func (h *Handler) subject(w http.ResponseWriter, ctx context.Context) (id.UserID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "route requires a user token"))
		return id.UserID{}, false
	}
	return userID, true
}
