// Package handler exposes the operator token endpoints. They mount
// outside the authenticated groups: /auth/token is how a session
// starts, and /auth/logout validates the presented token itself.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ralphbot/internal/auth/service"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/platform/httputil"
	"ralphbot/pkg/requestcontext"
)

// Service is the token issuance surface the handler fronts.
type Service interface {
	Issue(ctx context.Context, operator, secret, role string) (*service.IssuedToken, error)
	Revoke(ctx context.Context, rawToken string) error
}

// Handler wires token issuance to the router.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the token routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/token", h.handleIssue)
	r.Post("/auth/logout", h.handleLogout)
}

type issueRequest struct {
	Operator string `json:"operator"`
	Secret   string `json:"secret"`
	Role     string `json:"role,omitempty"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	issued, err := h.service.Issue(ctx, req.Operator, req.Secret, req.Role)
	if err != nil {
		h.logger.WarnContext(ctx, "token issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"operator", req.Operator,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, issued)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := bearerToken(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}

	if err := h.service.Revoke(ctx, token); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
