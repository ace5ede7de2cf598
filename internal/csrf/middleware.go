package csrf

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/platform/httputil"
	auth "ralphbot/pkg/platform/middleware/auth"
	"ralphbot/pkg/requestcontext"
)

// HeaderName carries the token on unsafe requests.
const HeaderName = "X-CSRF-Token"

// AuditPublisher records rejected requests in the security trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Protect enforces the CSRF token on unsafe methods for cookie-authed
// requests. Must run after RequireAuth so the operator and auth channel
// are in context.
func Protect(svc *Service, logger *slog.Logger, auditPub AuditPublisher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			if auth.GetAuthChannel(ctx) != auth.ChannelCookie {
				next.ServeHTTP(w, r)
				return
			}

			operator := auth.GetOperator(ctx)
			token := r.Header.Get(HeaderName)
			if err := svc.VerifyToken(operator, token, time.Now()); err != nil {
				logger.WarnContext(ctx, "csrf check failed",
					"operator", operator,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
					"error", err.Error(),
				)
				if auditPub != nil {
					_ = auditPub.Emit(ctx, audit.Event{
						Action:    string(audit.EventCSRFRejected),
						ActorID:   operator,
						Subject:   r.URL.Path,
						Reason:    err.Error(),
						RequestID: requestcontext.RequestID(ctx),
					})
				}
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Handler serves GET /admin/csrf-token for browser sessions.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operator := auth.GetOperator(ctx)

	token, expiresAt, err := h.svc.IssueToken(operator, time.Now())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue csrf token",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"csrf_token": token,
		"expires_at": expiresAt.UTC(),
	})
}
