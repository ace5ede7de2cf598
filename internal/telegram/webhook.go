package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	ratelimit "ralphbot/internal/ratelimit/models"
	audit "ralphbot/pkg/platform/audit"
	request "ralphbot/pkg/platform/middleware/request"
)

// SecretTokenHeader is the header Telegram echoes the webhook secret in.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxUpdateBytes bounds the webhook body; Bot API updates are small.
const maxUpdateBytes = 1 << 20

// Enqueuer hands authenticated updates to the worker pool.
type Enqueuer interface {
	Enqueue(update *Update) error
}

// ChatLimiter is the slice of the rate-limit service the webhook needs.
type ChatLimiter interface {
	CheckChat(ctx context.Context, chatID int64) (*ratelimit.RateLimitResult, error)
}

// AuditPublisher records rejected updates in the security trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// WebhookHandler receives Bot API updates. The route is guarded by the
// secret-token middleware; past that point Telegram always gets a 200 —
// processing failures are our problem, not Telegram's, and a non-200
// would only make it resend the same update.
type WebhookHandler struct {
	enqueuer Enqueuer
	limiter  ChatLimiter
	logger   *slog.Logger
	auditPub AuditPublisher
}

// WebhookOption configures a WebhookHandler.
type WebhookOption func(*WebhookHandler)

func WithWebhookAuditPublisher(pub AuditPublisher) WebhookOption {
	return func(h *WebhookHandler) {
		h.auditPub = pub
	}
}

func WithWebhookLimiter(limiter ChatLimiter) WebhookOption {
	return func(h *WebhookHandler) {
		h.limiter = limiter
	}
}

func NewWebhookHandler(enqueuer Enqueuer, logger *slog.Logger, opts ...WebhookOption) *WebhookHandler {
	h := &WebhookHandler{
		enqueuer: enqueuer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleUpdate decodes and enqueues one update.
func (h *WebhookHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		h.reject(ctx, "unreadable body", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.reject(ctx, "malformed update payload", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	chatID := update.ChatID()
	if chatID == 0 {
		// Updates the bot does not act on (edits, channel posts).
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.limiter != nil {
		result, err := h.limiter.CheckChat(ctx, chatID)
		if err != nil {
			h.logger.WarnContext(ctx, "chat rate limit check failed",
				slog.Int64("chat_id", chatID),
				slog.String("error", err.Error()))
		} else if !result.Allowed {
			h.logger.InfoContext(ctx, "chat rate limited, dropping update",
				slog.Int64("chat_id", chatID),
				slog.Int64("update_id", update.UpdateID))
			if h.auditPub != nil {
				_ = h.auditPub.Emit(ctx, audit.Event{
					Subject:   "chat",
					Action:    string(audit.EventRateLimitExceeded),
					Reason:    "telegram chat limit",
					RequestID: request.GetRequestID(ctx),
				})
			}
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	if err := h.enqueuer.Enqueue(&update); err != nil {
		if errors.Is(err, ErrQueueFull) {
			h.logger.WarnContext(ctx, "update queue full, dropping update",
				slog.Int64("chat_id", chatID),
				slog.Int64("update_id", update.UpdateID))
		} else {
			h.logger.ErrorContext(ctx, "enqueue failed",
				slog.Int64("update_id", update.UpdateID),
				slog.String("error", err.Error()))
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) reject(ctx context.Context, reason string, err error) {
	h.logger.WarnContext(ctx, "webhook update rejected",
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	if h.auditPub == nil {
		return
	}
	_ = h.auditPub.Emit(ctx, audit.Event{
		Subject:   "telegram_webhook",
		Action:    string(audit.EventWebhookRejected),
		Reason:    reason,
		RequestID: request.GetRequestID(ctx),
	})
}
