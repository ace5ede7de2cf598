// Package handler serves the admin surface of the feedback queue.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ralphbot/internal/feedback/models"
	"ralphbot/internal/feedback/service"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/platform/httputil"
	"ralphbot/pkg/requestcontext"
)

// Service defines the queue operations the admin API exposes.
type Service interface {
	Submit(ctx context.Context, in service.SubmitInput) (*models.Feedback, error)
	Get(ctx context.Context, feedbackID id.FeedbackID) (*models.Feedback, error)
	List(ctx context.Context, statuses []models.Status, limit int) ([]*models.Feedback, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
	Next(ctx context.Context) (*models.Feedback, error)
	Transition(ctx context.Context, feedbackID id.FeedbackID, target models.Status, reason string) (*models.Feedback, error)
	MarkDuplicate(ctx context.Context, feedbackID, canonicalID id.FeedbackID, reason string) (*models.Feedback, error)
	Vote(ctx context.Context, feedbackID id.FeedbackID) (*models.Feedback, error)
	OverrideDuplicate(ctx context.Context, feedbackID, otherID id.FeedbackID, reason string) (*models.Feedback, error)
	Rescore(ctx context.Context, feedbackID id.FeedbackID) (*models.Feedback, error)
}

// Handler wires the feedback queue to the admin router.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the admin feedback routes. The router applies auth
// middleware before these run.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/feedback", h.handleList)
	r.Post("/admin/feedback", h.handleSubmit)
	r.Get("/admin/feedback/{id}", h.handleGet)
	r.Post("/admin/feedback/{id}/transition", h.handleTransition)
	r.Post("/admin/feedback/{id}/duplicate", h.handleMarkDuplicate)
	r.Post("/admin/feedback/{id}/vote", h.handleVote)
	r.Post("/admin/feedback/{id}/duplicate-override", h.handleDuplicateOverride)
	r.Post("/admin/feedback/{id}/rescore", h.handleRescore)
	r.Get("/admin/queue", h.handleQueueCounts)
	r.Get("/admin/queue/next", h.handleQueueNext)
}

// handleList serves GET /admin/feedback?status=pending,triaged&limit=50.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var statuses []models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, tok := range strings.Split(raw, ",") {
			status, err := models.ParseStatus(tok)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			statuses = append(statuses, status)
		}
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries, err := h.service.List(ctx, statuses, limit)
	if err != nil {
		h.logError(ctx, "failed to list feedback", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"feedback": entries,
		"count":    len(entries),
	})
}

type submitRequest struct {
	AuthorID string `json:"author_id"`
	ChatID   int64  `json:"chat_id"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// handleSubmit files an entry on behalf of a known user. API intake
// skips the bot dialog but goes through the same dedup and scoring.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	authorID, err := id.ParseUserID(req.AuthorID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "author_id is not a valid user id"))
		return
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	severity, err := models.ParseSeverity(req.Severity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entry, err := h.service.Submit(ctx, service.SubmitInput{
		AuthorID: authorID,
		ChatID:   req.ChatID,
		Kind:     kind,
		Severity: severity,
		Text:     req.Text,
	})
	if err != nil {
		h.logError(ctx, "submit failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	feedbackID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Get(ctx, feedbackID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

type transitionRequest struct {
	To     string `json:"to"`
	Reason string `json:"reason"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	feedbackID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	target, err := models.ParseStatus(req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entry, err := h.service.Transition(ctx, feedbackID, target, req.Reason)
	if err != nil {
		h.logError(ctx, "transition failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

type markDuplicateRequest struct {
	CanonicalID string `json:"canonical_id"`
	Reason      string `json:"reason"`
}

// handleMarkDuplicate records a duplicate verdict against the canonical
// entry. The transition endpoint rejects status=duplicate so the verdict
// always comes through here with a canonical id attached.
func (h *Handler) handleMarkDuplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	feedbackID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req markDuplicateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	canonicalID, err := id.ParseFeedbackID(req.CanonicalID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "canonical_id is not a valid feedback id"))
		return
	}

	entry, err := h.service.MarkDuplicate(ctx, feedbackID, canonicalID, req.Reason)
	if err != nil {
		h.logError(ctx, "duplicate verdict failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

// handleVote bumps the entry's vote counter and rescores it.
func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	feedbackID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Vote(ctx, feedbackID)
	if err != nil {
		h.logError(ctx, "vote failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

type duplicateOverrideRequest struct {
	OtherID string `json:"other_id"`
	Reason  string `json:"reason"`
}

func (h *Handler) handleDuplicateOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	feedbackID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req duplicateOverrideRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	otherID, err := id.ParseFeedbackID(req.OtherID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "other_id is not a valid feedback id"))
		return
	}

	entry, err := h.service.OverrideDuplicate(ctx, feedbackID, otherID, req.Reason)
	if err != nil {
		h.logError(ctx, "duplicate override failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleRescore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	feedbackID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Rescore(ctx, feedbackID)
	if err != nil {
		h.logError(ctx, "rescore failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleQueueCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := h.service.CountByStatus(ctx)
	if err != nil {
		h.logError(ctx, "failed to count queue", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

// handleQueueNext serves the highest-priority open entry, 404 when the
// queue has nothing left to triage.
func (h *Handler) handleQueueNext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, err := h.service.Next(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (id.FeedbackID, bool) {
	feedbackID, err := id.ParseFeedbackID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid feedback id"))
		return id.FeedbackID{}, false
	}
	return feedbackID, true
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
