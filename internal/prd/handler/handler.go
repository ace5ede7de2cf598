// Package handler serves the admin view of generated documents.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ralphbot/internal/prd/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/platform/httputil"
	"ralphbot/pkg/requestcontext"
)

// Service defines the document operations the admin API exposes.
type Service interface {
	Get(ctx context.Context, chatID int64) (*models.Document, error)
	Revision(ctx context.Context, chatID int64, number int) (*models.Revision, error)
	Diff(ctx context.Context, chatID int64, from, to int) (string, error)
	ReorderTasks(ctx context.Context, chatID int64, ids []id.TaskID) (*models.Document, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the admin document routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/prd/{chatID}", h.handleGet)
	r.Post("/admin/prd/{chatID}/tasks/reorder", h.handleReorder)
}

// handleGet serves the document for a chat. ?rev=N narrows to one
// revision; ?diff=a,b renders a line diff between two revisions.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID, ok := h.pathChatID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	if raw := query.Get("diff"); raw != "" {
		from, to, err := parseDiffRange(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		diff, err := h.service.Diff(ctx, chatID, from, to)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"chat_id": chatID,
			"from":    from,
			"to":      to,
			"diff":    diff,
		})
		return
	}

	if raw := query.Get("rev"); raw != "" {
		number, err := strconv.Atoi(raw)
		if err != nil || number < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "rev must be a positive revision number"))
			return
		}
		revision, err := h.service.Revision(ctx, chatID, number)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, revision)
		return
	}

	doc, err := h.service.Get(ctx, chatID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

type reorderRequest struct {
	TaskIDs []string `json:"task_ids"`
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID, ok := h.pathChatID(w, r)
	if !ok {
		return
	}

	var req reorderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ids := make([]id.TaskID, 0, len(req.TaskIDs))
	for _, raw := range req.TaskIDs {
		taskID, err := id.ParseTaskID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "invalid task id %q", raw))
			return
		}
		ids = append(ids, taskID)
	}

	doc, err := h.service.ReorderTasks(ctx, chatID, ids)
	if err != nil {
		h.logger.WarnContext(ctx, "task reorder rejected",
			"chat_id", chatID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) pathChatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid chat id"))
		return 0, false
	}
	return chatID, true
}

// parseDiffRange parses "a,b" into two revision numbers.
func parseDiffRange(raw string) (from, to int, err error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, dErrors.New(dErrors.CodeInvalidInput, "diff expects two revision numbers, like diff=1,2")
	}
	from, errFrom := strconv.Atoi(strings.TrimSpace(parts[0]))
	to, errTo := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errFrom != nil || errTo != nil || from < 1 || to < 1 {
		return 0, 0, dErrors.New(dErrors.CodeInvalidInput, "diff expects two positive revision numbers")
	}
	return from, to, nil
}
