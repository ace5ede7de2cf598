// Package service owns the PRD lifecycle: generating markdown from
// discovery results (LLM draft with a deterministic template fallback),
// the revision history with diffs, and the task list operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.opentelemetry.io/otel/attribute"

	discovery "ralphbot/internal/discovery/models"
	"ralphbot/internal/platform/tracing"
	"ralphbot/internal/prd/generator"
	"ralphbot/internal/prd/llm"
	"ralphbot/internal/prd/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/platform/circuit"
	"ralphbot/pkg/platform/sentinel"
	"ralphbot/pkg/requestcontext"
)

// Store persists documents per chat. Execute must serialize concurrent
// mutations of the same chat's document.
type Store interface {
	Save(ctx context.Context, d *models.Document) error
	FindByChat(ctx context.Context, chatID int64) (*models.Document, error)
	Execute(ctx context.Context, chatID int64, fn func(d *models.Document) error) (*models.Document, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]models.Document, error)
	DeleteByChat(ctx context.Context, chatID int64) error
	DeleteByUser(ctx context.Context, userID id.UserID) (int, error)
}

// AuditPublisher records document actions in the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store    Store
	provider llm.Provider
	breaker  *circuit.Breaker
	logger   *slog.Logger
	auditPub AuditPublisher
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(pub AuditPublisher) Option {
	return func(s *Service) {
		s.auditPub = pub
	}
}

// WithProvider enables LLM drafting. Without it every generation uses
// the template.
func WithProvider(p llm.Provider) Option {
	return func(s *Service) {
		s.provider = p
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("prd store is required")
	}
	s := &Service{
		store:   store,
		breaker: circuit.New("llm"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate drafts PRD markdown from a completed discovery session and
// stores it as a new revision. The task list is rebuilt from the new
// Features section, so regeneration resets task progress.
func (s *Service) Generate(ctx context.Context, res *discovery.Result) (*models.Document, error) {
	ctx, span := tracing.Start(ctx, "prd.Generate",
		attribute.Int64("chat_id", res.ChatID))
	var err error
	defer func() { tracing.End(span, err) }()

	markdown, source := s.draft(ctx, res)
	now := requestcontext.Now(ctx)

	doc, findErr := s.store.FindByChat(ctx, res.ChatID)
	if findErr != nil {
		if !errors.Is(findErr, sentinel.ErrNotFound) {
			err = fmt.Errorf("loading document: %w", findErr)
			return nil, err
		}
		doc = models.New(res.ChatID, res.UserID, now)
	}

	rev := doc.AddRevision(markdown, source, now)
	doc.ReplaceTasks(generator.ParseFeatureTasks(markdown), now)
	if err = s.store.Save(ctx, doc); err != nil {
		err = fmt.Errorf("saving document: %w", err)
		return nil, err
	}

	event := audit.EventDocumentGenerated
	if rev.Number > 1 {
		event = audit.EventDocumentRevised
	}
	s.emitAudit(ctx, event, doc, fmt.Sprintf("revision %d via %s", rev.Number, source))
	s.logger.InfoContext(ctx, "prd generated",
		slog.Int64("chat_id", doc.ChatID),
		slog.Int("revision", rev.Number),
		slog.String("source", string(source)),
		slog.Int("tasks", len(doc.Tasks)))
	return doc, nil
}

// draft asks the provider for markdown and validates the section set.
// Any failure, including an open circuit, lands on the template.
func (s *Service) draft(ctx context.Context, res *discovery.Result) (string, models.Source) {
	if s.provider == nil {
		return generator.RenderTemplate(res), models.SourceTemplate
	}
	if s.breaker.IsOpen() {
		// Probe anyway: successes are how the breaker heals.
		s.logger.DebugContext(ctx, "llm circuit open, probing")
	}

	resp, err := s.provider.Complete(ctx, &llm.Request{
		SystemPrompt: generator.SystemPrompt,
		UserPrompt:   generator.UserPrompt(res),
	})
	if err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "llm circuit opened", slog.String("error", err.Error()))
		}
		s.logger.WarnContext(ctx, "llm draft failed, using template", slog.String("error", err.Error()))
		return generator.RenderTemplate(res), models.SourceTemplate
	}
	if !generator.ValidateSections(resp.Content) {
		s.breaker.RecordFailure()
		s.logger.WarnContext(ctx, "llm draft missing required sections, using template",
			slog.String("model", resp.Model))
		return generator.RenderTemplate(res), models.SourceTemplate
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "llm circuit closed")
	}
	return resp.Content, models.SourceLLM
}

// Get returns the chat's document.
func (s *Service) Get(ctx context.Context, chatID int64) (*models.Document, error) {
	doc, err := s.store.FindByChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no document for chat %d", chatID)
		}
		return nil, fmt.Errorf("loading document: %w", err)
	}
	return doc, nil
}

// Revision returns one revision by its 1-based number.
func (s *Service) Revision(ctx context.Context, chatID int64, number int) (*models.Revision, error) {
	doc, err := s.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return doc.RevisionByNumber(number)
}

// Diff renders a unified-style diff between two revisions.
func (s *Service) Diff(ctx context.Context, chatID int64, from, to int) (string, error) {
	doc, err := s.Get(ctx, chatID)
	if err != nil {
		return "", err
	}
	a, err := doc.RevisionByNumber(from)
	if err != nil {
		return "", err
	}
	b, err := doc.RevisionByNumber(to)
	if err != nil {
		return "", err
	}
	return renderDiff(a, b), nil
}

// renderDiff produces a line-oriented diff with -/+/space prefixes.
func renderDiff(a, b *models.Revision) string {
	dmp := diffmatchpatch.New()
	aChars, bChars, lines := dmp.DiffLinesToChars(a.Markdown, b.Markdown)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(aChars, bChars, false), lines)

	var out strings.Builder
	fmt.Fprintf(&out, "--- revision %d\n+++ revision %d\n", a.Number, b.Number)
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			out.WriteString(prefix + line + "\n")
		}
	}
	return out.String()
}

// AddTask appends a task to the chat's document.
func (s *Service) AddTask(ctx context.Context, chatID int64, title string) (models.Task, error) {
	var task models.Task
	_, err := s.mutate(ctx, chatID, func(d *models.Document) error {
		var addErr error
		task, addErr = d.AddTask(title, requestcontext.Now(ctx))
		return addErr
	})
	return task, err
}

// RemoveTask deletes a task.
func (s *Service) RemoveTask(ctx context.Context, chatID int64, taskID id.TaskID) error {
	_, err := s.mutate(ctx, chatID, func(d *models.Document) error {
		return d.RemoveTask(taskID, requestcontext.Now(ctx))
	})
	return err
}

// StartTask moves a task to in_progress.
func (s *Service) StartTask(ctx context.Context, chatID int64, taskID id.TaskID) (models.Task, error) {
	return s.transitionTask(ctx, chatID, taskID, models.TaskInProgress)
}

// CompleteTask moves a task to done.
func (s *Service) CompleteTask(ctx context.Context, chatID int64, taskID id.TaskID) (models.Task, error) {
	return s.transitionTask(ctx, chatID, taskID, models.TaskDone)
}

// BlockTask marks a task blocked.
func (s *Service) BlockTask(ctx context.Context, chatID int64, taskID id.TaskID) (models.Task, error) {
	return s.transitionTask(ctx, chatID, taskID, models.TaskBlocked)
}

// UnblockTask returns a blocked task to todo.
func (s *Service) UnblockTask(ctx context.Context, chatID int64, taskID id.TaskID) (models.Task, error) {
	return s.transitionTask(ctx, chatID, taskID, models.TaskTodo)
}

// ReopenTask returns a done task to todo.
func (s *Service) ReopenTask(ctx context.Context, chatID int64, taskID id.TaskID) (models.Task, error) {
	return s.transitionTask(ctx, chatID, taskID, models.TaskTodo)
}

func (s *Service) transitionTask(ctx context.Context, chatID int64, taskID id.TaskID, target models.TaskStatus) (models.Task, error) {
	var task models.Task
	_, err := s.mutate(ctx, chatID, func(d *models.Document) error {
		var trErr error
		task, trErr = d.TransitionTask(taskID, target, requestcontext.Now(ctx))
		return trErr
	})
	return task, err
}

// MoveTask places the task at the given list index.
func (s *Service) MoveTask(ctx context.Context, chatID int64, taskID id.TaskID, index int) error {
	_, err := s.mutate(ctx, chatID, func(d *models.Document) error {
		return d.MoveTaskTo(taskID, index, requestcontext.Now(ctx))
	})
	return err
}

// ReorderTasks rearranges the list to match ids, which must name every
// current task exactly once.
func (s *Service) ReorderTasks(ctx context.Context, chatID int64, ids []id.TaskID) (*models.Document, error) {
	doc, err := s.mutate(ctx, chatID, func(d *models.Document) error {
		return d.ReorderTasks(ids, requestcontext.Now(ctx))
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.EventTasksReordered, doc, fmt.Sprintf("%d tasks", len(ids)))
	return doc, nil
}

// ListByUser returns every document the user owns, for data export.
func (s *Service) ListByUser(ctx context.Context, userID id.UserID) ([]models.Document, error) {
	docs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// EraseByUser removes every document the user owns, for erasure.
func (s *Service) EraseByUser(ctx context.Context, userID id.UserID) (int, error) {
	deleted, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("erasing documents: %w", err)
	}
	return deleted, nil
}

func (s *Service) mutate(ctx context.Context, chatID int64, fn func(d *models.Document) error) (*models.Document, error) {
	doc, err := s.store.Execute(ctx, chatID, fn)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no document for chat %d", chatID)
		}
		return nil, err
	}
	return doc, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, doc *models.Document, reason string) {
	if s.auditPub == nil {
		return
	}
	_ = s.auditPub.Emit(ctx, audit.Event{
		UserID:    doc.UserID,
		Subject:   doc.ID.String(),
		Action:    string(event),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	})
}
