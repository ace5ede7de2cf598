// Package service owns the feedback queue lifecycle: intake with
// redaction and duplicate detection, the status state machine, priority
// scoring, and the triage operations the admin API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ralphbot/internal/events"
	"ralphbot/internal/feedback/dedup"
	"ralphbot/internal/feedback/metrics"
	"ralphbot/internal/feedback/models"
	"ralphbot/internal/feedback/scoring"
	"ralphbot/internal/platform/tracing"
	qualitymodels "ralphbot/internal/quality/models"
	qualitysvc "ralphbot/internal/quality/service"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/platform/privacy"
	"ralphbot/pkg/platform/sentinel"
	"ralphbot/pkg/requestcontext"
)

// Store persists feedback entries. Execute must serialize concurrent
// mutations of the same entry.
type Store interface {
	Save(ctx context.Context, f *models.Feedback) error
	FindByID(ctx context.Context, feedbackID id.FeedbackID) (*models.Feedback, error)
	Execute(ctx context.Context, feedbackID id.FeedbackID, fn func(f *models.Feedback) error) (*models.Feedback, error)
	ListByStatus(ctx context.Context, statuses []models.Status, limit int) ([]*models.Feedback, error)
	ListByAuthor(ctx context.Context, authorID id.UserID) ([]*models.Feedback, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}

// QualityTracker is the slice of the quality service the queue needs.
type QualityTracker interface {
	Multiplier(ctx context.Context, userID id.UserID) (float64, error)
	RecordSubmission(ctx context.Context, userID id.UserID) (*qualitymodels.QualityRecord, error)
	RecordOutcome(ctx context.Context, userID id.UserID, outcome qualitymodels.Outcome) (*qualitymodels.QualityRecord, *TierChange, error)
	ReverseOutcome(ctx context.Context, userID id.UserID, outcome qualitymodels.Outcome) (*qualitymodels.QualityRecord, *TierChange, error)
}

// TierChange aliases the quality service's tier-change report.
type TierChange = qualitysvc.TierChange

// AuditPublisher records queue actions in the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store     Store
	detector  *dedup.Detector
	quality   QualityTracker
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	auditPub  AuditPublisher
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEventPublisher(pub events.Publisher) Option {
	return func(s *Service) {
		s.publisher = pub
	}
}

func New(store Store, detector *dedup.Detector, quality QualityTracker, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("feedback store is required")
	}
	if detector == nil {
		return nil, errors.New("duplicate detector is required")
	}
	if quality == nil {
		return nil, errors.New("quality tracker is required")
	}
	s := &Service{
		store:    store,
		detector: detector,
		quality:  quality,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitInput carries a new report from the bot or the admin API.
type SubmitInput struct {
	AuthorID id.UserID
	ChatID   int64
	Kind     models.Kind
	Severity models.Severity
	Text     string
}

// Submit redacts, classifies, scores, and persists a new entry. Exact or
// near duplicates land directly in the duplicate status pointing at
// their canonical entry.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.Feedback, error) {
	ctx, span := tracing.Start(ctx, "feedback.Submit",
		attribute.String("feedback.kind", string(in.Kind)))
	var err error
	defer func() { tracing.End(span, err) }()

	now := requestcontext.Now(ctx)

	f, err := models.New(in.AuthorID, in.ChatID, in.Kind, in.Severity, privacy.MaskPANs(in.Text), now)
	if err != nil {
		return nil, err
	}

	match, err := s.detector.Classify(ctx, f)
	if err != nil {
		return nil, err
	}
	if match != nil {
		canonical, err := s.store.FindByID(ctx, match.CanonicalID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("load canonical feedback: %w", err)
		}
		// A stale index hit (canonical gone) is treated as original.
		if canonical != nil {
			if err := f.CanMarkDuplicate(canonical); err == nil {
				f.ApplyDuplicate(canonical.ID, now)
				if s.metrics != nil {
					s.metrics.RecordDuplicate(match.Exact)
				}
			}
		}
	}

	multiplier, err := s.quality.Multiplier(ctx, in.AuthorID)
	if err != nil {
		return nil, err
	}
	f.Priority = scoring.Score(f, multiplier, now)

	if err = s.store.Save(ctx, f); err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}

	if _, err := s.quality.RecordSubmission(ctx, in.AuthorID); err != nil {
		s.logger.WarnContext(ctx, "record submission failed",
			slog.String("author_id", in.AuthorID.String()), slog.Any("error", err))
	}
	if f.Status == models.StatusDuplicate {
		s.recordOutcome(ctx, f.AuthorID, qualitymodels.OutcomeDuplicate)
	}

	if s.metrics != nil {
		s.metrics.Submitted.Inc()
		s.metrics.RecordPriority(f.Priority)
	}
	s.emitAudit(ctx, audit.EventFeedbackSubmitted, f, string(f.Status))
	s.publish(ctx, events.QueueEvent{
		Type:       events.TypeSubmitted,
		FeedbackID: f.ID,
		Actor:      in.AuthorID.String(),
		To:         string(f.Status),
		Priority:   f.Priority,
		At:         now,
	})
	return f, nil
}

// Get loads one entry.
func (s *Service) Get(ctx context.Context, feedbackID id.FeedbackID) (*models.Feedback, error) {
	if feedbackID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "feedback id is required")
	}
	f, err := s.store.FindByID(ctx, feedbackID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "feedback not found")
		}
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	return f, nil
}

// List returns entries filtered by status, highest priority first. An
// empty status list returns everything.
func (s *Service) List(ctx context.Context, statuses []models.Status, limit int) ([]*models.Feedback, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := s.store.ListByStatus(ctx, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return entries, nil
}

// ListByAuthor returns everything a user submitted, oldest first. Feeds
// the GDPR data export.
func (s *Service) ListByAuthor(ctx context.Context, authorID id.UserID) ([]*models.Feedback, error) {
	if authorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "author id is required")
	}
	entries, err := s.store.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("list feedback by author: %w", err)
	}
	return entries, nil
}

// CountByStatus returns the queue's status histogram.
func (s *Service) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count feedback: %w", err)
	}
	return counts, nil
}

// Next returns the highest-priority entry ready for work.
func (s *Service) Next(ctx context.Context) (*models.Feedback, error) {
	entries, err := s.store.ListByStatus(ctx, []models.Status{models.StatusTriaged, models.StatusAccepted}, 1)
	if err != nil {
		return nil, fmt.Errorf("pick next feedback: %w", err)
	}
	if len(entries) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "queue is empty")
	}
	return entries[0], nil
}

// Triage moves a pending entry into the triaged state.
func (s *Service) Triage(ctx context.Context, feedbackID id.FeedbackID, reason string) (*models.Feedback, error) {
	return s.Transition(ctx, feedbackID, models.StatusTriaged, reason)
}

// Accept approves a triaged entry for the backlog.
func (s *Service) Accept(ctx context.Context, feedbackID id.FeedbackID, reason string) (*models.Feedback, error) {
	return s.Transition(ctx, feedbackID, models.StatusAccepted, reason)
}

// Start marks an accepted entry as being worked on.
func (s *Service) Start(ctx context.Context, feedbackID id.FeedbackID, reason string) (*models.Feedback, error) {
	return s.Transition(ctx, feedbackID, models.StatusInProgress, reason)
}

// Resolve closes out an in-progress entry. Terminal.
func (s *Service) Resolve(ctx context.Context, feedbackID id.FeedbackID, reason string) (*models.Feedback, error) {
	return s.Transition(ctx, feedbackID, models.StatusResolved, reason)
}

// Reject declines an entry.
func (s *Service) Reject(ctx context.Context, feedbackID id.FeedbackID, reason string) (*models.Feedback, error) {
	return s.Transition(ctx, feedbackID, models.StatusRejected, reason)
}

// Reopen returns a rejected or duplicate entry to pending.
func (s *Service) Reopen(ctx context.Context, feedbackID id.FeedbackID, reason string) (*models.Feedback, error) {
	return s.Transition(ctx, feedbackID, models.StatusPending, reason)
}

// Transition applies one state-machine move. Quality counters follow the
// verdicts: entering accepted/rejected/duplicate counts against the
// author, reopening reverses the counter the prior status earned.
func (s *Service) Transition(ctx context.Context, feedbackID id.FeedbackID, target models.Status, reason string) (*models.Feedback, error) {
	ctx, span := tracing.Start(ctx, "feedback.Transition",
		attribute.String("feedback.target", string(target)))
	var err error
	defer func() { tracing.End(span, err) }()

	if feedbackID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "feedback id is required")
	}
	if target == models.StatusDuplicate {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "duplicate verdicts go through MarkDuplicate")
	}

	now := requestcontext.Now(ctx)
	var from models.Status

	f, err := s.store.Execute(ctx, feedbackID, func(f *models.Feedback) error {
		from = f.Status
		return f.TransitionTo(target, now)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "feedback not found")
		}
		return nil, err
	}

	s.applyQualitySideEffects(ctx, f, from, target)
	s.finishTransition(ctx, f, from, target, reason)
	return f, nil
}

// MarkDuplicate rules the entry a duplicate of canonicalID.
func (s *Service) MarkDuplicate(ctx context.Context, feedbackID, canonicalID id.FeedbackID, reason string) (*models.Feedback, error) {
	if feedbackID.IsNil() || canonicalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "feedback id and canonical id are required")
	}

	canonical, err := s.Get(ctx, canonicalID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var from models.Status
	f, err := s.store.Execute(ctx, feedbackID, func(f *models.Feedback) error {
		from = f.Status
		if err := f.CanMarkDuplicate(canonical); err != nil {
			return err
		}
		f.ApplyDuplicate(canonical.ID, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "feedback not found")
		}
		return nil, err
	}

	s.recordOutcome(ctx, f.AuthorID, qualitymodels.OutcomeDuplicate)
	s.emitAudit(ctx, audit.EventDuplicateMarked, f, reason)
	if s.metrics != nil {
		s.metrics.RecordTransition(string(from), string(models.StatusDuplicate))
	}
	s.publish(ctx, events.QueueEvent{
		Type:       events.TypeTransitioned,
		FeedbackID: f.ID,
		Actor:      s.actor(ctx),
		From:       string(from),
		To:         string(models.StatusDuplicate),
		Priority:   f.Priority,
		At:         now,
	})
	return f, nil
}

// OverrideDuplicate records that feedbackID and otherID are not
// duplicates of each other and, when the entry currently sits in the
// duplicate status, reopens it. The recorded pair suppresses future
// automatic verdicts between the two.
func (s *Service) OverrideDuplicate(ctx context.Context, feedbackID, otherID id.FeedbackID, reason string) (*models.Feedback, error) {
	if feedbackID.IsNil() || otherID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "feedback id and other id are required")
	}
	if feedbackID == otherID {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cannot override a feedback against itself")
	}

	if err := s.detector.RecordOverride(ctx, feedbackID, otherID); err != nil {
		return nil, err
	}

	f, err := s.Get(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	if f.Status == models.StatusDuplicate && f.CanonicalID != nil && *f.CanonicalID == otherID {
		if f, err = s.Reopen(ctx, feedbackID, reason); err != nil {
			return nil, err
		}
	}

	s.emitAudit(ctx, audit.EventDuplicateOverridden, f, otherID.String())
	s.publish(ctx, events.QueueEvent{
		Type:       events.TypeOverridden,
		FeedbackID: f.ID,
		Actor:      s.actor(ctx),
		To:         string(f.Status),
		Priority:   f.Priority,
		At:         requestcontext.Now(ctx),
	})
	return f, nil
}

// Vote bumps an entry's vote count and rescores it.
func (s *Service) Vote(ctx context.Context, feedbackID id.FeedbackID) (*models.Feedback, error) {
	if feedbackID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "feedback id is required")
	}
	now := requestcontext.Now(ctx)

	f, err := s.store.Execute(ctx, feedbackID, func(f *models.Feedback) error {
		f.AddVote(now)
		return s.rescoreLocked(ctx, f, now)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "feedback not found")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Votes.Inc()
		s.metrics.RecordPriority(f.Priority)
	}
	s.emitAudit(ctx, audit.EventFeedbackVoted, f, "")
	s.publish(ctx, events.QueueEvent{
		Type:       events.TypeVoted,
		FeedbackID: f.ID,
		Actor:      s.actor(ctx),
		Priority:   f.Priority,
		At:         now,
	})
	return f, nil
}

// Rescore recomputes one entry's priority with current votes, author
// tier, and age.
func (s *Service) Rescore(ctx context.Context, feedbackID id.FeedbackID) (*models.Feedback, error) {
	if feedbackID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "feedback id is required")
	}
	now := requestcontext.Now(ctx)

	f, err := s.store.Execute(ctx, feedbackID, func(f *models.Feedback) error {
		return s.rescoreLocked(ctx, f, now)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "feedback not found")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordPriority(f.Priority)
	}
	s.publish(ctx, events.QueueEvent{
		Type:       events.TypeRescored,
		FeedbackID: f.ID,
		Priority:   f.Priority,
		At:         now,
	})
	return f, nil
}

// RescoreAuthor rescores every open entry by the author. Called when a
// tier change moves the author's multiplier.
func (s *Service) RescoreAuthor(ctx context.Context, authorID id.UserID) error {
	entries, err := s.ListByAuthor(ctx, authorID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.Status.Open() {
			continue
		}
		if _, err := s.Rescore(ctx, entry.ID); err != nil {
			s.logger.WarnContext(ctx, "rescore after tier change failed",
				slog.String("feedback_id", entry.ID.String()), slog.Any("error", err))
		}
	}
	return nil
}

// SweepAges rescores all open entries so the daily age boost lands.
// Meant to run from a ticker in main.
func (s *Service) SweepAges(ctx context.Context) (int, error) {
	entries, err := s.store.ListByStatus(ctx,
		[]models.Status{models.StatusPending, models.StatusTriaged, models.StatusAccepted, models.StatusInProgress}, 0)
	if err != nil {
		return 0, fmt.Errorf("list open feedback: %w", err)
	}
	swept := 0
	for _, entry := range entries {
		if _, err := s.Rescore(ctx, entry.ID); err != nil {
			s.logger.WarnContext(ctx, "age sweep rescore failed",
				slog.String("feedback_id", entry.ID.String()), slog.Any("error", err))
			continue
		}
		swept++
	}
	return swept, nil
}

// AnonymizeByAuthor detaches all of a user's entries from the account.
// Part of GDPR erasure; the redacted text stays as product signal.
func (s *Service) AnonymizeByAuthor(ctx context.Context, authorID id.UserID) (int, error) {
	entries, err := s.ListByAuthor(ctx, authorID)
	if err != nil {
		return 0, err
	}
	now := requestcontext.Now(ctx)
	count := 0
	for _, entry := range entries {
		if _, err := s.store.Execute(ctx, entry.ID, func(f *models.Feedback) error {
			f.Anonymize(now)
			return nil
		}); err != nil {
			return count, fmt.Errorf("anonymize feedback %s: %w", entry.ID, err)
		}
		count++
	}
	return count, nil
}

// rescoreLocked recomputes priority inside a store Execute callback.
func (s *Service) rescoreLocked(ctx context.Context, f *models.Feedback, now time.Time) error {
	multiplier, err := s.quality.Multiplier(ctx, f.AuthorID)
	if err != nil {
		return err
	}
	f.Priority = scoring.Score(f, multiplier, now)
	f.UpdatedAt = now
	return nil
}

// applyQualitySideEffects maps a transition to the author's quality
// counters. Re-entering accepted from in_progress is a pause, not a new
// verdict, so only the triaged edge counts.
func (s *Service) applyQualitySideEffects(ctx context.Context, f *models.Feedback, from, to models.Status) {
	switch {
	case to == models.StatusAccepted && from == models.StatusTriaged:
		s.recordOutcome(ctx, f.AuthorID, qualitymodels.OutcomeAccepted)
	case to == models.StatusRejected:
		s.recordOutcome(ctx, f.AuthorID, qualitymodels.OutcomeRejected)
	case to == models.StatusPending && from == models.StatusRejected:
		s.reverseOutcome(ctx, f.AuthorID, qualitymodels.OutcomeRejected)
	case to == models.StatusPending && from == models.StatusDuplicate:
		s.reverseOutcome(ctx, f.AuthorID, qualitymodels.OutcomeDuplicate)
	}
}

func (s *Service) recordOutcome(ctx context.Context, authorID id.UserID, outcome qualitymodels.Outcome) {
	if authorID.IsNil() {
		return
	}
	_, change, err := s.quality.RecordOutcome(ctx, authorID, outcome)
	if err != nil {
		s.logger.WarnContext(ctx, "record quality outcome failed",
			slog.String("author_id", authorID.String()), slog.Any("error", err))
		return
	}
	s.rescoreOnTierChange(ctx, authorID, change)
}

func (s *Service) reverseOutcome(ctx context.Context, authorID id.UserID, outcome qualitymodels.Outcome) {
	if authorID.IsNil() {
		return
	}
	_, change, err := s.quality.ReverseOutcome(ctx, authorID, outcome)
	if err != nil {
		s.logger.WarnContext(ctx, "reverse quality outcome failed",
			slog.String("author_id", authorID.String()), slog.Any("error", err))
		return
	}
	s.rescoreOnTierChange(ctx, authorID, change)
}

func (s *Service) rescoreOnTierChange(ctx context.Context, authorID id.UserID, change *TierChange) {
	if change == nil {
		return
	}
	if err := s.RescoreAuthor(ctx, authorID); err != nil {
		s.logger.WarnContext(ctx, "rescore author after tier change failed",
			slog.String("author_id", authorID.String()), slog.Any("error", err))
	}
}

func (s *Service) finishTransition(ctx context.Context, f *models.Feedback, from, to models.Status, reason string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(string(from), string(to))
	}
	event := audit.EventFeedbackTransitioned
	s.emitAuditWithDecision(ctx, event, f, string(to), reason)
	s.publish(ctx, events.QueueEvent{
		Type:       events.TypeTransitioned,
		FeedbackID: f.ID,
		Actor:      s.actor(ctx),
		From:       string(from),
		To:         string(to),
		Priority:   f.Priority,
		At:         f.UpdatedAt,
	})
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, f *models.Feedback, reason string) {
	s.emitAuditWithDecision(ctx, event, f, string(f.Status), reason)
}

func (s *Service) emitAuditWithDecision(ctx context.Context, event audit.AuditEvent, f *models.Feedback, decision, reason string) {
	if s.auditPub == nil {
		return
	}
	_ = s.auditPub.Emit(ctx, audit.Event{
		UserID:    f.AuthorID,
		Subject:   f.ID.String(),
		Action:    string(event),
		Decision:  decision,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   s.actor(ctx),
	})
}

func (s *Service) publish(ctx context.Context, event events.QueueEvent) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, event)
}

// actor returns who drives the current request: the authenticated user
// if present, otherwise empty (system actions).
func (s *Service) actor(ctx context.Context) string {
	if userID := requestcontext.UserID(ctx); !userID.IsNil() {
		return userID.String()
	}
	return ""
}
