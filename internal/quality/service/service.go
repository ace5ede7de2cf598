// Package service tracks per-author feedback quality. Counters recorded
// on submission and triage verdicts derive a tier, and the tier drives
// the priority multiplier in the scoring formula.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ralphbot/internal/quality/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/platform/audit"
	"ralphbot/pkg/requestcontext"
)

// Store persists quality records. Apply must be atomic under
// concurrent verdicts on the same author.
type Store interface {
	Apply(ctx context.Context, userID id.UserID, delta models.Delta, now time.Time) (*models.QualityRecord, error)
	Get(ctx context.Context, userID id.UserID) (*models.QualityRecord, error)
	DeleteByUser(ctx context.Context, userID id.UserID) error
}

// AuditPublisher records tier transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// TierChange reports that a counter update moved the author across a
// tier boundary. Callers rescore the author's open feedback on change.
type TierChange struct {
	From models.Tier
	To   models.Tier
}

type Service struct {
	store    Store
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

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("quality store is required")
	}
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the author's record. Authors with no history get a zero
// record, which derives the standard tier.
func (s *Service) Get(ctx context.Context, userID id.UserID) (*models.QualityRecord, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	record, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get quality record: %w", err)
	}
	return record, nil
}

// Multiplier returns the priority multiplier for the author's current tier.
func (s *Service) Multiplier(ctx context.Context, userID id.UserID) (float64, error) {
	record, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return record.Tier().Multiplier(), nil
}

// RecordSubmission counts a new feedback entry against the author.
// Submissions never move the tier; the score only reads verdict counters.
func (s *Service) RecordSubmission(ctx context.Context, userID id.UserID) (*models.QualityRecord, error) {
	record, _, err := s.apply(ctx, userID, models.Delta{Submitted: 1})
	return record, err
}

// RecordOutcome counts a triage verdict against the author and reports
// any resulting tier change.
func (s *Service) RecordOutcome(ctx context.Context, userID id.UserID, outcome models.Outcome) (*models.QualityRecord, *TierChange, error) {
	delta, ok := outcome.Delta()
	if !ok {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown outcome: %s", outcome))
	}
	return s.apply(ctx, userID, delta)
}

// ReverseOutcome undoes a previously recorded verdict when the entry is
// reopened. Counters floor at zero in the store.
func (s *Service) ReverseOutcome(ctx context.Context, userID id.UserID, outcome models.Outcome) (*models.QualityRecord, *TierChange, error) {
	delta, ok := outcome.Delta()
	if !ok {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown outcome: %s", outcome))
	}
	return s.apply(ctx, userID, delta.Reverse())
}

// Erase drops the author's record. Part of account erasure.
func (s *Service) Erase(ctx context.Context, userID id.UserID) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("erase quality record: %w", err)
	}
	return nil
}

// apply runs one atomic counter update and detects tier transitions by
// reconstructing the prior record from the returned one. When the store
// floored a decrement the reconstruction can overstate the old counters,
// which at worst reports a change that triggers one redundant rescore.
func (s *Service) apply(ctx context.Context, userID id.UserID, delta models.Delta) (*models.QualityRecord, *TierChange, error) {
	if userID.IsNil() {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	now := requestcontext.Now(ctx)

	record, err := s.store.Apply(ctx, userID, delta, now)
	if err != nil {
		return nil, nil, fmt.Errorf("apply quality delta: %w", err)
	}

	before := models.QualityRecord{
		UserID:     userID,
		Submitted:  floorZero(record.Submitted - delta.Submitted),
		Accepted:   floorZero(record.Accepted - delta.Accepted),
		Rejected:   floorZero(record.Rejected - delta.Rejected),
		Duplicates: floorZero(record.Duplicates - delta.Duplicates),
	}

	oldTier, newTier := before.Tier(), record.Tier()
	if oldTier == newTier {
		return record, nil, nil
	}

	s.logger.InfoContext(ctx, "user quality tier changed",
		slog.String("user_id", userID.String()),
		slog.String("from", string(oldTier)),
		slog.String("to", string(newTier)),
	)
	if s.auditPub != nil {
		_ = s.auditPub.Emit(ctx, audit.Event{
			UserID:    userID,
			Action:    string(audit.EventUserTierChanged),
			Decision:  string(newTier),
			Reason:    string(oldTier),
			RequestID: requestcontext.RequestID(ctx),
		})
	}
	return record, &TierChange{From: oldTier, To: newTier}, nil
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
