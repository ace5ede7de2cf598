// Package gdpr aggregates the per-domain privacy operations into the
// two user-facing rights: data export and erasure. Each domain owns its
// slice of the data; this service only orchestrates.
package gdpr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	consentmodels "ralphbot/internal/consent/models"
	discoverymodels "ralphbot/internal/discovery/models"
	feedbackmodels "ralphbot/internal/feedback/models"
	prdmodels "ralphbot/internal/prd/models"
	qualitymodels "ralphbot/internal/quality/models"
	usermodels "ralphbot/internal/users/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/requestcontext"
)

// Users is the slice of the user service erasure and export need.
type Users interface {
	Get(ctx context.Context, userID id.UserID) (*usermodels.User, error)
	Delete(ctx context.Context, userID id.UserID) error
}

// Consents reports and removes consent records.
type Consents interface {
	Status(ctx context.Context, userID id.UserID) ([]consentmodels.ConsentStatus, error)
	RevokeAll(ctx context.Context, userID id.UserID) error
	Erase(ctx context.Context, userID id.UserID) error
}

// FeedbackQueue exposes the author-scoped queue operations.
type FeedbackQueue interface {
	ListByAuthor(ctx context.Context, authorID id.UserID) ([]*feedbackmodels.Feedback, error)
	AnonymizeByAuthor(ctx context.Context, authorID id.UserID) (int, error)
}

// Discovery exposes the user's discovery sessions.
type Discovery interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]*discoverymodels.Session, error)
	Erase(ctx context.Context, userID id.UserID) error
}

// Quality exposes the user's reporter record.
type Quality interface {
	Get(ctx context.Context, userID id.UserID) (*qualitymodels.QualityRecord, error)
	Erase(ctx context.Context, userID id.UserID) error
}

// Documents exposes the user's PRDs.
type Documents interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]prdmodels.Document, error)
	EraseByUser(ctx context.Context, userID id.UserID) (int, error)
}

// ChatSessions removes transient conversation state.
type ChatSessions interface {
	DeleteByUser(ctx context.Context, userID id.UserID) error
}

// AuditPublisher records export and erasure in the compliance trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ExportBundle is the JSON document returned by the data-export right.
type ExportBundle struct {
	ExportedAt time.Time                     `json:"exported_at"`
	User       *usermodels.User              `json:"user"`
	Consents   []consentmodels.ConsentStatus `json:"consents"`
	Feedback   []*feedbackmodels.Feedback    `json:"feedback"`
	Discovery  []*discoverymodels.Session    `json:"discovery_sessions"`
	Quality    *qualitymodels.QualityRecord  `json:"quality,omitempty"`
	Documents  []prdmodels.Document          `json:"documents"`
}

// ErasureReport summarizes what the erasure touched.
type ErasureReport struct {
	FeedbackAnonymized int `json:"feedback_anonymized"`
	DocumentsDeleted   int `json:"documents_deleted"`
}

type Service struct {
	users     Users
	consents  Consents
	feedback  FeedbackQueue
	discovery Discovery
	quality   Quality
	documents Documents
	sessions  ChatSessions
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

func WithChatSessions(sessions ChatSessions) Option {
	return func(s *Service) {
		s.sessions = sessions
	}
}

func New(users Users, consents Consents, feedback FeedbackQueue, discovery Discovery, quality Quality, documents Documents, opts ...Option) (*Service, error) {
	if users == nil || consents == nil || feedback == nil || discovery == nil || quality == nil || documents == nil {
		return nil, errors.New("gdpr service requires every domain dependency")
	}
	s := &Service{
		users:     users,
		consents:  consents,
		feedback:  feedback,
		discovery: discovery,
		quality:   quality,
		documents: documents,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Export assembles everything held about the user.
func (s *Service) Export(ctx context.Context, userID id.UserID) (*ExportBundle, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	bundle := &ExportBundle{
		ExportedAt: requestcontext.Now(ctx),
		User:       user,
	}
	if bundle.Consents, err = s.consents.Status(ctx, userID); err != nil {
		return nil, fmt.Errorf("exporting consents: %w", err)
	}
	if bundle.Feedback, err = s.feedback.ListByAuthor(ctx, userID); err != nil {
		return nil, fmt.Errorf("exporting feedback: %w", err)
	}
	if bundle.Discovery, err = s.discovery.ListByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("exporting discovery sessions: %w", err)
	}
	if bundle.Documents, err = s.documents.ListByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("exporting documents: %w", err)
	}
	record, err := s.quality.Get(ctx, userID)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, fmt.Errorf("exporting quality record: %w", err)
	}
	bundle.Quality = record

	s.emit(ctx, audit.EventDataExported, userID, fmt.Sprintf("%d feedback, %d sessions, %d documents",
		len(bundle.Feedback), len(bundle.Discovery), len(bundle.Documents)))
	return bundle, nil
}

// Erase removes the user's data everywhere. Feedback entries stay in
// the queue with the author anonymized so triage history survives; all
// other domains delete outright. Partial failure stops the run so a
// retry can finish the job.
func (s *Service) Erase(ctx context.Context, userID id.UserID) (*ErasureReport, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, err
	}

	report := &ErasureReport{}
	var err error
	if report.FeedbackAnonymized, err = s.feedback.AnonymizeByAuthor(ctx, userID); err != nil {
		return nil, fmt.Errorf("anonymizing feedback: %w", err)
	}
	if err = s.discovery.Erase(ctx, userID); err != nil {
		return nil, fmt.Errorf("erasing discovery sessions: %w", err)
	}
	if report.DocumentsDeleted, err = s.documents.EraseByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("erasing documents: %w", err)
	}
	if err = s.quality.Erase(ctx, userID); err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, fmt.Errorf("erasing quality record: %w", err)
	}
	if s.sessions != nil {
		if err = s.sessions.DeleteByUser(ctx, userID); err != nil {
			return nil, fmt.Errorf("erasing chat sessions: %w", err)
		}
	}
	if err = s.consents.RevokeAll(ctx, userID); err != nil {
		return nil, fmt.Errorf("revoking consents: %w", err)
	}
	if err = s.consents.Erase(ctx, userID); err != nil {
		return nil, fmt.Errorf("erasing consent records: %w", err)
	}
	if err = s.users.Delete(ctx, userID); err != nil {
		return nil, fmt.Errorf("deleting user: %w", err)
	}

	s.logger.InfoContext(ctx, "user erased",
		slog.String("user_id", userID.String()),
		slog.Int("feedback_anonymized", report.FeedbackAnonymized),
		slog.Int("documents_deleted", report.DocumentsDeleted))
	s.emit(ctx, audit.EventUserDeleted, userID, "erasure request")
	return report, nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, userID id.UserID, reason string) {
	if s.auditPub == nil {
		return
	}
	_ = s.auditPub.Emit(ctx, audit.Event{
		UserID:    userID,
		Subject:   userID.String(),
		Action:    string(event),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	})
}
