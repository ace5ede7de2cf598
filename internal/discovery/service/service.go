// Package service drives the guided discovery flow. Exactly one session
// exists per chat; starting again restarts the flow. Idle sessions
// expire after a TTL, after which any interaction restarts from the top.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ralphbot/internal/discovery/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/platform/sentinel"
	"ralphbot/pkg/requestcontext"
)

// DefaultIdleTTL bounds how long an idle session stays resumable.
const DefaultIdleTTL = 30 * time.Minute

// Store persists discovery sessions keyed by chat.
type Store interface {
	Save(ctx context.Context, session *models.Session) error
	FindByChat(ctx context.Context, chatID int64) (*models.Session, error)
	DeleteByChat(ctx context.Context, chatID int64) error
	DeleteByUser(ctx context.Context, userID id.UserID) error
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error)
}

// AuditPublisher records session lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// prompts is the per-stage copy. The bot layer runs it through the
// active persona before sending, so the stored text stays neutral.
var prompts = map[models.Stage]string{
	models.StageWelcome:     "Hi! I help turn your idea into a requirements doc. Say anything to begin.",
	models.StageProblem:     "What problem are you trying to solve?",
	models.StageAudience:    "Who is this for? Describe the audience.",
	models.StageFeatures:    "List the features you have in mind, one per line.",
	models.StageConstraints: "Any constraints (budget, tech, deadlines)? Send /skip if none.",
	models.StageReview:      "Here's what I have. Reply yes to confirm, or /back to change something.",
	models.StageComplete:    "All set! Generating your document now.",
}

// Prompt returns the neutral prompt copy for a stage.
func Prompt(stage models.Stage) string {
	return prompts[stage]
}

type Service struct {
	store    Store
	ttl      time.Duration
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

// WithIdleTTL overrides the idle expiry.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("discovery store is required")
	}
	s := &Service{
		store:  store,
		ttl:    DefaultIdleTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins a new flow for the chat, replacing any existing session.
func (s *Service) Start(ctx context.Context, chatID int64, userID id.UserID) (*models.Session, error) {
	now := requestcontext.Now(ctx)
	session, err := models.NewSession(chatID, userID, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save discovery session: %w", err)
	}
	s.emit(ctx, audit.EventSessionStarted, session)
	return session, nil
}

// Current loads the chat's session. Expired sessions surface as
// CodeExpired after being dropped, so the bot restarts the flow.
func (s *Service) Current(ctx context.Context, chatID int64) (*models.Session, error) {
	session, err := s.store.FindByChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no discovery session for this chat")
		}
		return nil, fmt.Errorf("load discovery session: %w", err)
	}
	now := requestcontext.Now(ctx)
	if session.Expired(now, s.ttl) {
		if err := s.store.DeleteByChat(ctx, chatID); err != nil {
			s.logger.WarnContext(ctx, "drop expired discovery session failed",
				slog.Int64("chat_id", chatID), slog.Any("error", err))
		}
		s.emit(ctx, audit.EventSessionExpired, session)
		return nil, dErrors.New(dErrors.CodeExpired, "discovery session expired")
	}
	return session, nil
}

// Answer applies text to the chat's current stage and returns the
// updated session.
func (s *Service) Answer(ctx context.Context, chatID int64, text string) (*models.Session, error) {
	return s.mutate(ctx, chatID, func(session *models.Session, now time.Time) error {
		return session.Answer(text, now)
	})
}

// Back steps the chat's session one stage toward the start.
func (s *Service) Back(ctx context.Context, chatID int64) (*models.Session, error) {
	return s.mutate(ctx, chatID, func(session *models.Session, now time.Time) error {
		return session.Back(now)
	})
}

// Skip passes the current stage when it is skippable.
func (s *Service) Skip(ctx context.Context, chatID int64) (*models.Session, error) {
	return s.mutate(ctx, chatID, func(session *models.Session, now time.Time) error {
		return session.Skip(now)
	})
}

// Cancel drops the chat's session.
func (s *Service) Cancel(ctx context.Context, chatID int64) error {
	session, err := s.Current(ctx, chatID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteByChat(ctx, chatID); err != nil {
		return fmt.Errorf("delete discovery session: %w", err)
	}
	s.emit(ctx, audit.EventSessionCancelled, session)
	return nil
}

// Result snapshots a completed session for the document generator and
// drops the session so the chat can start over.
func (s *Service) Result(ctx context.Context, chatID int64) (*models.Result, error) {
	session, err := s.Current(ctx, chatID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	result, err := session.Result(now)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteByChat(ctx, chatID); err != nil {
		return nil, fmt.Errorf("delete completed discovery session: %w", err)
	}
	s.emit(ctx, audit.EventSessionCompleted, session)
	return result, nil
}

// ListByUser returns the user's sessions for the GDPR export.
func (s *Service) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	sessions, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list discovery sessions: %w", err)
	}
	return sessions, nil
}

// Erase drops all of a user's sessions. Part of account erasure.
func (s *Service) Erase(ctx context.Context, userID id.UserID) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("erase discovery sessions: %w", err)
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, chatID int64, fn func(session *models.Session, now time.Time) error) (*models.Session, error) {
	session, err := s.Current(ctx, chatID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	if err := fn(session, now); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save discovery session: %w", err)
	}
	return session, nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, session *models.Session) {
	if s.auditPub == nil {
		return
	}
	_ = s.auditPub.Emit(ctx, audit.Event{
		UserID:    session.UserID,
		Subject:   session.ID.String(),
		Action:    string(event),
		Decision:  string(session.Stage),
		RequestID: requestcontext.RequestID(ctx),
	})
}
