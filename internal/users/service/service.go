// Package service manages bot user profiles. Users surface on first
// contact; the service upserts them and owns the persona choice and the
// GDPR erasure hooks.
package service

import (
	"context"
	"errors"
	"log/slog"

	"ralphbot/internal/users/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/platform/sentinel"
	"ralphbot/pkg/requestcontext"
)

// Store persists user profiles.
type Store interface {
	Save(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	Delete(ctx context.Context, userID id.UserID) error
}

// AuditPublisher records profile lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
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
		return nil, errors.New("user store is required")
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

// GetOrCreate resolves a Telegram sender to a profile, creating one on
// first contact. Name changes on Telegram's side are folded in on each
// call so the profile tracks the current display name.
func (s *Service) GetOrCreate(ctx context.Context, telegramID int64, firstName, username string) (*models.User, error) {
	now := requestcontext.Now(ctx)

	user, err := s.store.FindByTelegramID(ctx, telegramID)
	switch {
	case err == nil:
		if user.FirstName != firstName || user.Username != username {
			user.FirstName = firstName
			user.Username = username
			user.UpdatedAt = now
			if err := s.store.Save(ctx, user); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
			}
		}
		return user, nil
	case errors.Is(err, sentinel.ErrNotFound):
		// fall through to create
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}

	user, err = models.NewUser(telegramID, firstName, username, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// concurrent first contact; the other writer won
			return s.store.FindByTelegramID(ctx, telegramID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.logger.InfoContext(ctx, "user created", "user_id", user.ID.String(), "telegram_id", telegramID)
	s.emit(ctx, audit.EventUserCreated, user.ID, "")
	return user, nil
}

// Get returns the profile by ID.
func (s *Service) Get(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// GetByTelegramID returns the profile for a Telegram account.
func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.store.FindByTelegramID(ctx, telegramID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// SetPersona records the active persona for a user. The persona registry
// validates the name before this is called; the profile just stores it.
func (s *Service) SetPersona(ctx context.Context, userID id.UserID, persona string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.ActivePersona == persona {
		return nil
	}
	user.ActivePersona = persona
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Save(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save persona")
	}
	s.emit(ctx, audit.EventPersonaChanged, userID, persona)
	return nil
}

// Anonymize strips the personal fields but keeps the row. Used when
// erasure must preserve feedback attribution counts.
func (s *Service) Anonymize(ctx context.Context, userID id.UserID) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	user.Anonymize(requestcontext.Now(ctx))
	if err := s.store.Save(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to anonymize user")
	}
	return nil
}

// Delete removes the profile entirely. The privacy service orchestrates
// the full erasure (consents, sessions, feedback anonymization) around it.
func (s *Service) Delete(ctx context.Context, userID id.UserID) error {
	err := s.store.Delete(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete user")
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", userID.String())
	s.emit(ctx, audit.EventUserDeleted, userID, "")
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, userID id.UserID, subject string) {
	if s.auditPub == nil {
		return
	}
	_ = s.auditPub.Emit(ctx, audit.Event{
		Action:    string(event),
		UserID:    userID,
		Subject:   subject,
		RequestID: requestcontext.RequestID(ctx),
	})
}
