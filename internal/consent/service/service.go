// Package service persists consent decisions and provides purpose-aware
// checks. It keeps orchestration out of handlers and domain logic thin.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ralphbot/internal/consent/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/requestcontext"
)

// Store persists consent records.
type Store interface {
	Save(ctx context.Context, record models.ConsentRecord) error
	ListByUser(ctx context.Context, userID id.UserID) ([]models.ConsentRecord, error)
	Revoke(ctx context.Context, userID id.UserID, purpose id.ConsentPurpose, revokedAt time.Time) error
	DeleteByUser(ctx context.Context, userID id.UserID) error
}

// AuditPublisher records consent changes in the compliance trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
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

// WithTTL overrides how long a grant stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("consent store is required")
	}
	s := &Service{
		store:  store,
		ttl:    365 * 24 * time.Hour,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Grant validates and grants consent for multiple purposes. A grant for an
// already-consented purpose extends it with a fresh record.
func (s *Service) Grant(ctx context.Context, userID id.UserID, purposes []string) ([]models.ConsentRecord, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if len(purposes) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "purposes array must not be empty")
	}

	parsed := make([]id.ConsentPurpose, 0, len(purposes))
	for _, raw := range purposes {
		purpose, err := id.ParseConsentPurpose(raw)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid purpose: "+raw)
		}
		parsed = append(parsed, purpose)
	}

	now := requestcontext.Now(ctx)
	records := make([]models.ConsentRecord, 0, len(parsed))
	for _, purpose := range parsed {
		record := models.ConsentRecord{
			ID:        id.NewConsentID(),
			UserID:    userID,
			Purpose:   purpose,
			GrantedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		if err := s.store.Save(ctx, record); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant consent")
		}
		records = append(records, record)
		s.emit(ctx, audit.EventConsentGranted, userID, purpose)
	}
	return records, nil
}

// Revoke withdraws consent for one purpose. Revoking a purpose that was
// never granted is not an error; the outcome is the same.
func (s *Service) Revoke(ctx context.Context, userID id.UserID, rawPurpose string) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	purpose, err := id.ParseConsentPurpose(rawPurpose)
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid purpose: "+rawPurpose)
	}
	if err := s.store.Revoke(ctx, userID, purpose, requestcontext.Now(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent")
	}
	s.emit(ctx, audit.EventConsentRevoked, userID, purpose)
	return nil
}

// RevokeAll withdraws every purpose. Used by account erasure.
func (s *Service) RevokeAll(ctx context.Context, userID id.UserID) error {
	now := requestcontext.Now(ctx)
	for _, purpose := range id.AllConsentPurposes() {
		if err := s.store.Revoke(ctx, userID, purpose, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent")
		}
		s.emit(ctx, audit.EventConsentRevoked, userID, purpose)
	}
	return nil
}

// Require returns CodeMissingConsent when consent is missing or expired.
func (s *Service) Require(ctx context.Context, userID id.UserID, purpose id.ConsentPurpose) error {
	consents, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consents")
	}
	if err := models.EnsureConsent(consents, purpose, requestcontext.Now(ctx)); err != nil {
		s.emit(ctx, audit.EventConsentChecked, userID, purpose)
		return err
	}
	return nil
}

// Has reports whether consent is currently active, for callers that branch
// on it instead of failing.
func (s *Service) Has(ctx context.Context, userID id.UserID, purpose id.ConsentPurpose) (bool, error) {
	consents, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consents")
	}
	return models.EnsureConsent(consents, purpose, requestcontext.Now(ctx)) == nil, nil
}

// List returns the raw consent history for one user.
func (s *Service) List(ctx context.Context, userID id.UserID) ([]models.ConsentRecord, error) {
	records, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consents")
	}
	return records, nil
}

// Status folds the history into one row per purpose, newest record wins.
func (s *Service) Status(ctx context.Context, userID id.UserID) ([]models.ConsentStatus, error) {
	records, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consents")
	}

	now := requestcontext.Now(ctx)
	latest := make(map[id.ConsentPurpose]models.ConsentRecord, len(records))
	for _, r := range records {
		if cur, ok := latest[r.Purpose]; !ok || r.GrantedAt.After(cur.GrantedAt) {
			latest[r.Purpose] = r
		}
	}

	statuses := make([]models.ConsentStatus, 0, len(id.AllConsentPurposes()))
	for _, purpose := range id.AllConsentPurposes() {
		status := models.ConsentStatus{Purpose: purpose.String()}
		if r, ok := latest[purpose]; ok {
			status.Active = r.IsActive(now)
			status.GrantedAt = &r.GrantedAt
			status.ExpiresAt = &r.ExpiresAt
			status.RevokedAt = r.RevokedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Erase removes the consent history entirely. Revocations are audited
// before deletion so the compliance trail survives the purge.
func (s *Service) Erase(ctx context.Context, userID id.UserID) error {
	if err := s.RevokeAll(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to erase consents")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, userID id.UserID, purpose id.ConsentPurpose) {
	if s.auditPub == nil {
		return
	}
	_ = s.auditPub.Emit(ctx, audit.Event{
		Action:    string(event),
		UserID:    userID,
		Purpose:   purpose.String(),
		RequestID: requestcontext.RequestID(ctx),
	})
}
