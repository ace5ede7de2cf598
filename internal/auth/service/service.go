// Package service issues and revokes operator tokens. Issuance is
// gated on a bootstrap secret whose bcrypt hash lives in configuration;
// the tokens themselves are the JWTs the admin API checks on every
// request.
package service

import (
	"context"
	"log/slog"
	"time"

	"ralphbot/internal/device"
	"ralphbot/internal/jwttoken"
	"ralphbot/internal/jwttoken/revocation"
	"ralphbot/internal/secrets"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/requestcontext"
)

// DefaultTokenTTL bounds operator tokens when the caller does not
// configure a TTL.
const DefaultTokenTTL = 12 * time.Hour

// Roles an operator token can carry. Viewers read the queue; admins
// also mutate it.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// AuditPublisher records issuance and revocation in the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// IssuedToken is the result of a successful bootstrap exchange.
type IssuedToken struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Role       string    `json:"role"`
	DeviceName string    `json:"device_name,omitempty"`
}

// Service exchanges the bootstrap secret for operator JWTs and feeds
// revocations into the token revocation list.
type Service struct {
	tokens     *jwttoken.JWTService
	secretHash string
	trl        revocation.TokenRevocationList
	devices    *device.Service
	tokenTTL   time.Duration
	auditPub   AuditPublisher
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(pub AuditPublisher) Option {
	return func(s *Service) {
		s.auditPub = pub
	}
}

// WithTokenTTL overrides the issued token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// New builds the token issuance service. secretHash is the bcrypt hash
// of the bootstrap secret; empty disables issuance entirely.
func New(tokens *jwttoken.JWTService, secretHash string, trl revocation.TokenRevocationList, opts ...Option) (*Service, error) {
	if tokens == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "jwt service is required")
	}
	if trl == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "revocation list is required")
	}
	s := &Service{
		tokens:     tokens,
		secretHash: secretHash,
		trl:        trl,
		devices:    device.NewService(true),
		tokenTTL:   DefaultTokenTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue verifies the bootstrap secret and mints an operator token. The
// requesting device's User-Agent lands in the audit trail so operators
// can review where their tokens went.
func (s *Service) Issue(ctx context.Context, operator, secret, role string) (*IssuedToken, error) {
	if operator == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "operator is required")
	}
	if role == "" {
		role = RoleAdmin
	}
	if role != RoleAdmin && role != RoleViewer {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", role)
	}
	if s.secretHash == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "token issuance is disabled")
	}

	deviceName := device.ParseUserAgent(requestcontext.UserAgent(ctx))

	if err := secrets.Verify(secret, s.secretHash); err != nil {
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventAuthFailed),
			Subject:  operator,
			Reason:   "bootstrap secret mismatch",
			Decision: deviceName,
		})
		s.logger.WarnContext(ctx, "token issuance refused",
			slog.String("operator", operator),
			slog.String("device", deviceName),
		)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid bootstrap secret")
	}

	token, jti, err := s.tokens.GenerateAdminToken(operator, role, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not sign token")
	}

	s.emit(ctx, audit.Event{
		Action:   string(audit.EventTokenIssued),
		Subject:  jti,
		ActorID:  operator,
		Decision: deviceName,
	})

	return &IssuedToken{
		Token:      token,
		ExpiresAt:  time.Now().Add(s.tokenTTL),
		Role:       role,
		DeviceName: deviceName,
	}, nil
}

// Revoke invalidates the presented token for the rest of its life.
// Expired or malformed tokens are rejected before they reach the list.
func (s *Service) Revoke(ctx context.Context, rawToken string) error {
	claims, err := s.tokens.ValidateToken(rawToken)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "token carries no jti")
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return dErrors.New(dErrors.CodeExpired, "token already expired")
	}

	if err := s.trl.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not revoke token")
	}

	s.emit(ctx, audit.Event{
		Action:  string(audit.EventTokenRevoked),
		Subject: claims.ID,
		ActorID: claims.Operator,
	})
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPub == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditPub.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", slog.Any("error", err))
	}
}
