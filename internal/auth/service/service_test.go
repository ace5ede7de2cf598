package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ralphbot/internal/jwttoken"
	"ralphbot/internal/jwttoken/revocation"
	"ralphbot/internal/secrets"
	dErrors "ralphbot/pkg/domain-errors"
	auditmem "ralphbot/pkg/platform/audit/store/memory"
	"ralphbot/pkg/platform/audit/publisher"
	"ralphbot/pkg/requestcontext"
)

const bootstrapSecret = "correct horse battery staple"

type AuthServiceSuite struct {
	suite.Suite
	svc     *Service
	tokens  *jwttoken.JWTService
	trl     *revocation.MemoryTRL
	auditSt *auditmem.InMemoryStore
	ctx     context.Context
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	hash, err := secrets.Hash(bootstrapSecret)
	s.Require().NoError(err)

	s.tokens = jwttoken.NewJWTService("auth-test-secret", "ralphbot", "ralphbot")
	s.trl = revocation.NewMemoryTRL()
	s.auditSt = auditmem.NewInMemoryStore()

	svc, err := New(s.tokens, hash, s.trl,
		WithAuditPublisher(publisher.NewPublisher(s.auditSt)),
		WithTokenTTL(time.Hour),
	)
	s.Require().NoError(err)
	s.svc = svc
	s.ctx = requestcontext.WithClientMetadata(context.Background(),
		"203.0.113.7", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 Chrome/120.0 Safari/537.36")
}

func (s *AuthServiceSuite) TestIssue() {
	s.Run("mints a valid admin token", func() {
		issued, err := s.svc.Issue(s.ctx, "ops", bootstrapSecret, RoleAdmin)
		s.Require().NoError(err)
		s.NotEmpty(issued.Token)
		s.Equal(RoleAdmin, issued.Role)
		s.Contains(issued.DeviceName, "Chrome")

		claims, err := s.tokens.ValidateToken(issued.Token)
		s.Require().NoError(err)
		s.Equal("ops", claims.Operator)
		s.Equal(RoleAdmin, claims.Role)
	})

	s.Run("defaults the role to admin", func() {
		issued, err := s.svc.Issue(s.ctx, "ops", bootstrapSecret, "")
		s.Require().NoError(err)
		s.Equal(RoleAdmin, issued.Role)
	})

	s.Run("rejects unknown roles", func() {
		_, err := s.svc.Issue(s.ctx, "ops", bootstrapSecret, "superuser")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects a wrong secret and audits the failure", func() {
		_, err := s.svc.Issue(s.ctx, "ops", "not the secret", RoleAdmin)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		events, err := s.auditSt.ListRecent(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().NotEmpty(events)
		s.Equal("auth_failed", events[0].Action)
	})

	s.Run("requires an operator name", func() {
		_, err := s.svc.Issue(s.ctx, "", bootstrapSecret, RoleAdmin)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *AuthServiceSuite) TestIssueDisabled() {
	svc, err := New(s.tokens, "", s.trl)
	s.Require().NoError(err)

	_, err = svc.Issue(s.ctx, "ops", bootstrapSecret, RoleAdmin)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *AuthServiceSuite) TestRevoke() {
	issued, err := s.svc.Issue(s.ctx, "ops", bootstrapSecret, RoleAdmin)
	s.Require().NoError(err)

	claims, err := s.tokens.ValidateToken(issued.Token)
	s.Require().NoError(err)

	s.Run("puts the jti on the revocation list", func() {
		s.Require().NoError(s.svc.Revoke(s.ctx, issued.Token))

		revoked, err := s.trl.IsRevoked(s.ctx, claims.ID)
		s.Require().NoError(err)
		s.True(revoked)
	})

	s.Run("rejects garbage tokens", func() {
		err := s.svc.Revoke(s.ctx, "not-a-jwt")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
