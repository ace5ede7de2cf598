package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"ralphbot/internal/users/models"
	"ralphbot/internal/users/store/memory"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	auditmem "ralphbot/pkg/platform/audit/store/memory"
	"ralphbot/pkg/platform/audit/publisher"
)

type UserServiceSuite struct {
	suite.Suite
	svc     *Service
	store   *memory.InMemoryStore
	auditSt *auditmem.InMemoryStore
	ctx     context.Context
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.auditSt = auditmem.NewInMemoryStore()
	svc, err := New(s.store, WithAuditPublisher(publisher.NewPublisher(s.auditSt)))
	s.Require().NoError(err)
	s.svc = svc
	s.ctx = context.Background()
}

func (s *UserServiceSuite) TestGetOrCreate() {
	s.Run("creates on first contact", func() {
		user, err := s.svc.GetOrCreate(s.ctx, 1001, "Ralph", "ralphw")
		s.Require().NoError(err)
		s.False(user.ID.IsNil())
		s.Equal(int64(1001), user.TelegramID)
		s.Equal("Ralph", user.FirstName)

		events, err := s.auditSt.ListByUser(s.ctx, user.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventUserCreated), events[0].Action)
		s.Equal(audit.CategoryCompliance, events[0].Category)
	})

	s.Run("returns existing on repeat contact", func() {
		first, err := s.svc.GetOrCreate(s.ctx, 1002, "Lisa", "lisas")
		s.Require().NoError(err)
		second, err := s.svc.GetOrCreate(s.ctx, 1002, "Lisa", "lisas")
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)
	})

	s.Run("folds in a renamed profile", func() {
		first, err := s.svc.GetOrCreate(s.ctx, 1003, "Bart", "elbarto")
		s.Require().NoError(err)
		renamed, err := s.svc.GetOrCreate(s.ctx, 1003, "Bartholomew", "elbarto")
		s.Require().NoError(err)
		s.Equal(first.ID, renamed.ID)
		s.Equal("Bartholomew", renamed.FirstName)
	})

	s.Run("rejects zero telegram id", func() {
		_, err := s.svc.GetOrCreate(s.ctx, 0, "Nobody", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *UserServiceSuite) TestGet() {
	s.Run("missing user is not_found", func() {
		_, err := s.svc.Get(s.ctx, id.NewUserID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *UserServiceSuite) TestSetPersona() {
	user, err := s.svc.GetOrCreate(s.ctx, 2001, "Homer", "")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.SetPersona(s.ctx, user.ID, "simpsons:homer"))

	reloaded, err := s.svc.Get(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal("simpsons:homer", reloaded.ActivePersona)

	events, err := s.auditSt.ListByUser(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal(string(audit.EventPersonaChanged), events[len(events)-1].Action)

	s.Run("same persona is a no-op", func() {
		before := len(events)
		s.Require().NoError(s.svc.SetPersona(s.ctx, user.ID, "simpsons:homer"))
		after, err := s.auditSt.ListByUser(s.ctx, user.ID)
		s.Require().NoError(err)
		s.Len(after, before)
	})
}

func (s *UserServiceSuite) TestAnonymize() {
	user, err := s.svc.GetOrCreate(s.ctx, 3001, "Marge", "margeb")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Anonymize(s.ctx, user.ID))

	reloaded, err := s.svc.Get(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal(models.AnonymizedFirstName, reloaded.FirstName)
	s.Empty(reloaded.Username)
	s.Equal(int64(3001), reloaded.TelegramID)
}

func (s *UserServiceSuite) TestDelete() {
	user, err := s.svc.GetOrCreate(s.ctx, 4001, "Burns", "")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Delete(s.ctx, user.ID))

	_, err = s.svc.Get(s.ctx, user.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Run("deleting twice is not_found", func() {
		err := s.svc.Delete(s.ctx, user.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
