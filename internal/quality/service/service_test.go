package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"ralphbot/internal/quality/models"
	"ralphbot/internal/quality/store/memory"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/platform/audit/publisher"
	auditmem "ralphbot/pkg/platform/audit/store/memory"
)

type QualityServiceSuite struct {
	suite.Suite
	svc     *Service
	store   *memory.InMemoryStore
	auditSt *auditmem.InMemoryStore
	ctx     context.Context
}

func TestQualityServiceSuite(t *testing.T) {
	suite.Run(t, new(QualityServiceSuite))
}

func (s *QualityServiceSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.auditSt = auditmem.NewInMemoryStore()
	svc, err := New(s.store, WithAuditPublisher(publisher.NewPublisher(s.auditSt)))
	s.Require().NoError(err)
	s.svc = svc
	s.ctx = context.Background()
}

func (s *QualityServiceSuite) accept(userID id.UserID, n int) *TierChange {
	var last *TierChange
	for i := 0; i < n; i++ {
		_, change, err := s.svc.RecordOutcome(s.ctx, userID, models.OutcomeAccepted)
		s.Require().NoError(err)
		if change != nil {
			last = change
		}
	}
	return last
}

func (s *QualityServiceSuite) reject(userID id.UserID, n int) *TierChange {
	var last *TierChange
	for i := 0; i < n; i++ {
		_, change, err := s.svc.RecordOutcome(s.ctx, userID, models.OutcomeRejected)
		s.Require().NoError(err)
		if change != nil {
			last = change
		}
	}
	return last
}

func (s *QualityServiceSuite) TestGet() {
	s.Run("unknown author gets a zero record on the standard tier", func() {
		userID := id.NewUserID()
		record, err := s.svc.Get(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(userID, record.UserID)
		s.Equal(0, record.Submitted)
		s.Equal(models.TierStandard, record.Tier())

		mult, err := s.svc.Multiplier(s.ctx, userID)
		s.Require().NoError(err)
		s.InDelta(1.0, mult, 0.0001)
	})

	s.Run("nil user id is invalid", func() {
		_, err := s.svc.Get(s.ctx, id.UserID{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *QualityServiceSuite) TestRecordSubmission() {
	userID := id.NewUserID()
	record, err := s.svc.RecordSubmission(s.ctx, userID)
	s.Require().NoError(err)
	s.Equal(1, record.Submitted)
	s.Equal(0, record.Accepted)
	s.Equal(models.TierStandard, record.Tier())

	record, err = s.svc.RecordSubmission(s.ctx, userID)
	s.Require().NoError(err)
	s.Equal(2, record.Submitted)
}

func (s *QualityServiceSuite) TestRecordOutcome() {
	s.Run("fifth accept promotes to trusted", func() {
		userID := id.NewUserID()
		s.Require().Nil(s.accept(userID, 4), "four accepts stay standard")

		_, change, err := s.svc.RecordOutcome(s.ctx, userID, models.OutcomeAccepted)
		s.Require().NoError(err)
		s.Require().NotNil(change)
		s.Equal(models.TierStandard, change.From)
		s.Equal(models.TierTrusted, change.To)

		mult, err := s.svc.Multiplier(s.ctx, userID)
		s.Require().NoError(err)
		s.InDelta(1.5, mult, 0.0001)
	})

	s.Run("fifth reject demotes to probation", func() {
		userID := id.NewUserID()
		s.Require().Nil(s.reject(userID, 4))

		_, change, err := s.svc.RecordOutcome(s.ctx, userID, models.OutcomeRejected)
		s.Require().NoError(err)
		s.Require().NotNil(change)
		s.Equal(models.TierStandard, change.From)
		s.Equal(models.TierProbation, change.To)

		mult, err := s.svc.Multiplier(s.ctx, userID)
		s.Require().NoError(err)
		s.InDelta(0.5, mult, 0.0001)
	})

	s.Run("duplicates count toward probation", func() {
		userID := id.NewUserID()
		s.Require().Nil(s.reject(userID, 3))

		_, change, err := s.svc.RecordOutcome(s.ctx, userID, models.OutcomeDuplicate)
		s.Require().NoError(err)
		s.Nil(change)

		record, change, err := s.svc.RecordOutcome(s.ctx, userID, models.OutcomeDuplicate)
		s.Require().NoError(err)
		s.Require().NotNil(change)
		s.Equal(models.TierProbation, change.To)
		s.Equal(2, record.Duplicates)
	})

	s.Run("tier change is audited", func() {
		userID := id.NewUserID()
		s.accept(userID, 5)

		events, err := s.auditSt.ListByUser(s.ctx, userID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventUserTierChanged), events[0].Action)
		s.Equal(audit.CategoryOperations, events[0].Category)
		s.Equal(string(models.TierTrusted), events[0].Decision)
		s.Equal(string(models.TierStandard), events[0].Reason)
	})

	s.Run("unknown outcome is invalid", func() {
		_, _, err := s.svc.RecordOutcome(s.ctx, id.NewUserID(), models.Outcome("escalated"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *QualityServiceSuite) TestReverseOutcome() {
	s.Run("reopening a reject lifts probation", func() {
		userID := id.NewUserID()
		change := s.reject(userID, 5)
		s.Require().NotNil(change)
		s.Equal(models.TierProbation, change.To)

		record, change, err := s.svc.ReverseOutcome(s.ctx, userID, models.OutcomeRejected)
		s.Require().NoError(err)
		s.Require().NotNil(change)
		s.Equal(models.TierProbation, change.From)
		s.Equal(models.TierStandard, change.To)
		s.Equal(4, record.Rejected)
	})

	s.Run("counters floor at zero", func() {
		userID := id.NewUserID()
		record, change, err := s.svc.ReverseOutcome(s.ctx, userID, models.OutcomeDuplicate)
		s.Require().NoError(err)
		s.Nil(change)
		s.Equal(0, record.Duplicates)
	})
}

func (s *QualityServiceSuite) TestErase() {
	userID := id.NewUserID()
	s.accept(userID, 5)

	s.Require().NoError(s.svc.Erase(s.ctx, userID))

	record, err := s.svc.Get(s.ctx, userID)
	s.Require().NoError(err)
	s.Equal(0, record.Accepted)
	s.Equal(models.TierStandard, record.Tier())
}
