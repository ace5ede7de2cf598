package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	discovery "ralphbot/internal/discovery/models"
	"ralphbot/internal/prd/generator"
	"ralphbot/internal/prd/llm"
	"ralphbot/internal/prd/llm/mocks"
	"ralphbot/internal/prd/models"
	"ralphbot/internal/prd/store/memory"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/requestcontext"
)

var prdNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

const prdChatID = int64(42)

// scriptedProvider returns canned responses in order, then repeats the
// last one.
type scriptedProvider struct {
	responses []*llm.Response
	errs      []error
	calls     int
}

func (p *scriptedProvider) Complete(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	if p.errs != nil && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return p.responses[i], nil
}

type PRDSuite struct {
	suite.Suite
	ctx    context.Context
	userID id.UserID
}

func TestPRDSuite(t *testing.T) {
	suite.Run(t, new(PRDSuite))
}

func (s *PRDSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), prdNow)
	s.userID = id.NewUserID()
}

func (s *PRDSuite) newService(opts ...Option) *Service {
	svc, err := New(memory.NewInMemoryStore(), opts...)
	s.Require().NoError(err)
	return svc
}

func (s *PRDSuite) result(features string) *discovery.Result {
	return &discovery.Result{
		SessionID:   id.NewSessionID(),
		ChatID:      prdChatID,
		UserID:      s.userID,
		Problem:     "feedback gets lost in chat scroll",
		Audience:    "small product teams",
		Features:    features,
		Constraints: "single box",
		CompletedAt: prdNow,
	}
}

func (s *PRDSuite) TestGenerate() {
	s.Run("template path parses tasks from features", func() {
		svc := s.newService()
		doc, err := svc.Generate(s.ctx, s.result("queue\nscoring\nexport"))
		s.Require().NoError(err)

		s.Len(doc.Revisions, 1)
		s.Equal(models.SourceTemplate, doc.Revisions[0].Source)
		s.Require().Len(doc.Tasks, 3)
		s.Equal("queue", doc.Tasks[0].Title)
		s.Equal(models.TaskTodo, doc.Tasks[0].Status)
		s.Equal([]int{0, 1, 2}, []int{doc.Tasks[0].Order, doc.Tasks[1].Order, doc.Tasks[2].Order})
	})

	s.Run("regeneration appends a revision and resets tasks", func() {
		svc := s.newService()
		_, err := svc.Generate(s.ctx, s.result("queue\nscoring"))
		s.Require().NoError(err)

		started, err := svc.Get(s.ctx, prdChatID)
		s.Require().NoError(err)
		_, err = svc.StartTask(s.ctx, prdChatID, started.Tasks[0].ID)
		s.Require().NoError(err)

		doc, err := svc.Generate(s.ctx, s.result("queue\nscoring\nexport"))
		s.Require().NoError(err)
		s.Len(doc.Revisions, 2)
		s.Equal(2, doc.Latest().Number)
		s.Len(doc.Tasks, 3)
		for _, task := range doc.Tasks {
			s.Equal(models.TaskTodo, task.Status)
		}
	})

	s.Run("valid llm draft is stored as llm source", func() {
		draft := "## Overview\nx\n## Problem\nx\n## Audience\nx\n## Features\n- alpha\n- beta\n## Constraints\nx\n## Success Criteria\nx\n## Open Questions\nx\n"
		provider := &scriptedProvider{responses: []*llm.Response{{Content: draft, Model: "anthropic:test"}}}
		svc := s.newService(WithProvider(provider))

		doc, err := svc.Generate(s.ctx, s.result("ignored"))
		s.Require().NoError(err)
		s.Equal(models.SourceLLM, doc.Latest().Source)
		s.Require().Len(doc.Tasks, 2)
		s.Equal("alpha", doc.Tasks[0].Title)
	})

	s.Run("provider error falls back to template", func() {
		provider := &scriptedProvider{
			responses: []*llm.Response{nil},
			errs:      []error{errors.New("upstream down")},
		}
		svc := s.newService(WithProvider(provider))

		doc, err := svc.Generate(s.ctx, s.result("queue"))
		s.Require().NoError(err)
		s.Equal(models.SourceTemplate, doc.Latest().Source)
		s.Len(doc.Tasks, 1)
	})

	s.Run("draft missing sections falls back to template", func() {
		provider := &scriptedProvider{responses: []*llm.Response{{Content: "## Overview\nonly", Model: "m"}}}
		svc := s.newService(WithProvider(provider))

		doc, err := svc.Generate(s.ctx, s.result("queue"))
		s.Require().NoError(err)
		s.Equal(models.SourceTemplate, doc.Latest().Source)
	})
}

func (s *PRDSuite) TestGeneratePrompts() {
	ctrl := gomock.NewController(s.T())
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *llm.Request) (*llm.Response, error) {
			s.Equal(generator.SystemPrompt, req.SystemPrompt)
			s.Contains(req.UserPrompt, "feedback gets lost in chat scroll")
			s.Contains(req.UserPrompt, "small product teams")
			s.Contains(req.UserPrompt, "Constraints: single box")
			return nil, errors.New("upstream down")
		})

	svc := s.newService(WithProvider(provider))
	doc, err := svc.Generate(s.ctx, s.result("queue"))
	s.Require().NoError(err)
	s.Equal(models.SourceTemplate, doc.Latest().Source)
}

func (s *PRDSuite) TestRevisionsAndDiff() {
	svc := s.newService()
	_, err := svc.Generate(s.ctx, s.result("queue"))
	s.Require().NoError(err)
	_, err = svc.Generate(s.ctx, s.result("queue\nexport"))
	s.Require().NoError(err)

	s.Run("revision lookup by number", func() {
		rev, err := svc.Revision(s.ctx, prdChatID, 1)
		s.Require().NoError(err)
		s.Equal(1, rev.Number)

		_, err = svc.Revision(s.ctx, prdChatID, 9)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("diff marks the added feature line", func() {
		diff, err := svc.Diff(s.ctx, prdChatID, 1, 2)
		s.Require().NoError(err)
		s.Contains(diff, "--- revision 1")
		s.Contains(diff, "+++ revision 2")
		s.Contains(diff, "+- export")
	})

	s.Run("diff for unknown chat", func() {
		_, err := svc.Diff(s.ctx, int64(999), 1, 2)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *PRDSuite) TestTaskOperations() {
	svc := s.newService()
	_, err := svc.Generate(s.ctx, s.result("queue\nscoring\nexport"))
	s.Require().NoError(err)
	doc, err := svc.Get(s.ctx, prdChatID)
	s.Require().NoError(err)

	s.Run("start complete and reopen", func() {
		task, err := svc.StartTask(s.ctx, prdChatID, doc.Tasks[0].ID)
		s.Require().NoError(err)
		s.Equal(models.TaskInProgress, task.Status)

		task, err = svc.CompleteTask(s.ctx, prdChatID, doc.Tasks[0].ID)
		s.Require().NoError(err)
		s.Equal(models.TaskDone, task.Status)

		_, err = svc.StartTask(s.ctx, prdChatID, doc.Tasks[0].ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		task, err = svc.ReopenTask(s.ctx, prdChatID, doc.Tasks[0].ID)
		s.Require().NoError(err)
		s.Equal(models.TaskTodo, task.Status)
	})

	s.Run("block and unblock", func() {
		task, err := svc.BlockTask(s.ctx, prdChatID, doc.Tasks[1].ID)
		s.Require().NoError(err)
		s.Equal(models.TaskBlocked, task.Status)

		task, err = svc.UnblockTask(s.ctx, prdChatID, doc.Tasks[1].ID)
		s.Require().NoError(err)
		s.Equal(models.TaskTodo, task.Status)
	})

	s.Run("add and remove keep order dense", func() {
		added, err := svc.AddTask(s.ctx, prdChatID, "digest")
		s.Require().NoError(err)
		s.Equal(3, added.Order)

		s.Require().NoError(svc.RemoveTask(s.ctx, prdChatID, doc.Tasks[1].ID))
		after, err := svc.Get(s.ctx, prdChatID)
		s.Require().NoError(err)
		s.Require().Len(after.Tasks, 3)
		for i, task := range after.Tasks {
			s.Equal(i, task.Order)
		}
	})

	s.Run("reorder validates the permutation", func() {
		current, err := svc.Get(s.ctx, prdChatID)
		s.Require().NoError(err)

		ids := make([]id.TaskID, len(current.Tasks))
		for i, task := range current.Tasks {
			ids[len(ids)-1-i] = task.ID
		}
		reordered, err := svc.ReorderTasks(s.ctx, prdChatID, ids)
		s.Require().NoError(err)
		s.Equal(ids[0], reordered.Tasks[0].ID)

		_, err = svc.ReorderTasks(s.ctx, prdChatID, ids[:1])
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("operations on a chat without a document", func() {
		_, err := svc.AddTask(s.ctx, int64(777), "orphan")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *PRDSuite) TestErasure() {
	svc := s.newService()
	_, err := svc.Generate(s.ctx, s.result("queue"))
	s.Require().NoError(err)

	docs, err := svc.ListByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Len(docs, 1)

	deleted, err := svc.EraseByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(1, deleted)

	_, err = svc.Get(s.ctx, prdChatID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
