package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ralphbot/internal/events"
	"ralphbot/internal/feedback/dedup"
	"ralphbot/internal/feedback/models"
	feedbackmem "ralphbot/internal/feedback/store/memory"
	qualityservice "ralphbot/internal/quality/service"
	qualitymem "ralphbot/internal/quality/store/memory"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/requestcontext"
)

var svcNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// capturePublisher records queue events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.QueueEvent
}

func (p *capturePublisher) Publish(_ context.Context, event events.QueueEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byType(t events.EventType) []events.QueueEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.QueueEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type FeedbackServiceSuite struct {
	suite.Suite
	svc       *Service
	store     *feedbackmem.InMemoryStore
	quality   *qualityservice.Service
	published *capturePublisher
	ctx       context.Context
}

func TestFeedbackServiceSuite(t *testing.T) {
	suite.Run(t, new(FeedbackServiceSuite))
}

func (s *FeedbackServiceSuite) SetupTest() {
	s.store = feedbackmem.NewInMemoryStore()
	s.published = &capturePublisher{}

	qualitySvc, err := qualityservice.New(qualitymem.NewInMemoryStore())
	s.Require().NoError(err)
	s.quality = qualitySvc

	detector := dedup.New(
		dedup.NewInMemoryIndex(30*24*time.Hour),
		dedup.NewInMemoryOverrides(),
		s.store,
	)

	svc, err := New(s.store, detector, qualitySvc, WithEventPublisher(s.published))
	s.Require().NoError(err)
	s.svc = svc
	s.ctx = requestcontext.WithTime(context.Background(), svcNow)
}

func (s *FeedbackServiceSuite) submit(text string) *models.Feedback {
	f, err := s.svc.Submit(s.ctx, SubmitInput{
		AuthorID: id.NewUserID(),
		ChatID:   100,
		Kind:     models.KindBug,
		Severity: models.SeverityMedium,
		Text:     text,
	})
	s.Require().NoError(err)
	return f
}

func (s *FeedbackServiceSuite) TestSubmit() {
	s.Run("new entry is pending and scored", func() {
		f := s.submit("the queue loses votes on restart")
		s.Equal(models.StatusPending, f.Status)
		s.InDelta(30.0, f.Priority, 0.001) // medium bug, standard tier, fresh

		submitted := s.published.byType(events.TypeSubmitted)
		s.Require().Len(submitted, 1)
		s.Equal(f.ID, submitted[0].FeedbackID)
	})

	s.Run("card numbers are masked before storage", func() {
		f := s.submit("my card 4111 1111 1111 1111 got charged twice")
		s.NotContains(f.Text, "4111 1111 1111 1111")
		s.Contains(f.Text, "**** **** **** 1111")
	})

	s.Run("verbatim resubmission lands as duplicate", func() {
		first := s.submit("export never finishes for big chats")
		dup := s.submit("export never finishes for big chats")
		s.Equal(models.StatusDuplicate, dup.Status)
		s.Require().NotNil(dup.CanonicalID)
		s.Equal(first.ID, *dup.CanonicalID)
	})

	s.Run("empty text is invalid", func() {
		_, err := s.svc.Submit(s.ctx, SubmitInput{
			AuthorID: id.NewUserID(),
			ChatID:   1,
			Kind:     models.KindBug,
			Severity: models.SeverityLow,
			Text:     "   ",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("submission counts toward the author's record", func() {
		authorID := id.NewUserID()
		_, err := s.svc.Submit(s.ctx, SubmitInput{
			AuthorID: authorID, ChatID: 1,
			Kind: models.KindFeature, Severity: models.SeverityLow,
			Text: "ship a weekly digest",
		})
		s.Require().NoError(err)

		record, err := s.quality.Get(s.ctx, authorID)
		s.Require().NoError(err)
		s.Equal(1, record.Submitted)
	})
}

func (s *FeedbackServiceSuite) TestTransitions() {
	s.Run("full happy path to resolved", func() {
		f := s.submit("crash when answering the review stage")

		f, err := s.svc.Triage(s.ctx, f.ID, "looks real")
		s.Require().NoError(err)
		s.Equal(models.StatusTriaged, f.Status)
		s.NotNil(f.TriagedAt)

		f, err = s.svc.Accept(s.ctx, f.ID, "")
		s.Require().NoError(err)
		f, err = s.svc.Start(s.ctx, f.ID, "")
		s.Require().NoError(err)
		f, err = s.svc.Resolve(s.ctx, f.ID, "fixed in rev 12")
		s.Require().NoError(err)
		s.Equal(models.StatusResolved, f.Status)
		s.NotNil(f.ResolvedAt)

		transitions := s.published.byType(events.TypeTransitioned)
		s.Len(transitions, 4)
	})

	s.Run("invalid transition surfaces the invariant", func() {
		f := s.submit("cannot skip the constraints stage")
		_, err := s.svc.Resolve(s.ctx, f.ID, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("transition to the current status conflicts", func() {
		f := s.submit("double pending")
		_, err := s.svc.Reopen(s.ctx, f.ID, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("duplicate target is rejected at the boundary", func() {
		f := s.submit("no direct duplicate transitions")
		_, err := s.svc.Transition(s.ctx, f.ID, models.StatusDuplicate, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown feedback is not found", func() {
		_, err := s.svc.Triage(s.ctx, id.NewFeedbackID(), "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("rejection counts against the author and reopen reverses it", func() {
		authorID := id.NewUserID()
		f, err := s.svc.Submit(s.ctx, SubmitInput{
			AuthorID: authorID, ChatID: 1,
			Kind: models.KindOther, Severity: models.SeverityLow,
			Text: "rejected then reopened",
		})
		s.Require().NoError(err)

		_, err = s.svc.Reject(s.ctx, f.ID, "not actionable")
		s.Require().NoError(err)
		record, err := s.quality.Get(s.ctx, authorID)
		s.Require().NoError(err)
		s.Equal(1, record.Rejected)

		_, err = s.svc.Reopen(s.ctx, f.ID, "second look")
		s.Require().NoError(err)
		record, err = s.quality.Get(s.ctx, authorID)
		s.Require().NoError(err)
		s.Equal(0, record.Rejected)
	})
}

func (s *FeedbackServiceSuite) TestMarkDuplicateAndOverride() {
	s.Run("manual duplicate verdict and override reopen", func() {
		canonical := s.submit("the persona command ignores casing")
		other := s.submit("persona picker is case sensitive")

		dup, err := s.svc.MarkDuplicate(s.ctx, other.ID, canonical.ID, "same root cause")
		s.Require().NoError(err)
		s.Equal(models.StatusDuplicate, dup.Status)
		s.Require().NotNil(dup.CanonicalID)
		s.Equal(canonical.ID, *dup.CanonicalID)

		reopened, err := s.svc.OverrideDuplicate(s.ctx, other.ID, canonical.ID, "actually distinct")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, reopened.Status)
		s.Nil(reopened.CanonicalID)

		// The recorded pair blocks a fresh automatic verdict.
		_, err = s.svc.MarkDuplicate(s.ctx, other.ID, canonical.ID, "again")
		s.Require().NoError(err, "manual verdicts stay possible; only automatic detection is suppressed")
	})

	s.Run("self duplicate is invalid", func() {
		f := s.submit("self pointing entry")
		_, err := s.svc.MarkDuplicate(s.ctx, f.ID, f.ID, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("canonical must not itself be a duplicate", func() {
		a := s.submit("first of a chain")
		b := s.submit("second of a chain")
		c := s.submit("third of a chain")

		_, err := s.svc.MarkDuplicate(s.ctx, b.ID, a.ID, "")
		s.Require().NoError(err)
		_, err = s.svc.MarkDuplicate(s.ctx, c.ID, b.ID, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *FeedbackServiceSuite) TestVoteAndRescore() {
	s.Run("vote increments and rescores", func() {
		f := s.submit("votes should matter")
		before := f.Priority

		f, err := s.svc.Vote(s.ctx, f.ID)
		s.Require().NoError(err)
		s.Equal(1, f.Votes)
		s.Greater(f.Priority, before)
	})

	s.Run("rescore picks up age", func() {
		f := s.submit("aging entry")
		later := requestcontext.WithTime(context.Background(), svcNow.Add(72*time.Hour))
		rescored, err := s.svc.Rescore(later, f.ID)
		s.Require().NoError(err)
		s.InDelta(f.Priority+3.0, rescored.Priority, 0.001) // 3 days * 0.1 * 10
	})

	s.Run("tier change rescores the author's open entries", func() {
		authorID := id.NewUserID()
		f, err := s.svc.Submit(s.ctx, SubmitInput{
			AuthorID: authorID, ChatID: 1,
			Kind: models.KindBug, Severity: models.SeverityMedium,
			Text: "entry that will ride the tier",
		})
		s.Require().NoError(err)
		s.InDelta(30.0, f.Priority, 0.001)

		// Five accepted entries push the author into the trusted tier.
		texts := []string{
			"webhook replies arrive out of order",
			"export bundle misses consent records",
			"persona reset drops the worm toggle",
			"vote counts reset after a deploy",
			"discovery back command skips a stage",
		}
		for _, text := range texts {
			entry, err := s.svc.Submit(s.ctx, SubmitInput{
				AuthorID: authorID, ChatID: 1,
				Kind: models.KindBug, Severity: models.SeverityMedium,
				Text: text,
			})
			s.Require().NoError(err)
			_, err = s.svc.Triage(s.ctx, entry.ID, "")
			s.Require().NoError(err)
			_, err = s.svc.Accept(s.ctx, entry.ID, "")
			s.Require().NoError(err)
		}

		current, err := s.svc.Get(s.ctx, f.ID)
		s.Require().NoError(err)
		s.InDelta(45.0, current.Priority, 0.001) // trusted multiplier 1.5
	})
}

func (s *FeedbackServiceSuite) TestQueueReads() {
	s.Run("empty queue is not found", func() {
		_, err := s.svc.Next(s.ctx)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("next returns highest priority triaged or accepted", func() {
		low := s.submit("low priority question entry")
		_, err := s.svc.Transition(s.ctx, low.ID, models.StatusTriaged, "")
		s.Require().NoError(err)

		high, err := s.svc.Submit(s.ctx, SubmitInput{
			AuthorID: id.NewUserID(), ChatID: 1,
			Kind: models.KindBug, Severity: models.SeverityCritical,
			Text: "critical crash on every update",
		})
		s.Require().NoError(err)
		_, err = s.svc.Triage(s.ctx, high.ID, "")
		s.Require().NoError(err)

		next, err := s.svc.Next(s.ctx)
		s.Require().NoError(err)
		s.Equal(high.ID, next.ID)
	})

	s.Run("list filters by status and orders by priority", func() {
		a := s.submit("pending alpha entry here")
		b, err := s.svc.Submit(s.ctx, SubmitInput{
			AuthorID: id.NewUserID(), ChatID: 1,
			Kind: models.KindBug, Severity: models.SeverityCritical,
			Text: "pending beta entry here",
		})
		s.Require().NoError(err)

		pending, err := s.svc.List(s.ctx, []models.Status{models.StatusPending}, 10)
		s.Require().NoError(err)
		s.Require().Len(pending, 2)
		s.Equal(b.ID, pending[0].ID)
		s.Equal(a.ID, pending[1].ID)
	})
}

func (s *FeedbackServiceSuite) TestAnonymizeByAuthor() {
	authorID := id.NewUserID()
	for _, text := range []string{
		"first report from the leaving user",
		"a second unrelated complaint entirely",
		"third note about broken formatting",
	} {
		_, err := s.svc.Submit(s.ctx, SubmitInput{
			AuthorID: authorID, ChatID: 1,
			Kind: models.KindBug, Severity: models.SeverityLow,
			Text: text,
		})
		s.Require().NoError(err)
	}

	count, err := s.svc.AnonymizeByAuthor(s.ctx, authorID)
	s.Require().NoError(err)
	s.Equal(3, count)

	remaining, err := s.svc.ListByAuthor(s.ctx, authorID)
	s.Require().NoError(err)
	s.Empty(remaining, "anonymized entries no longer list under the author")
}

func (s *FeedbackServiceSuite) TestSweepAges() {
	s.submit("first open entry for the sweep")
	s.submit("second open entry for the sweep")

	later := requestcontext.WithTime(context.Background(), svcNow.Add(24*time.Hour))
	swept, err := s.svc.SweepAges(later)
	s.Require().NoError(err)
	s.Equal(2, swept)

	entries, err := s.svc.List(later, []models.Status{models.StatusPending}, 10)
	s.Require().NoError(err)
	for _, entry := range entries {
		s.InDelta(31.0, entry.Priority, 0.001)
	}
}
