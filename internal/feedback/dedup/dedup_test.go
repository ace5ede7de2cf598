package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ralphbot/internal/feedback/models"
	feedbackmem "ralphbot/internal/feedback/store/memory"
	id "ralphbot/pkg/domain"
)

var dedupNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type DedupSuite struct {
	suite.Suite
	detector *Detector
	index    *InMemoryIndex
	store    *feedbackmem.InMemoryStore
	ctx      context.Context
}

func TestDedupSuite(t *testing.T) {
	suite.Run(t, new(DedupSuite))
}

func (s *DedupSuite) SetupTest() {
	s.index = NewInMemoryIndex(30 * 24 * time.Hour)
	s.store = feedbackmem.NewInMemoryStore()
	s.detector = New(s.index, NewInMemoryOverrides(), s.store)
	s.ctx = context.Background()
}

func (s *DedupSuite) submit(kind models.Kind, text string) *models.Feedback {
	f, err := models.New(id.NewUserID(), 1, kind, models.SeverityMedium, text, dedupNow)
	s.Require().NoError(err)
	return f
}

// classifyAndStore mimics the service: classify first, then persist.
func (s *DedupSuite) classifyAndStore(f *models.Feedback) *Match {
	match, err := s.detector.Classify(s.ctx, f)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(s.ctx, f))
	return match
}

func (s *DedupSuite) TestExactMatch() {
	s.Run("identical normalized text within a kind is exact", func() {
		first := s.submit(models.KindBug, "The bot crashes on /start")
		s.Nil(s.classifyAndStore(first))

		second := s.submit(models.KindBug, "the bot CRASHES on /start!!")
		match := s.classifyAndStore(second)
		s.Require().NotNil(match)
		s.True(match.Exact)
		s.Equal(first.ID, match.CanonicalID)
		s.InDelta(1.0, match.Similarity, 0.0001)
	})

	s.Run("same text under a different kind is original", func() {
		first := s.submit(models.KindBug, "queue ordering is wrong")
		s.Nil(s.classifyAndStore(first))

		other := s.submit(models.KindFeature, "queue ordering is wrong")
		s.Nil(s.classifyAndStore(other))
	})

	s.Run("first entry keeps owning the fingerprint", func() {
		first := s.submit(models.KindBug, "duplicate anchor text")
		s.Nil(s.classifyAndStore(first))

		for i := 0; i < 3; i++ {
			dup := s.submit(models.KindBug, "duplicate anchor text")
			match := s.classifyAndStore(dup)
			s.Require().NotNil(match)
			s.Equal(first.ID, match.CanonicalID)
		}
	})
}

func (s *DedupSuite) TestNearMatch() {
	s.Run("small edits stay above the threshold", func() {
		first := s.submit(models.KindBug, "the export command times out after thirty seconds on large queues")
		s.Nil(s.classifyAndStore(first))

		second := s.submit(models.KindBug, "the export command times out after thirty second on large queues")
		match := s.classifyAndStore(second)
		s.Require().NotNil(match)
		s.False(match.Exact)
		s.Equal(first.ID, match.CanonicalID)
		s.GreaterOrEqual(match.Similarity, DefaultSimilarityThreshold)
	})

	s.Run("unrelated text is original", func() {
		first := s.submit(models.KindBug, "the export command times out")
		s.Nil(s.classifyAndStore(first))

		second := s.submit(models.KindBug, "persona switching loses the worm state")
		s.Nil(s.classifyAndStore(second))
	})

	s.Run("duplicates never serve as near-match canonicals", func() {
		canonical := s.submit(models.KindBug, "scoring ignores the votes boost entirely somehow")
		s.Nil(s.classifyAndStore(canonical))

		dup := s.submit(models.KindBug, "scoring ignores the votes boost entirely somehow ok")
		match, err := s.detector.Classify(s.ctx, dup)
		s.Require().NoError(err)
		s.Require().NotNil(match)
		dup.ApplyDuplicate(match.CanonicalID, dedupNow)
		s.Require().NoError(s.store.Save(s.ctx, dup))

		third := s.submit(models.KindBug, "scoring ignores the votes boost entirely somehow yes")
		match = s.classifyAndStore(third)
		s.Require().NotNil(match)
		s.Equal(canonical.ID, match.CanonicalID, "chain points at the canonical, not the duplicate")
	})
}

func (s *DedupSuite) TestOverrides() {
	s.Run("an override suppresses both match directions", func() {
		first := s.submit(models.KindFeature, "let admins reorder the generated task list")
		s.Nil(s.classifyAndStore(first))

		second := s.submit(models.KindFeature, "let admins reorder the generated task list")
		s.Require().NoError(s.detector.RecordOverride(s.ctx, second.ID, first.ID))
		s.Nil(s.classifyAndStore(second))
	})
}

func (s *DedupSuite) TestForget() {
	s.Run("forgetting the owner frees the fingerprint", func() {
		first := s.submit(models.KindBug, "ghost entry")
		s.Nil(s.classifyAndStore(first))
		s.Require().NoError(s.detector.Forget(s.ctx, first))

		second := s.submit(models.KindBug, "ghost entry")
		match, err := s.detector.Classify(s.ctx, second)
		s.Require().NoError(err)
		if match != nil {
			// Near matching may still find the stored entry; only the
			// exact index must have released the fingerprint.
			s.False(match.Exact)
		}
	})
}

func TestShingles(t *testing.T) {
	s := Shingles("abcd")
	if len(s) != 2 {
		t.Fatalf("expected 2 shingles for %q, got %d", "abcd", len(s))
	}
	short := Shingles("ab")
	if _, ok := short["ab"]; !ok || len(short) != 1 {
		t.Fatalf("short text should yield itself as one shingle, got %v", short)
	}
	if len(Shingles("")) != 0 {
		t.Fatal("empty text should yield no shingles")
	}
}

func TestJaccard(t *testing.T) {
	a := Shingles("hello world")
	if got := Jaccard(a, a); got != 1.0 {
		t.Fatalf("identical sets should score 1.0, got %f", got)
	}
	if got := Jaccard(a, Shingles("zzzzzz")); got != 0.0 {
		t.Fatalf("disjoint sets should score 0.0, got %f", got)
	}
	if got := Jaccard(a, map[string]struct{}{}); got != 0.0 {
		t.Fatalf("empty set should score 0.0, got %f", got)
	}
}
