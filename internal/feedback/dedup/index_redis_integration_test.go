//go:build integration

package dedup_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ralphbot/internal/feedback/dedup"
	"ralphbot/internal/feedback/models"
	id "ralphbot/pkg/domain"
	"ralphbot/pkg/testutil/containers"
)

type RedisIndexSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	index *dedup.RedisIndex
}

func TestRedisIndexSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisIndexSuite))
}

func (s *RedisIndexSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.index = dedup.NewRedisIndex(s.redis.Client, time.Hour)
}

func (s *RedisIndexSuite) TearDownSuite() {
	if s.redis != nil {
		_ = s.redis.Client.Close()
		_ = s.redis.Container.Terminate(context.Background())
	}
}

func (s *RedisIndexSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisIndexSuite) TestPutFirstWriterWins() {
	ctx := context.Background()
	first := id.NewFeedbackID()

	owner, err := s.index.Put(ctx, models.KindBug, "fp-1", first)
	s.Require().NoError(err)
	s.Equal(first, owner)

	owner, err = s.index.Put(ctx, models.KindBug, "fp-1", id.NewFeedbackID())
	s.Require().NoError(err)
	s.Equal(first, owner, "later writers get the original owner back")

	// Same fingerprint under a different kind is a separate slot.
	other := id.NewFeedbackID()
	owner, err = s.index.Put(ctx, models.KindFeature, "fp-1", other)
	s.Require().NoError(err)
	s.Equal(other, owner)
}

// TestConcurrentPut races many claims on one fingerprint; SETNX must
// elect exactly one owner and report it to every loser.
func (s *RedisIndexSuite) TestConcurrentPut() {
	ctx := context.Background()
	const claimers = 30

	owners := make([]id.FeedbackID, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner, err := s.index.Put(ctx, models.KindBug, "fp-race", id.NewFeedbackID())
			s.NoError(err)
			owners[i] = owner
		}(i)
	}
	wg.Wait()

	for i := 1; i < claimers; i++ {
		s.Equal(owners[0], owners[i], "every claimer sees the same owner")
	}
}

func (s *RedisIndexSuite) TestGetAndDelete() {
	ctx := context.Background()
	feedbackID := id.NewFeedbackID()

	_, ok, err := s.index.Get(ctx, models.KindBug, "fp-2")
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.index.Put(ctx, models.KindBug, "fp-2", feedbackID)
	s.Require().NoError(err)

	owner, ok, err := s.index.Get(ctx, models.KindBug, "fp-2")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(feedbackID, owner)

	s.Require().NoError(s.index.Delete(ctx, models.KindBug, "fp-2"))
	_, ok, err = s.index.Get(ctx, models.KindBug, "fp-2")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisIndexSuite) TestExpiredOwnerIsReplaced() {
	ctx := context.Background()
	short := dedup.NewRedisIndex(s.redis.Client, time.Second)

	first := id.NewFeedbackID()
	_, err := short.Put(ctx, models.KindBug, "fp-ttl", first)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		_, ok, err := short.Get(ctx, models.KindBug, "fp-ttl")
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond)

	second := id.NewFeedbackID()
	owner, err := short.Put(ctx, models.KindBug, "fp-ttl", second)
	s.Require().NoError(err)
	s.Equal(second, owner, "expired fingerprints are reclaimed")
}
