package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"ralphbot/internal/feedback/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
)

const redisKeyPrefix = "dedup:fp:"

// RedisIndex shares the fingerprint window across server instances.
// SET NX gives first-writer-wins atomically, which is exactly the
// "earliest entry owns the fingerprint" rule.
type RedisIndex struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIndex(client *redis.Client, ttl time.Duration) *RedisIndex {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisIndex{client: client, ttl: ttl}
}

func (s *RedisIndex) key(kind models.Kind, fingerprint string) string {
	return redisKeyPrefix + string(kind) + ":" + fingerprint
}

func (s *RedisIndex) Put(ctx context.Context, kind models.Kind, fingerprint string, feedbackID id.FeedbackID) (id.FeedbackID, error) {
	key := s.key(kind, fingerprint)
	set, err := s.client.SetNX(ctx, key, feedbackID.String(), s.ttl).Result()
	if err != nil {
		return id.FeedbackID{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "fingerprint index unavailable")
	}
	if set {
		return feedbackID, nil
	}
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Owner expired between SETNX and GET; claim it.
		return s.Put(ctx, kind, fingerprint, feedbackID)
	}
	if err != nil {
		return id.FeedbackID{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "fingerprint index unavailable")
	}
	ownerID, err := id.ParseFeedbackID(raw)
	if err != nil {
		// Corrupt value; overwrite with the new owner.
		if err := s.client.Set(ctx, key, feedbackID.String(), s.ttl).Err(); err != nil {
			return id.FeedbackID{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "fingerprint index unavailable")
		}
		return feedbackID, nil
	}
	return ownerID, nil
}

func (s *RedisIndex) Get(ctx context.Context, kind models.Kind, fingerprint string) (id.FeedbackID, bool, error) {
	raw, err := s.client.Get(ctx, s.key(kind, fingerprint)).Result()
	if err == redis.Nil {
		return id.FeedbackID{}, false, nil
	}
	if err != nil {
		return id.FeedbackID{}, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "fingerprint index unavailable")
	}
	ownerID, err := id.ParseFeedbackID(raw)
	if err != nil {
		return id.FeedbackID{}, false, nil
	}
	return ownerID, true, nil
}

func (s *RedisIndex) Delete(ctx context.Context, kind models.Kind, fingerprint string) error {
	if err := s.client.Del(ctx, s.key(kind, fingerprint)).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "fingerprint index unavailable")
	}
	return nil
}
