package bucket

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ralphbot/internal/ratelimit/models"
	dErrors "ralphbot/pkg/domain-errors"
)

const redisKeyPrefix = "rl:"

// RedisBucketStore implements BucketStore on a Redis sorted set per key.
// Member scores are request timestamps, so trimming the set by score gives
// the same sliding window the in-memory store keeps, shared across server
// instances.
type RedisBucketStore struct {
	client *redis.Client
}

// NewRedisBucketStore creates a Redis-backed bucket store.
func NewRedisBucketStore(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

// Allow checks if a request is allowed and increments the counter.
func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, window)
}

// AllowN checks if a request with custom cost is allowed.
func (s *RedisBucketStore) AllowN(ctx context.Context, key string, cost int, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := time.Now()
	cutoff := now.Add(-window)
	redisKey := redisKeyPrefix + key

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(cutoff.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit store unavailable")
	}

	count := int(countCmd.Val())
	if count+cost > limit {
		resetAt, err := s.oldestReset(ctx, redisKey, now, window)
		if err != nil {
			return nil, err
		}
		return &models.RateLimitResult{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(now, resetAt),
		}, nil
	}

	members := make([]redis.Z, 0, cost)
	score := float64(now.UnixMilli())
	for range cost {
		// uuid member keeps same-millisecond requests distinct
		members = append(members, redis.Z{Score: score, Member: uuid.NewString()})
	}

	pipe = s.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, members...)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit store unavailable")
	}

	resetAt, err := s.oldestReset(ctx, redisKey, now, window)
	if err != nil {
		return nil, err
	}
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count - cost,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the rate limit counter for a key.
func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit store unavailable")
	}
	return nil
}

// GetCurrentCount returns the current request count for a key.
func (s *RedisBucketStore) GetCurrentCount(ctx context.Context, key string) (int, error) {
	count, err := s.client.ZCount(ctx, redisKeyPrefix+key,
		strconv.FormatInt(time.Now().Add(-24*time.Hour).UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit store unavailable")
	}
	return int(count), nil
}

// oldestReset derives when the window frees a slot from the oldest
// surviving member.
func (s *RedisBucketStore) oldestReset(ctx context.Context, redisKey string, now time.Time, window time.Duration) (time.Time, error) {
	oldest, err := s.client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit store unavailable")
	}
	if len(oldest) == 0 {
		return now.Add(window), nil
	}
	millis := int64(oldest[0].Score)
	return time.UnixMilli(millis).Add(window), nil
}
