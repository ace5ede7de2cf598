// Package redis persists discovery sessions with a TTL matching the
// flow's idle expiry, so abandoned sessions evict themselves. A per-user
// set index supports the GDPR listing and erasure paths.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ralphbot/internal/discovery/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/platform/sentinel"
)

const (
	chatKeyPrefix = "discovery:chat:"
	userKeyPrefix = "discovery:user:"
)

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{client: client, ttl: ttl}
}

func chatKey(chatID int64) string {
	return chatKeyPrefix + strconv.FormatInt(chatID, 10)
}

func userKey(userID id.UserID) string {
	return userKeyPrefix + userID.String()
}

func (s *Store) Save(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode discovery session")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, chatKey(session.ChatID), payload, s.ttl)
	pipe.SAdd(ctx, userKey(session.UserID), session.ChatID)
	pipe.Expire(ctx, userKey(session.UserID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "discovery store unavailable")
	}
	return nil
}

func (s *Store) FindByChat(ctx context.Context, chatID int64) (*models.Session, error) {
	raw, err := s.client.Get(ctx, chatKey(chatID)).Bytes()
	if err == redis.Nil {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "discovery store unavailable")
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode discovery session")
	}
	return &session, nil
}

func (s *Store) DeleteByChat(ctx context.Context, chatID int64) error {
	session, err := s.FindByChat(ctx, chatID)
	if err != nil {
		if err == sentinel.ErrNotFound {
			return nil
		}
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, chatKey(chatID))
	pipe.SRem(ctx, userKey(session.UserID), chatID)
	if _, err := pipe.Exec(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "discovery store unavailable")
	}
	return nil
}

func (s *Store) DeleteByUser(ctx context.Context, userID id.UserID) error {
	chatIDs, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "discovery store unavailable")
	}
	pipe := s.client.TxPipeline()
	for _, raw := range chatIDs {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		pipe.Del(ctx, chatKey(chatID))
	}
	pipe.Del(ctx, userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "discovery store unavailable")
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error) {
	chatIDs, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "discovery store unavailable")
	}
	var out []*models.Session
	for _, raw := range chatIDs {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		session, err := s.FindByChat(ctx, chatID)
		if err == sentinel.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	return out, nil
}
