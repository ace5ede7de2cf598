// Package redis persists chat sessions with a TTL so idle conversations
// evict themselves. A per-user set index supports GDPR erasure.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ralphbot/internal/chatsession/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/platform/sentinel"
)

const (
	chatKeyPrefix = "chatsession:chat:"
	userKeyPrefix = "chatsession:user:"
)

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
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
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode chat session")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, chatKey(session.ChatID), payload, s.ttl)
	pipe.SAdd(ctx, userKey(session.UserID), session.ChatID)
	pipe.Expire(ctx, userKey(session.UserID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "chat session store unavailable")
	}
	return nil
}

func (s *Store) FindByChat(ctx context.Context, chatID int64) (*models.Session, error) {
	payload, err := s.client.Get(ctx, chatKey(chatID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, sentinel.ErrNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "chat session store unavailable")
	}
	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode chat session")
	}
	return &session, nil
}

func (s *Store) Delete(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, chatKey(chatID)).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "chat session store unavailable")
	}
	return nil
}

func (s *Store) DeleteByUser(ctx context.Context, userID id.UserID) error {
	chatIDs, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "chat session store unavailable")
	}
	keys := make([]string, 0, len(chatIDs)+1)
	for _, raw := range chatIDs {
		chatID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			continue
		}
		keys = append(keys, chatKey(chatID))
	}
	keys = append(keys, userKey(userID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "chat session store unavailable")
	}
	return nil
}
