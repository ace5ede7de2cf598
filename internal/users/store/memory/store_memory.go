package memory

import (
	"context"
	"sync"

	"ralphbot/internal/users/models"
	id "ralphbot/pkg/domain"
	"ralphbot/pkg/platform/sentinel"
)

// InMemoryStore keeps users keyed by ID with a Telegram-ID index. Favors
// clarity over performance; the Postgres store carries production load.
type InMemoryStore struct {
	mu         sync.RWMutex
	users      map[id.UserID]models.User
	byTelegram map[int64]id.UserID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:      make(map[id.UserID]models.User),
		byTelegram: make(map[int64]id.UserID),
	}
}

func (s *InMemoryStore) Save(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
	s.byTelegram[user.TelegramID] = user.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[userID]; ok {
		copied := user
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID, ok := s.byTelegram[telegramID]; ok {
		if user, ok := s.users[userID]; ok {
			copied := user
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byTelegram, user.TelegramID)
	delete(s.users, userID)
	return nil
}
