package memory

import (
	"context"
	"sync"

	"ralphbot/internal/discovery/models"
	id "ralphbot/pkg/domain"
	"ralphbot/pkg/platform/sentinel"
)

// InMemoryStore keeps one session per chat. Sessions are copied in and
// out so callers never share the stored map.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]models.Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[int64]models.Session)}
}

func copySession(s models.Session) *models.Session {
	answers := make(map[models.Stage]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	s.Answers = answers
	return &s
}

func (s *InMemoryStore) Save(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ChatID] = *copySession(*session)
	return nil
}

func (s *InMemoryStore) FindByChat(_ context.Context, chatID int64) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[chatID]; ok {
		return copySession(session), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) DeleteByChat(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
	return nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for chatID, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, chatID)
		}
	}
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, copySession(session))
		}
	}
	return out, nil
}
