// Package memory keeps chat sessions in process with lazy TTL expiry,
// mirroring the Redis store's eviction semantics.
package memory

import (
	"context"
	"sync"
	"time"

	"ralphbot/internal/chatsession/models"
	"ralphbot/internal/conversation"
	id "ralphbot/pkg/domain"
	"ralphbot/pkg/platform/sentinel"
)

const defaultTTL = time.Hour

type entry struct {
	session   models.Session
	expiresAt time.Time
}

type InMemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]entry
}

// Option configures the store.
type Option func(*InMemoryStore)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *InMemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		ttl:      defaultTTL,
		now:      time.Now,
		sessions: make(map[int64]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Save(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ChatID] = entry{
		session:   *copySession(session),
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *InMemoryStore) FindByChat(_ context.Context, chatID int64) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[chatID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if s.now().After(e.expiresAt) {
		delete(s.sessions, chatID)
		return nil, sentinel.ErrNotFound
	}
	return copySession(&e.session), nil
}

func (s *InMemoryStore) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
	return nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for chatID, e := range s.sessions {
		if e.session.UserID == userID {
			delete(s.sessions, chatID)
		}
	}
	return nil
}

func copySession(session *models.Session) *models.Session {
	copied := *session
	copied.Turns = append([]conversation.Turn(nil), session.Turns...)
	if session.Dialog != nil {
		dialog := *session.Dialog
		copied.Dialog = &dialog
	}
	return &copied
}
