// Package memory keeps PRD documents in process, one per chat. The
// Execute callback serializes validate-then-mutate sequences under one
// mutex, mirroring the feedback store's semantics.
package memory

import (
	"context"
	"sync"

	"ralphbot/internal/prd/models"
	id "ralphbot/pkg/domain"
	"ralphbot/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu   sync.Mutex
	docs map[int64]models.Document
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[int64]models.Document)}
}

func (s *InMemoryStore) Save(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ChatID] = *copyDoc(d)
	return nil
}

func (s *InMemoryStore) FindByChat(_ context.Context, chatID int64) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(chatID)
}

func (s *InMemoryStore) findLocked(chatID int64) (*models.Document, error) {
	d, ok := s.docs[chatID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyDoc(&d), nil
}

// Execute loads the chat's document, runs fn on it, and persists the
// result while holding the store lock. fn returning an error aborts
// without mutation.
func (s *InMemoryStore) Execute(_ context.Context, chatID int64, fn func(d *models.Document) error) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.findLocked(chatID)
	if err != nil {
		return nil, err
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	s.docs[chatID] = *copyDoc(d)
	return d, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Document
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, *copyDoc(&d))
		}
	}
	return out, nil
}

func (s *InMemoryStore) DeleteByChat(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, chatID)
	return nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for chatID, d := range s.docs {
		if d.UserID == userID {
			delete(s.docs, chatID)
			deleted++
		}
	}
	return deleted, nil
}

// copyDoc deep-copies the slices so callers cannot mutate stored state.
func copyDoc(d *models.Document) *models.Document {
	copied := *d
	copied.Revisions = append([]models.Revision(nil), d.Revisions...)
	copied.Tasks = append([]models.Task(nil), d.Tasks...)
	return &copied
}
