package memory

import (
	"context"
	"sync"
	"time"

	"ralphbot/internal/consent/models"
	id "ralphbot/pkg/domain"
)

// InMemoryStore keeps consent records per user. Used in tests and when
// running without Postgres.
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[id.UserID][]models.ConsentRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{consents: make(map[id.UserID][]models.ConsentRecord)}
}

func (s *InMemoryStore) Save(_ context.Context, record models.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents[record.UserID] = append(s.consents[record.UserID], record)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]models.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ConsentRecord{}, s.consents[userID]...), nil
}

func (s *InMemoryStore) Revoke(_ context.Context, userID id.UserID, purpose id.ConsentPurpose, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.consents[userID]
	for i := range records {
		if records[i].Purpose == purpose && records[i].RevokedAt == nil {
			at := revokedAt
			records[i].RevokedAt = &at
		}
	}
	s.consents[userID] = records
	return nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.consents, userID)
	return nil
}
