package memory

import (
	"context"
	"sync"
	"time"

	"ralphbot/internal/quality/models"
	id "ralphbot/pkg/domain"
)

// InMemoryStore keeps quality records keyed by author.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.UserID]models.QualityRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.UserID]models.QualityRecord)}
}

// Apply adds the delta to the author's counters atomically and returns
// the updated record. Counters floor at zero.
func (s *InMemoryStore) Apply(_ context.Context, userID id.UserID, delta models.Delta, now time.Time) (*models.QualityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[userID]
	if !ok {
		record = models.QualityRecord{UserID: userID}
	}
	record.Submitted = floorZero(record.Submitted + delta.Submitted)
	record.Accepted = floorZero(record.Accepted + delta.Accepted)
	record.Rejected = floorZero(record.Rejected + delta.Rejected)
	record.Duplicates = floorZero(record.Duplicates + delta.Duplicates)
	record.UpdatedAt = now
	s.records[userID] = record

	copied := record
	return &copied, nil
}

// Get returns the record, or a zero record for unknown authors.
func (s *InMemoryStore) Get(_ context.Context, userID id.UserID) (*models.QualityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[userID]
	if !ok {
		record = models.QualityRecord{UserID: userID}
	}
	copied := record
	return &copied, nil
}

// DeleteByUser removes the record. Part of account erasure.
func (s *InMemoryStore) DeleteByUser(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
