// Package memory keeps the feedback queue in process. The Execute
// callback serializes validate-then-mutate sequences under one mutex,
// matching the row-lock semantics of the Postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ralphbot/internal/feedback/models"
	id "ralphbot/pkg/domain"
	"ralphbot/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.Mutex
	entries map[id.FeedbackID]models.Feedback
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.FeedbackID]models.Feedback)}
}

func (s *InMemoryStore) Save(_ context.Context, f *models.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[f.ID] = *f
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, feedbackID id.FeedbackID) (*models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(feedbackID)
}

func (s *InMemoryStore) findLocked(feedbackID id.FeedbackID) (*models.Feedback, error) {
	if f, ok := s.entries[feedbackID]; ok {
		copied := f
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

// Execute loads the entry, runs fn on it, and persists the result while
// holding the store lock. fn returning an error aborts without mutation.
func (s *InMemoryStore) Execute(_ context.Context, feedbackID id.FeedbackID, fn func(f *models.Feedback) error) (*models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.findLocked(feedbackID)
	if err != nil {
		return nil, err
	}
	if err := fn(f); err != nil {
		return nil, err
	}
	s.entries[f.ID] = *f
	copied := *f
	return &copied, nil
}

// ListByStatus returns entries in the given statuses ordered by priority
// descending, then oldest first. No statuses means all entries.
func (s *InMemoryStore) ListByStatus(_ context.Context, statuses []models.Status, limit int) ([]*models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[models.Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	var out []*models.Feedback
	for _, f := range s.entries {
		if len(wanted) > 0 && !wanted[f.Status] {
			continue
		}
		copied := f
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListByAuthor(_ context.Context, authorID id.UserID) ([]*models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Feedback
	for _, f := range s.entries {
		if f.AuthorID == authorID {
			copied := f
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListCandidates feeds the duplicate detector with same-kind entries
// created at or after since.
func (s *InMemoryStore) ListCandidates(_ context.Context, kind models.Kind, since time.Time) ([]*models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Feedback
	for _, f := range s.entries {
		if f.Kind != kind || f.CreatedAt.Before(since) {
			continue
		}
		copied := f
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.Status]int)
	for _, f := range s.entries {
		counts[f.Status]++
	}
	return counts, nil
}
