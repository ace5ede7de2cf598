package dedup

import (
	"context"
	"sync"
	"time"

	"ralphbot/internal/feedback/models"
	id "ralphbot/pkg/domain"
)

type memoryEntry struct {
	feedbackID id.FeedbackID
	expiresAt  time.Time
}

// InMemoryIndex is the single-process fingerprint index used when Redis
// is not configured. Entries expire lazily on access.
type InMemoryIndex struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewInMemoryIndex(ttl time.Duration) *InMemoryIndex {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &InMemoryIndex{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the index clock in tests.
func (s *InMemoryIndex) WithClock(now func() time.Time) *InMemoryIndex {
	s.now = now
	return s
}

func indexKey(kind models.Kind, fingerprint string) string {
	return string(kind) + ":" + fingerprint
}

func (s *InMemoryIndex) Put(_ context.Context, kind models.Kind, fingerprint string, feedbackID id.FeedbackID) (id.FeedbackID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := indexKey(kind, fingerprint)
	now := s.now()
	if entry, ok := s.entries[key]; ok && entry.expiresAt.After(now) {
		return entry.feedbackID, nil
	}
	s.entries[key] = memoryEntry{feedbackID: feedbackID, expiresAt: now.Add(s.ttl)}
	return feedbackID, nil
}

func (s *InMemoryIndex) Get(_ context.Context, kind models.Kind, fingerprint string) (id.FeedbackID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[indexKey(kind, fingerprint)]
	if !ok || !entry.expiresAt.After(s.now()) {
		return id.FeedbackID{}, false, nil
	}
	return entry.feedbackID, true, nil
}

func (s *InMemoryIndex) Delete(_ context.Context, kind models.Kind, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, indexKey(kind, fingerprint))
	return nil
}

// InMemoryOverrides keeps not-duplicate pairs in a set keyed by the
// ordered pair, so Exists(a, b) == Exists(b, a).
type InMemoryOverrides struct {
	mu    sync.RWMutex
	pairs map[string]struct{}
}

func NewInMemoryOverrides() *InMemoryOverrides {
	return &InMemoryOverrides{pairs: make(map[string]struct{})}
}

// PairKey canonicalizes an unordered ID pair. Shared with the Postgres
// override store so both back ends agree on identity.
func PairKey(a, b id.FeedbackID) string {
	lo, hi := a.String(), b.String()
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo + ":" + hi
}

func (s *InMemoryOverrides) Record(_ context.Context, a, b id.FeedbackID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[PairKey(a, b)] = struct{}{}
	return nil
}

func (s *InMemoryOverrides) Exists(_ context.Context, a, b id.FeedbackID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[PairKey(a, b)]
	return ok, nil
}
