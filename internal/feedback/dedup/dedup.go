// Package dedup decides whether incoming feedback repeats an existing
// entry. Exact matches go through a fingerprint index; near matches use
// Jaccard similarity over rune shingles against recent candidates of the
// same kind. Operator overrides suppress pairs the detector keeps getting
// wrong.
package dedup

import (
	"context"
	"fmt"
	"time"

	"ralphbot/internal/feedback/models"
	id "ralphbot/pkg/domain"
)

// DefaultSimilarityThreshold is the Jaccard score at which two texts of
// the same kind count as near-duplicates.
const DefaultSimilarityThreshold = 0.85

// shingleSize is the rune n-gram width for similarity. Three runes is
// small enough to survive typos and large enough to avoid matching on
// shared stopwords.
const shingleSize = 3

// FingerprintIndex maps normalized-text fingerprints to the earliest
// feedback carrying them, within a retention window.
type FingerprintIndex interface {
	// Put records the fingerprint unless an earlier entry already holds
	// it, and returns the ID that owns the fingerprint after the call.
	Put(ctx context.Context, kind models.Kind, fingerprint string, feedbackID id.FeedbackID) (id.FeedbackID, error)
	Get(ctx context.Context, kind models.Kind, fingerprint string) (id.FeedbackID, bool, error)
	Delete(ctx context.Context, kind models.Kind, fingerprint string) error
}

// OverrideStore remembers unordered pairs an operator ruled not
// duplicates of each other.
type OverrideStore interface {
	Record(ctx context.Context, a, b id.FeedbackID) error
	Exists(ctx context.Context, a, b id.FeedbackID) (bool, error)
}

// CandidateLister supplies recent same-kind entries for near-match
// comparison. The feedback store implements it.
type CandidateLister interface {
	ListCandidates(ctx context.Context, kind models.Kind, since time.Time) ([]*models.Feedback, error)
}

// Match is a positive duplicate verdict.
type Match struct {
	CanonicalID id.FeedbackID
	// Exact is true for fingerprint hits, false for similarity hits.
	Exact bool
	// Similarity is the Jaccard score for near matches, 1.0 for exact.
	Similarity float64
}

// Detector classifies incoming entries against the index and candidates.
type Detector struct {
	index      FingerprintIndex
	overrides  OverrideStore
	candidates CandidateLister
	threshold  float64
	window     time.Duration
}

// Option configures a Detector.
type Option func(*Detector)

// WithThreshold overrides the near-match similarity threshold.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) {
		if threshold > 0 && threshold <= 1 {
			d.threshold = threshold
		}
	}
}

// WithWindow overrides how far back candidates are considered.
func WithWindow(window time.Duration) Option {
	return func(d *Detector) {
		if window > 0 {
			d.window = window
		}
	}
}

func New(index FingerprintIndex, overrides OverrideStore, candidates CandidateLister, opts ...Option) *Detector {
	d := &Detector{
		index:      index,
		overrides:  overrides,
		candidates: candidates,
		threshold:  DefaultSimilarityThreshold,
		window:     30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Classify checks f against existing entries and registers its
// fingerprint. A nil Match means the entry is original.
//
// Exact matches beat near matches, and entries that were themselves
// rejected still count for exact matching: resubmitting a rejected
// report verbatim is the main spam vector. Near matching only considers
// non-duplicate candidates, so chains of duplicates always point at one
// canonical entry.
func (d *Detector) Classify(ctx context.Context, f *models.Feedback) (*Match, error) {
	ownerID, err := d.index.Put(ctx, f.Kind, f.Fingerprint, f.ID)
	if err != nil {
		return nil, fmt.Errorf("fingerprint index: %w", err)
	}
	if ownerID != f.ID {
		overridden, err := d.overridden(ctx, f.ID, ownerID)
		if err != nil {
			return nil, err
		}
		if !overridden {
			return &Match{CanonicalID: ownerID, Exact: true, Similarity: 1.0}, nil
		}
	}

	normalized := models.Normalize(f.Text)
	shingles := Shingles(normalized)
	if len(shingles) == 0 {
		return nil, nil
	}

	candidates, err := d.candidates.ListCandidates(ctx, f.Kind, f.CreatedAt.Add(-d.window))
	if err != nil {
		return nil, fmt.Errorf("list dedup candidates: %w", err)
	}

	var best *Match
	for _, candidate := range candidates {
		if candidate.ID == f.ID || candidate.Status == models.StatusDuplicate {
			continue
		}
		similarity := Jaccard(shingles, Shingles(models.Normalize(candidate.Text)))
		if similarity < d.threshold {
			continue
		}
		if best != nil && similarity <= best.Similarity {
			continue
		}
		overridden, err := d.overridden(ctx, f.ID, candidate.ID)
		if err != nil {
			return nil, err
		}
		if overridden {
			continue
		}
		best = &Match{CanonicalID: candidate.ID, Similarity: similarity}
	}
	return best, nil
}

// Forget removes f's fingerprint when f owned it, so a deleted entry
// stops blocking future submissions.
func (d *Detector) Forget(ctx context.Context, f *models.Feedback) error {
	ownerID, ok, err := d.index.Get(ctx, f.Kind, f.Fingerprint)
	if err != nil {
		return fmt.Errorf("fingerprint index: %w", err)
	}
	if !ok || ownerID != f.ID {
		return nil
	}
	return d.index.Delete(ctx, f.Kind, f.Fingerprint)
}

// RecordOverride persists a not-duplicate ruling for the pair.
func (d *Detector) RecordOverride(ctx context.Context, a, b id.FeedbackID) error {
	return d.overrides.Record(ctx, a, b)
}

func (d *Detector) overridden(ctx context.Context, a, b id.FeedbackID) (bool, error) {
	ok, err := d.overrides.Exists(ctx, a, b)
	if err != nil {
		return false, fmt.Errorf("check duplicate override: %w", err)
	}
	return ok, nil
}

// Shingles returns the set of rune n-grams in text. Texts shorter than
// one shingle yield the whole text as a single shingle.
func Shingles(text string) map[string]struct{} {
	runes := []rune(text)
	set := make(map[string]struct{})
	if len(runes) == 0 {
		return set
	}
	if len(runes) <= shingleSize {
		set[string(runes)] = struct{}{}
		return set
	}
	for i := 0; i+shingleSize <= len(runes); i++ {
		set[string(runes[i:i+shingleSize])] = struct{}{}
	}
	return set
}

// Jaccard computes |a∩b| / |a∪b| over two shingle sets.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for shingle := range small {
		if _, ok := large[shingle]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
