package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
)

// Kind classifies what the feedback is about. The kind carries the base
// weight in priority scoring, so a bug outranks a question of equal
// severity.
type Kind string

const (
	KindBug         Kind = "bug"
	KindFeature     Kind = "feature"
	KindImprovement Kind = "improvement"
	KindQuestion    Kind = "question"
	KindOther       Kind = "other"
)

// ParseKind validates external input into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindBug, KindFeature, KindImprovement, KindQuestion, KindOther:
		return k, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown feedback kind: %s", s)
}

// Severity grades user-reported impact.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity validates external input into a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	switch sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return sev, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown feedback severity: %s", s)
}

// Status is the queue lifecycle state of a feedback entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusTriaged    Status = "triaged"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
	StatusDuplicate  Status = "duplicate"
)

// ParseStatus validates external input into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := statusTransitions[st]; ok {
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown feedback status: %s", s)
}

// statusTransitions is the lifecycle table. Every state change funnels
// through CanTransitionTo, so this map is the single source of truth.
//
// resolved is terminal. rejected and duplicate both reopen to pending,
// which is how a duplicate override and an appeal re-enter the queue.
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusTriaged, StatusRejected, StatusDuplicate},
	StatusTriaged:    {StatusAccepted, StatusRejected, StatusDuplicate},
	StatusAccepted:   {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusResolved, StatusAccepted},
	StatusResolved:   {},
	StatusRejected:   {StatusPending},
	StatusDuplicate:  {StatusPending},
}

// CanTransitionTo reports whether the lifecycle table allows moving to
// target from this status.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves this status.
func (s Status) IsTerminal() bool {
	return len(statusTransitions[s]) == 0
}

// Open reports whether the entry still awaits a final verdict. Open
// entries are rescored when the author's quality tier moves.
func (s Status) Open() bool {
	switch s {
	case StatusPending, StatusTriaged, StatusAccepted, StatusInProgress:
		return true
	}
	return false
}

// MaxTextRunes bounds the stored feedback body.
const MaxTextRunes = 4000

// Feedback is the aggregate root for one queue entry.
//
// Invariants:
//   - Text is non-empty after normalization and PAN redaction happens
//     before construction; the model never sees raw card numbers
//   - Status changes only through the transition table
//   - CanonicalID is set exactly while Status == duplicate, points at an
//     existing non-duplicate entry, and never at the entry itself
//   - Votes never decrease; Priority is derived, never hand-set
type Feedback struct {
	ID          id.FeedbackID  `json:"id"`
	AuthorID    id.UserID      `json:"author_id"`
	ChatID      int64          `json:"chat_id"`
	Kind        Kind           `json:"kind"`
	Severity    Severity       `json:"severity"`
	Text        string         `json:"text"`
	Fingerprint string         `json:"fingerprint"`
	Status      Status         `json:"status"`
	CanonicalID *id.FeedbackID `json:"canonical_id,omitempty"`
	Votes       int            `json:"votes"`
	Priority    float64        `json:"priority"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	TriagedAt   *time.Time     `json:"triaged_at,omitempty"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

// New builds a pending feedback entry. Text must already be redacted;
// the fingerprint is computed here so every entry carries one.
func New(authorID id.UserID, chatID int64, kind Kind, severity Severity, text string, now time.Time) (*Feedback, error) {
	if authorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "feedback author cannot be empty")
	}
	normalized := Normalize(text)
	if normalized == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "feedback text cannot be empty")
	}
	if len([]rune(text)) > MaxTextRunes {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "feedback text exceeds %d characters", MaxTextRunes)
	}
	return &Feedback{
		ID:          id.NewFeedbackID(),
		AuthorID:    authorID,
		ChatID:      chatID,
		Kind:        kind,
		Severity:    severity,
		Text:        strings.TrimSpace(text),
		Fingerprint: FingerprintOf(normalized),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanTransitionTo validates a lifecycle move without applying it. Moving
// to the current status is a conflict, anything off the table an
// invariant violation. Use with ApplyTransition inside store Execute
// callbacks.
func (f *Feedback) CanTransitionTo(target Status) error {
	if target == f.Status {
		return dErrors.Newf(dErrors.CodeConflict, "feedback is already %s", target)
	}
	if !f.Status.CanTransitionTo(target) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "cannot transition feedback from %s to %s", f.Status, target)
	}
	return nil
}

// ApplyTransition moves the entry to target and maintains the derived
// timestamps. Call CanTransitionTo first.
func (f *Feedback) ApplyTransition(target Status, now time.Time) {
	from := f.Status
	f.Status = target
	f.UpdatedAt = now

	switch target {
	case StatusTriaged:
		if f.TriagedAt == nil {
			t := now
			f.TriagedAt = &t
		}
	case StatusResolved:
		t := now
		f.ResolvedAt = &t
	}

	// Leaving duplicate clears the canonical pointer; the pair either
	// earned an override or the verdict was plain wrong.
	if from == StatusDuplicate && target != StatusDuplicate {
		f.CanonicalID = nil
	}
}

// TransitionTo validates and applies in one call.
func (f *Feedback) TransitionTo(target Status, now time.Time) error {
	if err := f.CanTransitionTo(target); err != nil {
		return err
	}
	f.ApplyTransition(target, now)
	return nil
}

// CanMarkDuplicate validates the duplicate verdict against canonical.
func (f *Feedback) CanMarkDuplicate(canonical *Feedback) error {
	if err := f.CanTransitionTo(StatusDuplicate); err != nil {
		return err
	}
	if canonical == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "duplicate verdict requires a canonical entry")
	}
	if canonical.ID == f.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "feedback cannot be a duplicate of itself")
	}
	if canonical.Status == StatusDuplicate {
		return dErrors.New(dErrors.CodeInvariantViolation, "canonical entry is itself a duplicate")
	}
	return nil
}

// ApplyDuplicate marks the entry as a duplicate of canonical. Call
// CanMarkDuplicate first.
func (f *Feedback) ApplyDuplicate(canonicalID id.FeedbackID, now time.Time) {
	f.ApplyTransition(StatusDuplicate, now)
	f.CanonicalID = &canonicalID
}

// AddVote bumps the vote count. Votes only grow; there is no un-vote.
func (f *Feedback) AddVote(now time.Time) {
	f.Votes++
	f.UpdatedAt = now
}

// AnonymizedAuthor marks erased ownership on entries kept for product
// signal after a GDPR deletion.
var AnonymizedAuthor = id.UserID{}

// Anonymize detaches the entry from its author. Text stays; it was
// redacted at intake and the signal is worth keeping.
func (f *Feedback) Anonymize(now time.Time) {
	f.AuthorID = AnonymizedAuthor
	f.UpdatedAt = now
}

// Normalize lowercases, strips punctuation, and collapses whitespace so
// trivially restyled resubmissions fingerprint identically.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// FingerprintOf hashes normalized text for the exact-duplicate index.
func FingerprintOf(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
