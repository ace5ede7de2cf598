package models

import (
	"strings"
	"time"

	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
)

// Stage is one step of the guided discovery flow. Stages advance in a
// fixed order; only the machine moves the pointer.
type Stage string

const (
	StageWelcome     Stage = "welcome"
	StageProblem     Stage = "problem"
	StageAudience    Stage = "audience"
	StageFeatures    Stage = "features"
	StageConstraints Stage = "constraints"
	StageReview      Stage = "review"
	StageComplete    Stage = "complete"
)

// stageOrder is the single definition of the flow. Everything else
// (advance, back, progress display) derives from this slice.
var stageOrder = []Stage{
	StageWelcome,
	StageProblem,
	StageAudience,
	StageFeatures,
	StageConstraints,
	StageReview,
	StageComplete,
}

// skippableStages marks stages a user may pass without answering.
var skippableStages = map[Stage]bool{
	StageConstraints: true,
}

// Stages returns the flow order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

func stageIndex(s Stage) int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the stage after s, or s itself at the end of the flow.
func (s Stage) Next() Stage {
	i := stageIndex(s)
	if i < 0 || i+1 >= len(stageOrder) {
		return s
	}
	return stageOrder[i+1]
}

// Prev returns the stage before s, or s itself at the start.
func (s Stage) Prev() Stage {
	i := stageIndex(s)
	if i <= 0 {
		return s
	}
	return stageOrder[i-1]
}

// Skippable reports whether the stage can be skipped.
func (s Stage) Skippable() bool {
	return skippableStages[s]
}

// IsValid reports whether s is a known stage.
func (s Stage) IsValid() bool {
	return stageIndex(s) >= 0
}

// MaxAnswerRunes bounds one stage answer.
const MaxAnswerRunes = 2000

// confirmations are the review-stage keywords that complete the flow.
var confirmations = map[string]bool{
	"yes":     true,
	"ok":      true,
	"okay":    true,
	"confirm": true,
}

// IsConfirmation reports whether text confirms the review summary.
func IsConfirmation(text string) bool {
	return confirmations[strings.ToLower(strings.TrimSpace(text))]
}

// Session is one user's pass through the discovery flow.
type Session struct {
	ID        id.SessionID     `json:"id"`
	ChatID    int64            `json:"chat_id"`
	UserID    id.UserID        `json:"user_id"`
	Stage     Stage            `json:"stage"`
	Answers   map[Stage]string `json:"answers"`
	StartedAt time.Time        `json:"started_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewSession starts a fresh flow at the welcome stage.
func NewSession(chatID int64, userID id.UserID, now time.Time) (*Session, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "discovery session needs a user")
	}
	return &Session{
		ID:        id.NewSessionID(),
		ChatID:    chatID,
		UserID:    userID,
		Stage:     StageWelcome,
		Answers:   make(map[Stage]string),
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

// Expired reports whether the session idled past ttl.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.UpdatedAt) >= ttl
}

// Complete reports whether the flow reached its final stage.
func (s *Session) Complete() bool {
	return s.Stage == StageComplete
}

// Answer records text for the current stage and advances. The review
// stage only advances on a confirmation keyword; any other text keeps
// the session at review so the bot re-prompts.
func (s *Session) Answer(text string, now time.Time) error {
	if s.Complete() {
		return dErrors.New(dErrors.CodeInvariantViolation, "discovery flow is already complete")
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "answer cannot be empty")
	}
	if len([]rune(trimmed)) > MaxAnswerRunes {
		return dErrors.Newf(dErrors.CodeInvalidInput, "answer exceeds %d characters", MaxAnswerRunes)
	}

	if s.Stage == StageReview {
		if !IsConfirmation(trimmed) {
			s.UpdatedAt = now
			return nil
		}
		s.Stage = StageComplete
		s.UpdatedAt = now
		return nil
	}

	s.Answers[s.Stage] = trimmed
	s.Stage = s.Stage.Next()
	s.UpdatedAt = now
	return nil
}

// Back moves one stage toward the start. Not allowed from welcome or
// once the flow completed.
func (s *Session) Back(now time.Time) error {
	if s.Stage == StageWelcome {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot go back from the first stage")
	}
	if s.Complete() {
		return dErrors.New(dErrors.CodeInvariantViolation, "discovery flow is already complete")
	}
	s.Stage = s.Stage.Prev()
	delete(s.Answers, s.Stage)
	s.UpdatedAt = now
	return nil
}

// Skip passes the current stage without an answer. Only skippable
// stages allow it.
func (s *Session) Skip(now time.Time) error {
	if !s.Stage.Skippable() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "stage %s cannot be skipped", s.Stage)
	}
	delete(s.Answers, s.Stage)
	s.Stage = s.Stage.Next()
	s.UpdatedAt = now
	return nil
}

// Result is the completed flow's payload for the document generator.
type Result struct {
	SessionID   id.SessionID `json:"session_id"`
	ChatID      int64        `json:"chat_id"`
	UserID      id.UserID    `json:"user_id"`
	Problem     string       `json:"problem"`
	Audience    string       `json:"audience"`
	Features    string       `json:"features"`
	Constraints string       `json:"constraints"`
	CompletedAt time.Time    `json:"completed_at"`
}

// Result snapshots the answers. Only valid at complete.
func (s *Session) Result(now time.Time) (*Result, error) {
	if !s.Complete() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "discovery flow is at %s, not complete", s.Stage)
	}
	return &Result{
		SessionID:   s.ID,
		ChatID:      s.ChatID,
		UserID:      s.UserID,
		Problem:     s.Answers[StageProblem],
		Audience:    s.Answers[StageAudience],
		Features:    s.Answers[StageFeatures],
		Constraints: s.Answers[StageConstraints],
		CompletedAt: now,
	}, nil
}
