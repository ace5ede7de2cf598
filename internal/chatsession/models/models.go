// Package models holds per-chat conversation state: the turn history
// the conversation closer reads, and the feedback capture dialog when
// one is in flight. Sessions are transient and expire with inactivity.
package models

import (
	"time"

	"ralphbot/internal/conversation"
	feedback "ralphbot/internal/feedback/models"
	id "ralphbot/pkg/domain"
)

// DialogStep is the position in the feedback capture mini-dialog.
type DialogStep string

const (
	StepKind     DialogStep = "kind"
	StepSeverity DialogStep = "severity"
	StepText     DialogStep = "text"
	StepConfirm  DialogStep = "confirm"
)

// FeedbackDialog accumulates a report across the four capture steps.
type FeedbackDialog struct {
	Step     DialogStep        `json:"step"`
	Kind     feedback.Kind     `json:"kind,omitempty"`
	Severity feedback.Severity `json:"severity,omitempty"`
	Text     string            `json:"text,omitempty"`
}

// Session is one chat's transient state.
type Session struct {
	ChatID    int64               `json:"chat_id"`
	UserID    id.UserID           `json:"user_id"`
	Turns     []conversation.Turn `json:"turns,omitempty"`
	Dialog    *FeedbackDialog     `json:"dialog,omitempty"`
	Closed    bool                `json:"closed"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// New starts an empty session.
func New(chatID int64, userID id.UserID, now time.Time) *Session {
	return &Session{ChatID: chatID, UserID: userID, UpdatedAt: now}
}

// RecordTurn appends a classified turn, keeping the history bounded at
// the closer's budget so stored sessions stay small.
func (s *Session) RecordTurn(turnType conversation.TurnType, now time.Time) {
	s.Turns = append(s.Turns, conversation.Turn{Type: turnType, At: now})
	if len(s.Turns) > conversation.TurnBudget {
		s.Turns = s.Turns[len(s.Turns)-conversation.TurnBudget:]
	}
	s.UpdatedAt = now
}

// StartDialog begins feedback capture at the kind step.
func (s *Session) StartDialog(now time.Time) {
	s.Dialog = &FeedbackDialog{Step: StepKind}
	s.UpdatedAt = now
}

// ClearDialog drops any in-flight capture.
func (s *Session) ClearDialog(now time.Time) {
	s.Dialog = nil
	s.UpdatedAt = now
}

// Close marks the conversation wrapped up; Reopen clears it on the next
// command.
func (s *Session) Close(now time.Time) {
	s.Closed = true
	s.Turns = nil
	s.UpdatedAt = now
}

func (s *Session) Reopen(now time.Time) {
	s.Closed = false
	s.UpdatedAt = now
}
