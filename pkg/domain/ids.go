// Package domain holds shared domain primitives: typed identifiers and
// small value types used across services, stores, and transports.
//
// IDs are distinct named UUID types so the compiler rejects cross-type
// assignment (a FeedbackID can never stand in for a UserID). Construct
// them with New* inside services or Parse* at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "ralphbot/pkg/domain-errors"
)

// UserID identifies a bot user (one per Telegram account seen).
type UserID uuid.UUID

// SessionID identifies a discovery session.
type SessionID uuid.UUID

// FeedbackID identifies a feedback item in the queue.
type FeedbackID uuid.UUID

// TaskID identifies a task derived from a requirements document.
type TaskID uuid.UUID

// DocumentID identifies a generated requirements document.
type DocumentID uuid.UUID

// ConsentID identifies a single consent grant.
type ConsentID uuid.UUID

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewSessionID returns a fresh random SessionID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewFeedbackID returns a fresh random FeedbackID.
func NewFeedbackID() FeedbackID { return FeedbackID(uuid.New()) }

// NewTaskID returns a fresh random TaskID.
func NewTaskID() TaskID { return TaskID(uuid.New()) }

// NewDocumentID returns a fresh random DocumentID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewConsentID returns a fresh random ConsentID.
func NewConsentID() ConsentID { return ConsentID(uuid.New()) }

// parseUUID enforces the shared parsing invariant: IDs must be valid,
// non-empty, non-nil UUIDs. All Parse* functions funnel through here so
// every ID type rejects the same inputs.
func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be nil", what)
	}
	return u, nil
}

// ParseUserID validates and converts external input into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseSessionID validates and converts external input into a SessionID.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

// ParseFeedbackID validates and converts external input into a FeedbackID.
func ParseFeedbackID(s string) (FeedbackID, error) {
	u, err := parseUUID(s, "feedback id")
	return FeedbackID(u), err
}

// ParseTaskID validates and converts external input into a TaskID.
func ParseTaskID(s string) (TaskID, error) {
	u, err := parseUUID(s, "task id")
	return TaskID(u), err
}

// ParseDocumentID validates and converts external input into a DocumentID.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document id")
	return DocumentID(u), err
}

// ParseConsentID validates and converts external input into a ConsentID.
func ParseConsentID(s string) (ConsentID, error) {
	u, err := parseUUID(s, "consent id")
	return ConsentID(u), err
}

func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id SessionID) String() string  { return uuid.UUID(id).String() }
func (id FeedbackID) String() string { return uuid.UUID(id).String() }
func (id TaskID) String() string     { return uuid.UUID(id).String() }
func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id ConsentID) String() string  { return uuid.UUID(id).String() }

// MarshalText renders IDs in canonical UUID form so JSON payloads carry
// "f407cde6-..." strings instead of raw byte arrays. UnmarshalText is
// deliberately looser than Parse*: it accepts the nil UUID, which appears
// legitimately in exports of anonymized records.
func (id UserID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id SessionID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id FeedbackID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id TaskID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id DocumentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ConsentID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SessionID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *FeedbackID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TaskID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DocumentID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ConsentID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id FeedbackID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TaskID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConsentID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
