package audit

import (
	"context"
	"time"

	id "ralphbot/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require long retention: consent changes, user deletion, exports.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	// Examples: failed admin auth, rejected webhooks, rate limit hits.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled or aggregated with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	// Subject is a human-readable identifier for the entity acted on
	// (feedback ID, session ID, consent purpose).
	Subject string
	Action  string
	// Purpose is set for consent events.
	Purpose string
	// Decision records the outcome where an action can go several ways
	// (e.g. a conversation close decision or a duplicate verdict).
	Decision string
	Reason   string
	// RequestID is the correlation ID from the HTTP request or update context.
	RequestID string
	// ActorID tracks who performed the action when different from UserID.
	// Used for admin operations where an operator acts on a user's queue.
	ActorID string
}

// Store persists audit events. Implementations must be safe for
// concurrent use; the publisher may append from a background goroutine.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

type AuditEvent string

const (
	// User events
	EventUserCreated     AuditEvent = "user_created"
	EventUserDeleted     AuditEvent = "user_deleted"
	EventUserTierChanged AuditEvent = "user_tier_changed"
	EventDataExported    AuditEvent = "data_exported"

	// Feedback events
	EventFeedbackSubmitted    AuditEvent = "feedback_submitted"
	EventFeedbackTransitioned AuditEvent = "feedback_transitioned"
	EventFeedbackVoted        AuditEvent = "feedback_voted"
	EventDuplicateMarked      AuditEvent = "duplicate_marked"
	EventDuplicateOverridden  AuditEvent = "duplicate_overridden"

	// Discovery session events
	EventSessionStarted   AuditEvent = "session_started"
	EventSessionCompleted AuditEvent = "session_completed"
	EventSessionCancelled AuditEvent = "session_cancelled"
	EventSessionExpired   AuditEvent = "session_expired"

	// Document events
	EventDocumentGenerated AuditEvent = "document_generated"
	EventDocumentRevised   AuditEvent = "document_revised"
	EventTasksReordered    AuditEvent = "tasks_reordered"

	// Consent events
	EventConsentGranted AuditEvent = "consent_granted"
	EventConsentRevoked AuditEvent = "consent_revoked"
	EventConsentChecked AuditEvent = "consent_checked"

	// Security events
	EventAuthFailed        AuditEvent = "auth_failed"
	EventTokenIssued       AuditEvent = "token_issued"
	EventTokenRevoked      AuditEvent = "token_revoked"
	EventWebhookRejected   AuditEvent = "webhook_rejected"
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
	EventCSRFRejected      AuditEvent = "csrf_rejected"

	// Persona events
	EventPersonaChanged AuditEvent = "persona_changed"
)

// eventCategories maps each audit event to its category.
// Compliance: legal/regulatory significance, long retention required.
// Security: security monitoring and alerting.
// Operations: debugging, operational visibility, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events
	EventUserCreated:    CategoryCompliance,
	EventUserDeleted:    CategoryCompliance,
	EventDataExported:   CategoryCompliance,
	EventConsentGranted: CategoryCompliance,
	EventConsentRevoked: CategoryCompliance,

	// Security events
	EventAuthFailed:        CategorySecurity,
	EventWebhookRejected:   CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,
	EventCSRFRejected:      CategorySecurity,

	// Operations events
	EventUserTierChanged:      CategoryOperations,
	EventFeedbackSubmitted:    CategoryOperations,
	EventFeedbackTransitioned: CategoryOperations,
	EventFeedbackVoted:        CategoryOperations,
	EventDuplicateMarked:      CategoryOperations,
	EventDuplicateOverridden:  CategoryOperations,
	EventSessionStarted:       CategoryOperations,
	EventSessionCompleted:     CategoryOperations,
	EventSessionCancelled:     CategoryOperations,
	EventSessionExpired:       CategoryOperations,
	EventDocumentGenerated:    CategoryOperations,
	EventDocumentRevised:      CategoryOperations,
	EventTasksReordered:       CategoryOperations,
	EventConsentChecked:       CategoryOperations,
	EventTokenIssued:          CategoryOperations,
	EventTokenRevoked:         CategorySecurity,
	EventPersonaChanged:       CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
