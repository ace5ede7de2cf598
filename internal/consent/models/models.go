package models

import (
	"time"

	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
)

// ConsentRecord captures a user's decision for a specific purpose. Purpose
// binding allows selective revocation without affecting other flows.
type ConsentRecord struct {
	ID        id.ConsentID      `json:"id"`
	UserID    id.UserID         `json:"user_id"`
	Purpose   id.ConsentPurpose `json:"purpose"`
	GrantedAt time.Time         `json:"granted_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	RevokedAt *time.Time        `json:"revoked_at,omitempty"`
}

// IsActive returns true when consent is currently valid.
func (c ConsentRecord) IsActive(now time.Time) bool {
	if c.RevokedAt != nil && !c.RevokedAt.After(now) {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// EnsureConsent enforces that consent exists and is active for the purpose.
func EnsureConsent(consents []ConsentRecord, purpose id.ConsentPurpose, now time.Time) error {
	for _, c := range consents {
		if c.Purpose == purpose && c.IsActive(now) {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeMissingConsent, "consent not granted for required purpose")
}

// GrantConsentRequest is the body for POST /me/consent.
type GrantConsentRequest struct {
	Purposes []string `json:"purposes"`
}

// RevokeConsentRequest is the body for POST /me/consent/revoke.
type RevokeConsentRequest struct {
	Purpose string `json:"purpose"`
}

// ConsentStatus is one row of the consent listing shown to users.
type ConsentStatus struct {
	Purpose   string     `json:"purpose"`
	Active    bool       `json:"active"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
