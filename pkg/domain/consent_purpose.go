package domain

import dErrors "ralphbot/pkg/domain-errors"

// ConsentPurpose is a domain value that identifies why data is processed.
// Invariant: the value must be one of the supported consent purposes.
//
// Usage: construct via ParseConsentPurpose at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ConsentPurpose string

// Supported consent purposes.
const (
	// ConsentPurposePersonalization covers persona tuning based on past chats.
	ConsentPurposePersonalization ConsentPurpose = "personalization"
	// ConsentPurposeAnalytics covers aggregate usage statistics.
	ConsentPurposeAnalytics ConsentPurpose = "analytics"
	// ConsentPurposeTranscriptsRetention covers keeping discovery transcripts
	// after a session completes.
	ConsentPurposeTranscriptsRetention ConsentPurpose = "transcripts_retention"
)

// validConsentPurposes is the single source of truth for valid consent purposes.
var validConsentPurposes = map[ConsentPurpose]bool{
	ConsentPurposePersonalization:      true,
	ConsentPurposeAnalytics:            true,
	ConsentPurposeTranscriptsRetention: true,
}

// ParseConsentPurpose constructs a ConsentPurpose from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParseConsentPurpose(s string) (ConsentPurpose, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "purpose cannot be empty")
	}
	p := ConsentPurpose(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid purpose")
	}
	return p, nil
}

// IsValid checks if the consent purpose is one of the supported enum values.
func (p ConsentPurpose) IsValid() bool {
	return validConsentPurposes[p]
}

// String returns the string representation of the purpose.
func (p ConsentPurpose) String() string {
	return string(p)
}

// AllConsentPurposes lists every supported purpose, for handlers that
// render the consent menu.
func AllConsentPurposes() []ConsentPurpose {
	return []ConsentPurpose{
		ConsentPurposePersonalization,
		ConsentPurposeAnalytics,
		ConsentPurposeTranscriptsRetention,
	}
}
