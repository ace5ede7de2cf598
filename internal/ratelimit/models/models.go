package models

import (
	"strings"
	"time"
)

// EndpointClass categorizes traffic for differentiated rate limiting.
type EndpointClass string

const (
	// ClassChat: inbound Telegram messages, keyed per chat.
	ClassChat EndpointClass = "chat"
	// ClassSubmit: feedback submissions, keyed per user.
	ClassSubmit EndpointClass = "submit"
	// ClassRead: admin API reads, keyed per IP.
	ClassRead EndpointClass = "read"
	// ClassWrite: admin API mutations, keyed per IP.
	ClassWrite EndpointClass = "write"
)

// IsValid checks if the endpoint class is one of the supported enum values.
func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassChat, ClassSubmit, ClassRead, ClassWrite:
		return true
	}
	return false
}

// KeyPrefix scopes a bucket key to the kind of identifier it counts.
type KeyPrefix string

const (
	KeyPrefixIP   KeyPrefix = "ip"
	KeyPrefixUser KeyPrefix = "user"
	KeyPrefixChat KeyPrefix = "chat"
)

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// Policy pairs a request budget with its window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// BucketKey builds the store key for one identifier within one class.
// Identifiers are sanitized so a value containing ':' cannot collide with
// an adjacent bucket.
func BucketKey(prefix KeyPrefix, identifier string, class EndpointClass) string {
	return string(prefix) + ":" + SanitizeKeySegment(identifier) + ":" + string(class)
}

// SanitizeKeySegment escapes the key delimiter in identifier segments.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
