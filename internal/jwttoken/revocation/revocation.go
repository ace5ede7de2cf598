// Package revocation tracks revoked admin token JTIs until their natural
// expiry. Three backends share one interface: memory for development,
// Redis for distributed deployments, Postgres when Redis is absent.
package revocation

import (
	"context"
	"fmt"
	"time"

	"ralphbot/pkg/platform/sentinel"
)

// Clock abstracts time.Now for testability.
type Clock func() time.Time

// TokenRevocationList is the storage contract for revoked JTIs.
type TokenRevocationList interface {
	// RevokeToken marks a jti revoked for ttl (the token's remaining life).
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked reports whether a jti is currently revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// RevokeBatch revokes several jtis at once (operator-wide revocation).
	RevokeBatch(ctx context.Context, jtis []string, ttl time.Duration) error
}

// Checker adapts a TokenRevocationList to the auth middleware's
// TokenRevocationChecker interface.
type Checker struct {
	trl TokenRevocationList
}

func NewChecker(trl TokenRevocationList) Checker {
	return Checker{trl: trl}
}

func (c Checker) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return c.trl.IsRevoked(ctx, jti)
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}
