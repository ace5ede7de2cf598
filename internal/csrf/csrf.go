// Package csrf issues and verifies the tokens required on unsafe
// admin-API requests that authenticate with the auth cookie. Bearer
// clients are exempt; a cross-site page cannot set an Authorization
// header, but the browser attaches cookies on its own.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	dErrors "ralphbot/pkg/domain-errors"
)

const defaultTTL = 2 * time.Hour

// Service mints HMAC-signed tokens bound to the authenticated operator.
// The token never needs server-side storage: possession of a valid
// signature over (operator, expiry, nonce) proves it came from us.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides how long an issued token stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

func New(secret string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "csrf secret is required")
	}
	s := &Service{
		secret: []byte(secret),
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueToken mints a token for the operator. Format:
// <expiry-unix>.<nonce>.<hex signature>.
func (s *Service) IssueToken(operator string, now time.Time) (token string, expiresAt time.Time, err error) {
	if operator == "" {
		return "", time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "operator is required")
	}

	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", time.Time{}, fmt.Errorf("generate csrf nonce: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(nonceBytes)

	expiresAt = now.Add(s.ttl)
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)
	sig := s.sign(operator, expiry, nonce)

	return expiry + "." + nonce + "." + sig, expiresAt, nil
}

// VerifyToken checks a token presented by the operator. Returns
// CodeForbidden for anything but a well-formed, unexpired, correctly
// signed token.
func (s *Service) VerifyToken(operator, token string, now time.Time) error {
	if operator == "" || token == "" {
		return dErrors.New(dErrors.CodeForbidden, "missing CSRF token")
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return dErrors.New(dErrors.CodeForbidden, "malformed CSRF token")
	}
	expiry, nonce, sig := parts[0], parts[1], parts[2]

	expiryUnix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return dErrors.New(dErrors.CodeForbidden, "malformed CSRF token")
	}
	if now.After(time.Unix(expiryUnix, 0)) {
		return dErrors.New(dErrors.CodeForbidden, "CSRF token expired")
	}

	expected := s.sign(operator, expiry, nonce)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return dErrors.New(dErrors.CodeForbidden, "invalid CSRF token")
	}
	return nil
}

func (s *Service) sign(operator, expiry, nonce string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(operator))
	mac.Write([]byte{0})
	mac.Write([]byte(expiry))
	mac.Write([]byte{0})
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}
