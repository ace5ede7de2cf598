// Package service decides whether a caller is inside its request budget.
// It layers class policies over a bucket store and records exceeded limits
// in the security audit trail.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"ralphbot/internal/ratelimit/metrics"
	"ralphbot/internal/ratelimit/models"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/platform/privacy"
	"ralphbot/pkg/requestcontext"
)

// BucketStore counts requests per key inside a sliding window.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
	AllowN(ctx context.Context, key string, cost int, limit int, window time.Duration) (*models.RateLimitResult, error)
	Reset(ctx context.Context, key string) error
	GetCurrentCount(ctx context.Context, key string) (int, error)
}

// AuditPublisher records limit violations for security review.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service checks rate limits per endpoint class. Policies are fixed at
// construction; unknown classes are denied rather than waved through.
type Service struct {
	buckets  BucketStore
	policies map[models.EndpointClass]models.Policy
	logger   *slog.Logger
	auditPub AuditPublisher
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(pub AuditPublisher) Option {
	return func(s *Service) {
		s.auditPub = pub
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPolicy overrides the policy for one class.
func WithPolicy(class models.EndpointClass, limit int, window time.Duration) Option {
	return func(s *Service) {
		s.policies[class] = models.Policy{Limit: limit, Window: window}
	}
}

// New constructs a Service with default per-minute policies. Callers tune
// the chat and submit budgets from config via WithPolicy.
func New(buckets BucketStore, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, errors.New("bucket store is required")
	}
	s := &Service{
		buckets: buckets,
		policies: map[models.EndpointClass]models.Policy{
			models.ClassChat:   {Limit: 20, Window: time.Minute},
			models.ClassSubmit: {Limit: 5, Window: time.Minute},
			models.ClassRead:   {Limit: 100, Window: time.Minute},
			models.ClassWrite:  {Limit: 30, Window: time.Minute},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckIP applies the class policy to one client IP.
func (s *Service) CheckIP(ctx context.Context, ip string, class models.EndpointClass) (*models.RateLimitResult, error) {
	return s.check(ctx, models.KeyPrefixIP, ip, class, privacy.AnonymizeIP(ip))
}

// CheckUser applies the class policy to one user ID.
func (s *Service) CheckUser(ctx context.Context, userID string, class models.EndpointClass) (*models.RateLimitResult, error) {
	return s.check(ctx, models.KeyPrefixUser, userID, class, userID)
}

// CheckChat applies the chat policy to one Telegram chat.
func (s *Service) CheckChat(ctx context.Context, chatID int64) (*models.RateLimitResult, error) {
	key := strconv.FormatInt(chatID, 10)
	return s.check(ctx, models.KeyPrefixChat, key, models.ClassChat, key)
}

// CheckBoth enforces the IP and user policies together, returning the more
// restrictive outcome. Used on authenticated admin mutations so a single
// operator cannot spread load across addresses.
func (s *Service) CheckBoth(ctx context.Context, ip, userID string, class models.EndpointClass) (*models.RateLimitResult, error) {
	ipRes, err := s.check(ctx, models.KeyPrefixIP, ip, class, privacy.AnonymizeIP(ip))
	if err != nil {
		return nil, err
	}
	if !ipRes.Allowed {
		return ipRes, nil
	}
	userRes, err := s.check(ctx, models.KeyPrefixUser, userID, class, userID)
	if err != nil {
		return nil, err
	}
	if !userRes.Allowed {
		return userRes, nil
	}
	return moreRestrictive(ipRes, userRes), nil
}

// Reset clears the bucket for one identifier within one class.
func (s *Service) Reset(ctx context.Context, prefix models.KeyPrefix, identifier string, class models.EndpointClass) error {
	return s.buckets.Reset(ctx, models.BucketKey(prefix, identifier, class))
}

func (s *Service) check(
	ctx context.Context,
	prefix models.KeyPrefix,
	identifier string,
	class models.EndpointClass,
	logIdentifier string,
) (*models.RateLimitResult, error) {
	policy, ok := s.policies[class]
	if !ok {
		// Deny by default: a class without a policy is a wiring bug, not
		// free traffic.
		s.logger.Error("no rate limit policy for class", "endpoint_class", class)
		return &models.RateLimitResult{
			Allowed:    false,
			ResetAt:    requestcontext.Now(ctx).Add(time.Minute),
			RetryAfter: 60,
		}, nil
	}

	key := models.BucketKey(prefix, identifier, class)
	result, err := s.buckets.Allow(ctx, key, policy.Limit, policy.Window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check rate limit")
	}

	if !result.Allowed {
		if s.metrics != nil {
			s.metrics.RecordExceeded(string(prefix), string(class))
		}
		s.logger.Warn("rate limit exceeded",
			"identifier", logIdentifier,
			"endpoint_class", class,
			"limit", policy.Limit,
			"window_seconds", int(policy.Window.Seconds()),
		)
		if s.auditPub != nil {
			_ = s.auditPub.Emit(ctx, audit.Event{
				Action:    string(audit.EventRateLimitExceeded),
				Subject:   fmt.Sprintf("%s:%s", prefix, logIdentifier),
				Reason:    string(class),
				RequestID: requestcontext.RequestID(ctx),
			})
		}
	}
	return result, nil
}

// moreRestrictive returns the result with fewer remaining requests, or the
// earlier reset time when remaining counts are equal.
func moreRestrictive(a, b *models.RateLimitResult) *models.RateLimitResult {
	if a.Remaining < b.Remaining {
		return a
	}
	if b.Remaining < a.Remaining {
		return b
	}
	if a.ResetAt.Before(b.ResetAt) {
		return a
	}
	return b
}
