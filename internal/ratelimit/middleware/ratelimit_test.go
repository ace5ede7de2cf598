package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ralphbot/internal/ratelimit/models"
	auth "ralphbot/pkg/platform/middleware/auth"
	"ralphbot/pkg/requestcontext"
)

type stubLimiter struct {
	result  *models.RateLimitResult
	err     error
	lastIP  string
	lastOp  string
	lastCls models.EndpointClass
}

func (s *stubLimiter) CheckIP(ctx context.Context, ip string, class models.EndpointClass) (*models.RateLimitResult, error) {
	s.lastIP, s.lastCls = ip, class
	return s.result, s.err
}

func (s *stubLimiter) CheckBoth(ctx context.Context, ip, userID string, class models.EndpointClass) (*models.RateLimitResult, error) {
	s.lastIP, s.lastOp, s.lastCls = ip, userID, class
	return s.result, s.err
}

func allowedResult() *models.RateLimitResult {
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     10,
		Remaining: 9,
		ResetAt:   time.Unix(1_900_000_000, 0),
	}
}

func deniedResult() *models.RateLimitResult {
	return &models.RateLimitResult{
		Allowed:    false,
		Limit:      10,
		Remaining:  0,
		ResetAt:    time.Unix(1_900_000_000, 0),
		RetryAfter: 42,
	}
}

func serveWithIP(t *testing.T, mw func(http.Handler) http.Handler, ip string) *httptest.ResponseRecorder {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/admin/feedback", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "test-agent"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("allowed request passes with headers", func(t *testing.T) {
		limiter := &stubLimiter{result: allowedResult()}
		m := New(limiter, logger)

		rec := serveWithIP(t, m.RateLimit(models.ClassRead), "203.0.113.10")

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "1900000000", rec.Header().Get("X-RateLimit-Reset"))
		assert.Equal(t, "203.0.113.10", limiter.lastIP)
		assert.Equal(t, models.ClassRead, limiter.lastCls)
	})

	t.Run("denied request gets 429 with retry-after", func(t *testing.T) {
		limiter := &stubLimiter{result: deniedResult()}
		m := New(limiter, logger)

		rec := serveWithIP(t, m.RateLimit(models.ClassWrite), "203.0.113.10")

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "42", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		limiter := &stubLimiter{err: context.DeadlineExceeded}
		m := New(limiter, logger)

		rec := serveWithIP(t, m.RateLimit(models.ClassRead), "203.0.113.10")

		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("disabled middleware passes everything", func(t *testing.T) {
		limiter := &stubLimiter{result: deniedResult()}
		m := New(limiter, logger, WithDisabled(true))

		rec := serveWithIP(t, m.RateLimit(models.ClassRead), "203.0.113.10")

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, limiter.lastIP)
	})
}

func TestRateLimitAuthenticated(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("combined check sees ip and operator", func(t *testing.T) {
		limiter := &stubLimiter{result: allowedResult()}
		m := New(limiter, logger)

		handler := m.RateLimitAuthenticated(models.ClassWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodPost, "/admin/feedback", nil)
		ctx := requestcontext.WithClientMetadata(req.Context(), "198.51.100.7", "test-agent")
		ctx = auth.WithOperator(ctx, "alice", auth.RoleAdmin)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "198.51.100.7", limiter.lastIP)
		assert.Equal(t, "alice", limiter.lastOp)
	})

	t.Run("denied combined check gets 429", func(t *testing.T) {
		limiter := &stubLimiter{result: deniedResult()}
		m := New(limiter, logger)

		handler := m.RateLimitAuthenticated(models.ClassWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodPost, "/admin/feedback", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}
