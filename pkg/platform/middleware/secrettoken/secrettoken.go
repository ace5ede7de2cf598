// Package secrettoken guards routes that authenticate with a single shared
// secret carried in a header, such as the Telegram webhook's
// X-Telegram-Bot-Api-Secret-Token.
package secrettoken

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	request "ralphbot/pkg/platform/middleware/request"
)

// Require rejects requests whose header value does not match the expected
// secret. Comparison is constant-time to prevent timing attacks. An empty
// expected secret disables the check (local development without a secret).
func Require(header, expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "secret token mismatch",
					"header", header,
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"secret token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
