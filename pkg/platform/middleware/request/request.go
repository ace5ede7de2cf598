// Package request provides request ID middleware and accessors.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"ralphbot/pkg/requestcontext"
)

// headerRequestID is honored when a trusted proxy already assigned an ID.
const headerRequestID = "X-Request-ID"

// RequestID assigns each request a correlation ID, reusing the inbound
// X-Request-ID header when present. The ID is stored in the context and
// echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(headerRequestID, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
