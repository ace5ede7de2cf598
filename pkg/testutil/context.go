package testutil

import (
	"context"
	"net/http"

	id "ralphbot/pkg/domain"
	authmw "ralphbot/pkg/platform/middleware/auth"
	"ralphbot/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context.
// This simulates what the update dispatcher does after resolving the sender.
// If the userID is not a valid UUID, it will not be added to the context.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsedUserID, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsedUserID))
	}
	return req
}

// WithChatID adds a Telegram chat ID to the request context.
func WithChatID(req *http.Request, chatID int64) *http.Request {
	return req.WithContext(requestcontext.WithChatID(req.Context(), chatID))
}

// WithOperator adds operator identity to the request context.
// This is the typical state for an authenticated admin API request.
func WithOperator(req *http.Request, operator, role string) *http.Request {
	return req.WithContext(authmw.WithOperator(req.Context(), operator, role))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
