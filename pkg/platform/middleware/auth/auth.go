package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "ralphbot/pkg/domain"
	request "ralphbot/pkg/platform/middleware/request"
	"ralphbot/pkg/requestcontext"
)

// JWTValidator defines the interface for validating admin JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// TokenRevocationChecker defines the interface for checking if tokens are revoked.
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	Operator   string // who the token was issued to
	Role       string // admin, viewer or user
	Subject    string // user ID for self-service tokens, empty for operators
	JTI        string // JWT ID for revocation tracking
	APIVersion string // API version the token was minted for
}

// Roles a token can carry. RoleUser tokens are minted for self-service
// data endpoints and carry the user ID as subject instead of an operator.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
	RoleUser   = "user"
)

// AuthCookieName is the cookie browser sessions carry the token in when
// no Authorization header is set.
const AuthCookieName = "ralph_token"

// Channels a validated token can arrive through. CSRF checks only apply
// to cookie-authenticated requests.
const (
	ChannelBearer = "bearer"
	ChannelCookie = "cookie"
)

// Context keys for storing authenticated operator information.
type contextKeyOperator struct{}
type contextKeyRole struct{}
type contextKeyChannel struct{}

var (
	ContextKeyOperator = contextKeyOperator{}
	ContextKeyRole     = contextKeyRole{}
	ContextKeyChannel  = contextKeyChannel{}
)

// GetOperator retrieves the authenticated operator name from the context.
func GetOperator(ctx context.Context) string {
	operator, ok := ctx.Value(ContextKeyOperator).(string)
	if !ok {
		return ""
	}
	return operator
}

// GetRole retrieves the operator role from the context.
func GetRole(ctx context.Context) string {
	role, ok := ctx.Value(ContextKeyRole).(string)
	if !ok {
		return ""
	}
	return role
}

// GetAuthChannel reports whether the token arrived via bearer header or
// cookie. Empty when the request is unauthenticated.
func GetAuthChannel(ctx context.Context) string {
	channel, ok := ctx.Value(ContextKeyChannel).(string)
	if !ok {
		return ""
	}
	return channel
}

// WithOperator injects operator identity into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithOperator(ctx context.Context, operator, role string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyOperator, operator)
	ctx = context.WithValue(ctx, ContextKeyRole, role)
	return ctx
}

// WithAuthChannel injects the auth channel, for tests exercising
// channel-dependent middleware.
func WithAuthChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ContextKeyChannel, channel)
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// extractToken pulls the JWT from the Authorization header, falling back
// to the auth cookie for browser sessions.
func extractToken(r *http.Request) (token, channel string) {
	const bearerPrefix = "Bearer "
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix); ok && after != "" {
		return after, ChannelBearer
	}
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, ChannelCookie
	}
	return "", ""
}

// RequireAuth authenticates requests with a Bearer token or the auth
// cookie. When a revocation checker is supplied, tokens without a jti or
// with a revoked jti are rejected.
func RequireAuth(validator JWTValidator, revocationChecker TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, channel := extractToken(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			if revocationChecker != nil {
				if claims.JTI == "" {
					logger.WarnContext(ctx, "unauthorized access - missing token jti",
						"request_id", request.GetRequestID(ctx),
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
					return
				}

				revoked, err := revocationChecker.IsTokenRevoked(ctx, claims.JTI)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation",
						"error", err,
						"request_id", request.GetRequestID(ctx),
					)
					writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to validate token")
					return
				}
				if revoked {
					logger.WarnContext(ctx, "unauthorized access - token revoked",
						"jti", claims.JTI,
						"request_id", request.GetRequestID(ctx),
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Token has been revoked")
					return
				}
			}

			ctx = context.WithValue(ctx, ContextKeyOperator, claims.Operator)
			ctx = context.WithValue(ctx, ContextKeyRole, claims.Role)
			ctx = context.WithValue(ctx, ContextKeyChannel, channel)
			if claims.Subject != "" {
				if userID, err := id.ParseUserID(claims.Subject); err == nil {
					ctx = requestcontext.WithUserID(ctx, userID)
				}
			}
			if claims.APIVersion != "" {
				ctx = requestcontext.WithTokenAPIVersion(ctx, id.APIVersion(claims.APIVersion))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated requests whose role does not match.
// Must run after RequireAuth.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if GetRole(ctx) != role {
				logger.WarnContext(ctx, "forbidden - insufficient role",
					"required_role", role,
					"operator", GetOperator(ctx),
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Insufficient role for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
