// Package httptransport assembles the HTTP surface: health and metrics,
// the Telegram webhook, the admin API and the self-service data rights
// routes. Handlers live with their domains; this package only composes
// them behind the shared middleware chain.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ralphbot/internal/csrf"
	ratelimitmw "ralphbot/internal/ratelimit/middleware"
	ratelimitmodels "ralphbot/internal/ratelimit/models"
	"ralphbot/internal/telegram"
	"ralphbot/pkg/platform/middleware/accesslog"
	authmw "ralphbot/pkg/platform/middleware/auth"
	"ralphbot/pkg/platform/middleware/metadata"
	"ralphbot/pkg/platform/middleware/recovery"
	"ralphbot/pkg/platform/middleware/request"
	"ralphbot/pkg/platform/middleware/requesttime"
	"ralphbot/pkg/platform/middleware/secrettoken"
)

// requestTimeout bounds every handler; slow dependencies surface as 504s
// instead of piling up goroutines.
const requestTimeout = 30 * time.Second

// Registrar is implemented by the per-domain handler packages.
type Registrar interface {
	Register(r chi.Router)
}

// Config carries everything the router composes.
type Config struct {
	Logger *slog.Logger

	// Webhook receives Telegram updates; WebhookSecret guards the route
	// with the constant-time header check (empty disables the check).
	Webhook       *telegram.WebhookHandler
	WebhookSecret string

	// MetricsHandler serves GET /metrics (promhttp).
	MetricsHandler http.Handler

	// Auth for the admin and self-service groups.
	JWTValidator authmw.JWTValidator
	Revocations  authmw.TokenRevocationChecker
	CSRF         *csrf.Service
	CSRFAudit    csrf.AuditPublisher

	// RateLimits is optional; nil leaves the API unthrottled.
	RateLimits *ratelimitmw.Middleware

	// Public handlers mount outside the token groups (token issuance).
	Public []Registrar
	// Admin handlers mount under the operator-token group.
	Admin []Registrar
	// Self handlers mount under the user-token group.
	Self []Registrar
}

// NewRouter builds the chi router with the full middleware chain.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(recovery.Middleware(logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(accesslog.Middleware(logger))
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/healthz", handleHealth)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		guard := secrettoken.Require(telegram.SecretTokenHeader, cfg.WebhookSecret, logger)
		r.With(guard).Post("/telegram/webhook", cfg.Webhook.HandleUpdate)
	}

	requireAuth := authmw.RequireAuth(cfg.JWTValidator, cfg.Revocations, logger)

	// Public token endpoints: no auth, but write-class throttling keeps
	// the bootstrap-secret exchange out of brute-force range.
	if len(cfg.Public) > 0 {
		r.Group(func(public chi.Router) {
			public.Use(chimw.AllowContentType("application/json"))
			if cfg.RateLimits != nil {
				public.Use(cfg.RateLimits.RateLimit(ratelimitmodels.ClassWrite))
			}
			for _, h := range cfg.Public {
				h.Register(public)
			}
		})
	}

	// Admin API: operator tokens, JSON bodies, CSRF on cookie-authed
	// mutations.
	r.Group(func(admin chi.Router) {
		admin.Use(chimw.AllowContentType("application/json"))
		if cfg.RateLimits != nil {
			admin.Use(rateLimitByMethod(cfg.RateLimits))
		}
		admin.Use(requireAuth)
		if cfg.CSRF != nil {
			admin.Use(csrf.Protect(cfg.CSRF, logger, cfg.CSRFAudit))
			admin.Get("/admin/csrf-token", csrf.NewHandler(cfg.CSRF, logger).HandleIssue)
		}
		for _, h := range cfg.Admin {
			h.Register(admin)
		}
	})

	// Self-service data rights: user tokens only.
	r.Group(func(self chi.Router) {
		self.Use(chimw.AllowContentType("application/json"))
		if cfg.RateLimits != nil {
			self.Use(rateLimitByMethod(cfg.RateLimits))
		}
		self.Use(requireAuth)
		for _, h := range cfg.Self {
			h.Register(self)
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// rateLimitByMethod applies the read policy to safe methods and the
// write policy to everything else.
func rateLimitByMethod(m *ratelimitmw.Middleware) func(http.Handler) http.Handler {
	read := m.RateLimit(ratelimitmodels.ClassRead)
	write := m.RateLimit(ratelimitmodels.ClassWrite)
	return func(next http.Handler) http.Handler {
		readNext := read(next)
		writeNext := write(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				readNext.ServeHTTP(w, r)
			default:
				writeNext.ServeHTTP(w, r)
			}
		})
	}
}
