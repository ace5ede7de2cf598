package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	authhandler "ralphbot/internal/auth/handler"
	authservice "ralphbot/internal/auth/service"
	"ralphbot/internal/bot"
	chatmem "ralphbot/internal/chatsession/store/memory"
	chatredis "ralphbot/internal/chatsession/store/redis"
	consenthandler "ralphbot/internal/consent/handler"
	consentservice "ralphbot/internal/consent/service"
	consentmem "ralphbot/internal/consent/store/memory"
	consentpg "ralphbot/internal/consent/store/postgres"
	"ralphbot/internal/csrf"
	discoveryservice "ralphbot/internal/discovery/service"
	discoverymem "ralphbot/internal/discovery/store/memory"
	discoveryredis "ralphbot/internal/discovery/store/redis"
	"ralphbot/internal/events"
	"ralphbot/internal/feedback/dedup"
	feedbackhandler "ralphbot/internal/feedback/handler"
	feedbackmetrics "ralphbot/internal/feedback/metrics"
	feedbackmodels "ralphbot/internal/feedback/models"
	feedbackservice "ralphbot/internal/feedback/service"
	feedbackmem "ralphbot/internal/feedback/store/memory"
	feedbackpg "ralphbot/internal/feedback/store/postgres"
	"ralphbot/internal/gdpr"
	gdprhandler "ralphbot/internal/gdpr/handler"
	"ralphbot/internal/jwttoken"
	"ralphbot/internal/jwttoken/revocation"
	"ralphbot/internal/persona"
	"ralphbot/internal/platform/config"
	"ralphbot/internal/platform/httpserver"
	"ralphbot/internal/platform/kafka"
	"ralphbot/internal/platform/logger"
	"ralphbot/internal/platform/metrics"
	"ralphbot/internal/platform/postgres"
	platformredis "ralphbot/internal/platform/redis"
	prdhandler "ralphbot/internal/prd/handler"
	"ralphbot/internal/prd/llm"
	prdservice "ralphbot/internal/prd/service"
	prdmem "ralphbot/internal/prd/store/memory"
	qualityhandler "ralphbot/internal/quality/handler"
	qualityservice "ralphbot/internal/quality/service"
	qualitymem "ralphbot/internal/quality/store/memory"
	qualitypg "ralphbot/internal/quality/store/postgres"
	ratelimitmetrics "ralphbot/internal/ratelimit/metrics"
	ratelimitmw "ralphbot/internal/ratelimit/middleware"
	ratelimitmodels "ralphbot/internal/ratelimit/models"
	ratelimitservice "ralphbot/internal/ratelimit/service"
	"ralphbot/internal/ratelimit/store/bucket"
	"ralphbot/internal/telegram"
	httptransport "ralphbot/internal/transport/http"
	usersservice "ralphbot/internal/users/service"
	usersmem "ralphbot/internal/users/store/memory"
	userspg "ralphbot/internal/users/store/postgres"
	audit "ralphbot/pkg/platform/audit"
	auditpub "ralphbot/pkg/platform/audit/publisher"
	auditmem "ralphbot/pkg/platform/audit/store/memory"
	auditpg "ralphbot/pkg/platform/audit/store/postgres"
)

const (
	shutdownGrace   = 10 * time.Second
	auditBufferSize = 256
	sweepInterval   = 24 * time.Hour
	jwtIssuer       = "ralphbot"
	jwtAudience     = "ralphbot"
)

// main wires the dependency graph and hands lifecycle control to run.
// Business logic lives in the internal services packages.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Backing infrastructure. Empty DSN / URL means the in-memory
	// fallbacks, which is the local-development default.
	var (
		sqlDB *sql.DB
		pool  *pgxpool.Pool
	)
	if cfg.Postgres.DSN != "" {
		var err error
		sqlDB, err = postgres.NewSQL(cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		pool, err = postgres.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var rdb *platformredis.Client
	if cfg.Redis.URL != "" {
		var err error
		rdb, err = platformredis.New(cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	// Audit trail. Async so emission never blocks a request.
	var auditStore audit.Store = auditmem.NewInMemoryStore()
	if sqlDB != nil {
		auditStore = auditpg.New(sqlDB)
	}
	auditPub := auditpub.NewPublisher(auditStore, auditpub.WithAsyncBuffer(auditBufferSize))
	defer auditPub.Close()

	// Domain events for downstream consumers.
	eventPub := events.NewNoopPublisher(log)
	if len(cfg.Kafka.Brokers) > 0 {
		kc, err := kafka.New(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer kc.Close()
		eventPub = events.NewKafkaPublisher(kc, log)
	}

	// Users and consent.
	var usersStore usersservice.Store = usersmem.NewInMemoryStore()
	if sqlDB != nil {
		usersStore = userspg.New(sqlDB)
	}
	usersSvc, err := usersservice.New(usersStore,
		usersservice.WithLogger(log),
		usersservice.WithAuditPublisher(auditPub),
	)
	if err != nil {
		return err
	}

	var consentStore consentservice.Store = consentmem.NewInMemoryStore()
	if sqlDB != nil {
		consentStore = consentpg.New(sqlDB)
	}
	consentSvc, err := consentservice.New(consentStore,
		consentservice.WithLogger(log),
		consentservice.WithAuditPublisher(auditPub),
		consentservice.WithTTL(config.ConsentTTL),
	)
	if err != nil {
		return err
	}

	// Discovery wizard sessions.
	var discoveryStore discoveryservice.Store = discoverymem.NewInMemoryStore()
	if rdb != nil {
		discoveryStore = discoveryredis.New(rdb.Client, config.DiscoverySessionTTL)
	}
	discoverySvc, err := discoveryservice.New(discoveryStore,
		discoveryservice.WithLogger(log),
		discoveryservice.WithAuditPublisher(auditPub),
		discoveryservice.WithIdleTTL(config.DiscoverySessionTTL),
	)
	if err != nil {
		return err
	}

	// Submitter quality tiers.
	var qualityStore qualityservice.Store = qualitymem.NewInMemoryStore()
	if sqlDB != nil {
		qualityStore = qualitypg.New(sqlDB)
	}
	qualitySvc, err := qualityservice.New(qualityStore,
		qualityservice.WithLogger(log),
		qualityservice.WithAuditPublisher(auditPub),
	)
	if err != nil {
		return err
	}

	// Feedback queue with duplicate detection.
	var (
		feedbackStore feedbackQueueStore
		overrides     dedup.OverrideStore
		dupIndex      dedup.FingerprintIndex
	)
	if pool != nil {
		feedbackStore = feedbackpg.New(pool)
		overrides = feedbackpg.NewOverrideStore(pool)
	} else {
		feedbackStore = feedbackmem.NewInMemoryStore()
		overrides = dedup.NewInMemoryOverrides()
	}
	if rdb != nil {
		dupIndex = dedup.NewRedisIndex(rdb.Client, config.DuplicateIndexTTL)
	} else {
		dupIndex = dedup.NewInMemoryIndex(config.DuplicateIndexTTL)
	}
	detector := dedup.New(dupIndex, overrides, feedbackStore)
	feedbackSvc, err := feedbackservice.New(feedbackStore, detector, qualitySvc,
		feedbackservice.WithLogger(log),
		feedbackservice.WithAuditPublisher(auditPub),
		feedbackservice.WithEventPublisher(eventPub),
		feedbackservice.WithMetrics(feedbackmetrics.New()),
	)
	if err != nil {
		return err
	}

	// PRD generation falls back to the deterministic template when no
	// provider is configured.
	provider, err := llm.New(cfg.LLM.Provider, llmKey(cfg.LLM), cfg.LLM.Model)
	if err != nil {
		return err
	}
	prdOpts := []prdservice.Option{
		prdservice.WithLogger(log),
		prdservice.WithAuditPublisher(auditPub),
	}
	if provider != nil {
		prdOpts = append(prdOpts, prdservice.WithProvider(provider))
	}
	prdSvc, err := prdservice.New(prdmem.NewInMemoryStore(), prdOpts...)
	if err != nil {
		return err
	}

	// Conversation state per chat.
	var sessions chatSessionStore
	if rdb != nil {
		sessions = chatredis.New(rdb.Client, config.DiscoverySessionTTL)
	} else {
		sessions = chatmem.NewInMemoryStore(chatmem.WithTTL(config.DiscoverySessionTTL))
	}

	gdprSvc, err := gdpr.New(usersSvc, consentSvc, feedbackSvc, discoverySvc, qualitySvc, prdSvc,
		gdpr.WithLogger(log),
		gdpr.WithAuditPublisher(auditPub),
		gdpr.WithChatSessions(sessions),
	)
	if err != nil {
		return err
	}

	// Rate limiting shared by the webhook and the admin API.
	var buckets ratelimitservice.BucketStore = bucket.NewInMemoryBucketStore()
	if rdb != nil {
		buckets = bucket.NewRedisBucketStore(rdb.Client)
	}
	limiter, err := ratelimitservice.New(buckets,
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithAuditPublisher(auditPub),
		ratelimitservice.WithMetrics(ratelimitmetrics.New()),
		ratelimitservice.WithPolicy(ratelimitmodels.ClassSubmit, cfg.RateLimit.SubmitPerMinute, time.Minute),
		ratelimitservice.WithPolicy(ratelimitmodels.ClassChat, cfg.RateLimit.ChatPerMinute, time.Minute),
	)
	if err != nil {
		return err
	}

	// Tokens, revocation, CSRF.
	jwtSvc := jwttoken.NewJWTService(cfg.JWTSigningKey, jwtIssuer, jwtAudience)
	var trl revocation.TokenRevocationList
	switch {
	case rdb != nil:
		trl = revocation.NewRedisTRL(rdb.Client)
	case sqlDB != nil:
		trl = revocation.NewPostgresTRL(sqlDB)
	default:
		trl = revocation.NewMemoryTRL()
	}

	csrfSvc, err := csrf.New(cfg.JWTSigningKey)
	if err != nil {
		return err
	}

	authSvc, err := authservice.New(jwtSvc, cfg.AdminSecretHash, trl,
		authservice.WithLogger(log),
		authservice.WithAuditPublisher(auditPub),
		authservice.WithTokenTTL(cfg.AdminTokenTTL),
	)
	if err != nil {
		return err
	}

	// Telegram surface. An empty token leaves the admin API running
	// without the bot, which is what local API work wants.
	var (
		dispatcher *telegram.Dispatcher
		webhook    *telegram.WebhookHandler
		tgClient   *telegram.Client
	)
	if cfg.Telegram.Token != "" {
		var clientOpts []telegram.ClientOption
		if cfg.Telegram.BaseURL != "" {
			clientOpts = append(clientOpts, telegram.WithBaseURL(cfg.Telegram.BaseURL))
		}
		tgClient = telegram.NewClient(cfg.Telegram.Token, clientOpts...)

		botSvc, err := bot.New(tgClient, usersSvc, consentSvc, discoverySvc, prdSvc,
			botFeedback{feedbackSvc}, gdprSvc, sessions, persona.NewRegistry(),
			bot.WithLogger(log),
			bot.WithWorm(persona.NewWorm()),
		)
		if err != nil {
			return err
		}

		dispatcher = telegram.NewDispatcher(botSvc, telegram.DispatcherConfig{}, log)
		webhook = telegram.NewWebhookHandler(dispatcher, log,
			telegram.WithWebhookLimiter(limiter),
			telegram.WithWebhookAuditPublisher(auditPub),
		)
	}

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Webhook:        webhook,
		WebhookSecret:  cfg.Telegram.WebhookSecret,
		MetricsHandler: metrics.Handler(),
		JWTValidator:   jwttoken.NewJWTServiceAdapter(jwtSvc),
		Revocations:    revocation.NewChecker(trl),
		CSRF:           csrfSvc,
		CSRFAudit:      auditPub,
		RateLimits:     ratelimitmw.New(limiter, log),
		Public: []httptransport.Registrar{
			authhandler.New(authSvc, log),
		},
		Admin: []httptransport.Registrar{
			feedbackhandler.New(feedbackSvc, log),
			prdhandler.New(prdSvc, log),
			qualityhandler.New(qualitySvc, log),
		},
		Self: []httptransport.Registrar{
			consenthandler.New(consentSvc, log),
			gdprhandler.New(gdprSvc, log),
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	if tgClient != nil && cfg.Telegram.WebhookURL != "" {
		if err := tgClient.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
		log.Info("telegram webhook registered", "url", cfg.Telegram.WebhookURL)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting ralphbot", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		if dispatcher != nil {
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			dispatcher.Shutdown(drainCtx)
		}
		return httpserver.Shutdown(srv, shutdownGrace)
	})

	// Daily rescore so the age boost on open entries lands without
	// waiting for traffic.
	group.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				swept, err := feedbackSvc.SweepAges(groupCtx)
				if err != nil {
					log.Error("age sweep failed", "error", err)
					continue
				}
				log.Info("age sweep complete", "rescored", swept)
			}
		}
	})

	return group.Wait()
}

// llmKey picks the credential matching the configured provider.
func llmKey(cfg config.LLM) string {
	switch cfg.Provider {
	case "anthropic":
		return cfg.AnthropicKey
	case "openai":
		return cfg.OpenAIKey
	default:
		return ""
	}
}

// feedbackQueueStore is the union of the persistence surfaces the queue
// needs: the service reads and writes entries, the duplicate detector
// scans recent same-kind candidates.
type feedbackQueueStore interface {
	feedbackservice.Store
	dedup.CandidateLister
}

// chatSessionStore is the union of the conversation-state surfaces the
// bot and the erasure flow need from one backing store.
type chatSessionStore interface {
	bot.SessionStore
	gdpr.ChatSessions
}

// botFeedback bridges the bot's intake shape onto the feedback service.
type botFeedback struct {
	*feedbackservice.Service
}

func (b botFeedback) Submit(ctx context.Context, in bot.SubmitInput) (*feedbackmodels.Feedback, error) {
	return b.Service.Submit(ctx, feedbackservice.SubmitInput{
		AuthorID: in.AuthorID,
		ChatID:   in.ChatID,
		Kind:     in.Kind,
		Severity: in.Severity,
		Text:     in.Text,
	})
}
