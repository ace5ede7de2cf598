// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production
// deployments override through the environment (a .env file is honored by
// the binaries before this package reads anything).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	// AdminSecretHash is the bcrypt hash of the operator bootstrap
	// secret presented at POST /auth/token. Empty disables issuance
	// (tokens must then be minted out of band).
	AdminSecretHash string
	// AdminTokenTTL bounds the life of issued operator tokens.
	AdminTokenTTL time.Duration

	Telegram  Telegram
	Postgres  Postgres
	Redis     RedisConfig
	Kafka     Kafka
	LLM       LLM
	RateLimit RateLimit
}

// Telegram holds Bot API credentials and webhook settings.
type Telegram struct {
	// Token is the bot token from BotFather. Empty disables the bot surface
	// (admin API still runs, useful for local API work).
	Token string
	// WebhookSecret is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token.
	WebhookSecret string
	// WebhookURL is the public URL registered with setWebhook.
	WebhookURL string
	// BaseURL overrides the Bot API endpoint in tests.
	BaseURL string
}

// Postgres holds the database connection string. Empty means in-memory
// stores, which is the default for local development.
type Postgres struct {
	DSN string
}

// RedisConfig holds Redis connection tuning. An empty URL disables Redis
// and the dependent features fall back to in-memory implementations.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds event stream settings. No brokers means events are dropped
// through the no-op publisher.
type Kafka struct {
	Brokers []string
	Topic   string
}

// LLM selects the document generation backend.
type LLM struct {
	// Provider is "anthropic", "openai", or "" for the deterministic
	// template generator.
	Provider     string
	AnthropicKey string
	OpenAIKey    string
	Model        string
}

// RateLimit tunes the sliding-window limiter applied to feedback submission.
type RateLimit struct {
	SubmitPerMinute int
	ChatPerMinute   int
}

// DiscoverySessionTTL bounds how long an idle discovery session stays resumable.
var DiscoverySessionTTL = 30 * time.Minute

// DuplicateIndexTTL bounds how long duplicate fingerprints stay searchable.
var DuplicateIndexTTL = 30 * 24 * time.Hour

// ConsentTTL is how long a granted consent stays valid before the user must
// reconfirm it.
var ConsentTTL = 365 * 24 * time.Hour

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("RALPH_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("RALPH_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:            addr,
		JWTSigningKey:   jwtSigningKey,
		AdminSecretHash: os.Getenv("RALPH_ADMIN_SECRET_HASH"),
		AdminTokenTTL:   envDuration("RALPH_ADMIN_TOKEN_TTL", 12*time.Hour),
		Telegram: Telegram{
			Token:         os.Getenv("TELEGRAM_BOT_TOKEN"),
			WebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
			WebhookURL:    os.Getenv("TELEGRAM_WEBHOOK_URL"),
			BaseURL:       os.Getenv("TELEGRAM_API_BASE_URL"),
		},
		Postgres: Postgres{
			DSN: os.Getenv("RALPH_POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("RALPH_REDIS_URL"),
			PoolSize:     envInt("RALPH_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("RALPH_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("RALPH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("RALPH_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("RALPH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: envList("RALPH_KAFKA_BROKERS"),
			Topic:   envDefault("RALPH_KAFKA_TOPIC", "ralph.feedback.events"),
		},
		LLM: LLM{
			Provider:     os.Getenv("RALPH_LLM_PROVIDER"),
			AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
			OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:        os.Getenv("RALPH_LLM_MODEL"),
		},
		RateLimit: RateLimit{
			SubmitPerMinute: envInt("RALPH_SUBMIT_RATE_LIMIT", 5),
			ChatPerMinute:   envInt("RALPH_CHAT_RATE_LIMIT", 20),
		},
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
