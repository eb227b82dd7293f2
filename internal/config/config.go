// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080). Falls back to :$PORT.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Port is the platform-provided port (Cloud Run style); used only when HTTP_ADDR is empty.
	Port string `mapstructure:"PORT"`
	// DatabaseURL is the Postgres DSN. When empty the server keeps documents and history in memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is an optional redis:// URL; when set, rate-limit and pending-challenge state live in Redis.
	RedisURL string `mapstructure:"REDIS_URL"`
	// StoreTimeout bounds a single document store call (e.g. "3s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`

	// WebhookURL is the print-relay endpoint that receives {"message": ...}.
	WebhookURL string `mapstructure:"WEBHOOK_URL"`
	// RelaySuccessStatus is the only HTTP status treated as a successful print.
	RelaySuccessStatus int `mapstructure:"RELAY_SUCCESS_STATUS"`
	// RelayTimeout is the relay call timeout (e.g. "10s").
	RelayTimeout string `mapstructure:"RELAY_TIMEOUT"`

	// AccessPassword is the shared secret for the web form and the SMS challenge.
	AccessPassword string `mapstructure:"ACCESS_PASSWORD"`
	// AdminPassword is the admin secret, either plaintext or a bcrypt hash ($2a$/$2b$/$2y$).
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
	// CharacterLimitRaw is the optional message length ceiling; non-digit values disable the ceiling.
	CharacterLimitRaw string `mapstructure:"CHARACTER_LIMIT"`
	// LogPageLimit is the number of history entries returned per page.
	LogPageLimit int `mapstructure:"LOG_PAGE_LIMIT"`

	// SlackMessageLimit is the number of messages a Slack user may send per period.
	SlackMessageLimit int `mapstructure:"SLACK_MESSAGE_LIMIT"`
	// SlackLimitPeriod is the sliding window length in minutes.
	SlackLimitPeriod int `mapstructure:"SLACK_LIMIT_PERIOD"`
	// SlackSigningSecret enables request signature verification when non-empty.
	SlackSigningSecret string `mapstructure:"SLACK_SIGNING_SECRET"`
	// SlackBotToken is used for chat.postMessage replies to event-style messages.
	SlackBotToken string `mapstructure:"SLACK_BOT_TOKEN"`

	// WhitelistCacheTTL is how long a whitelist decision is trusted (e.g. "5m").
	WhitelistCacheTTL string `mapstructure:"WHITELIST_CACHE_TTL"`
	// WhitelistCacheLimit is the maximum number of cached senders.
	WhitelistCacheLimit int `mapstructure:"WHITELIST_CACHE_LIMIT"`
	// WhitelistSingleflight collapses concurrent cold lookups for the same sender.
	WhitelistSingleflight bool `mapstructure:"WHITELIST_SINGLEFLIGHT"`

	// DispatchWorkers is the fixed number of relay workers.
	DispatchWorkers int `mapstructure:"DISPATCH_WORKERS"`
	// DispatchQueueSize is the job queue capacity; a full queue blocks submitters.
	DispatchQueueSize int `mapstructure:"DISPATCH_QUEUE_SIZE"`

	// SMSChallengeTTL expires pending SMS challenges (e.g. "10m"); "0" disables expiry.
	SMSChallengeTTL string `mapstructure:"SMS_CHALLENGE_TTL"`
	// SignalWire credentials. When any is missing, the SMS channel is not mounted.
	SignalWireProjectID  string `mapstructure:"SIGNALWIRE_PROJECT_ID"`
	SignalWireToken      string `mapstructure:"SIGNALWIRE_TOKEN"`
	SignalWireSpaceURL   string `mapstructure:"SIGNALWIRE_SPACE_URL"`
	SignalWireFromNumber string `mapstructure:"SIGNALWIRE_FROM_NUMBER"`

	// AdminJWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path; empty → ephemeral key per process.
	AdminJWTPrivateKey string `mapstructure:"ADMIN_JWT_PRIVATE_KEY"`
	// AdminJWTPublicKey is the PEM-encoded public key or path; used with ADMIN_JWT_PRIVATE_KEY.
	AdminJWTPublicKey string `mapstructure:"ADMIN_JWT_PUBLIC_KEY"`
	// AdminTokenTTLRaw is the admin session token lifetime (e.g. "30m").
	AdminTokenTTLRaw string `mapstructure:"ADMIN_TOKEN_TTL"`

	// PolicyFile optionally replaces the built-in Rego admission policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	// LokiURL mirrors history entries to Grafana Loki when set (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", "")
	v.SetDefault("PORT", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("STORE_TIMEOUT", "3s")
	v.SetDefault("WEBHOOK_URL", "https://hooks.nabucasa.com/default_placeholder")
	v.SetDefault("RELAY_SUCCESS_STATUS", 200)
	v.SetDefault("RELAY_TIMEOUT", "10s")
	v.SetDefault("ACCESS_PASSWORD", "password")
	v.SetDefault("ADMIN_PASSWORD", "adminpassword")
	v.SetDefault("CHARACTER_LIMIT", "")
	v.SetDefault("LOG_PAGE_LIMIT", 100)
	v.SetDefault("SLACK_MESSAGE_LIMIT", 5)
	v.SetDefault("SLACK_LIMIT_PERIOD", 1)
	v.SetDefault("SLACK_SIGNING_SECRET", "")
	v.SetDefault("SLACK_BOT_TOKEN", "")
	v.SetDefault("WHITELIST_CACHE_TTL", "5m")
	v.SetDefault("WHITELIST_CACHE_LIMIT", 1000)
	v.SetDefault("WHITELIST_SINGLEFLIGHT", false)
	v.SetDefault("DISPATCH_WORKERS", 10)
	v.SetDefault("DISPATCH_QUEUE_SIZE", 100)
	v.SetDefault("SMS_CHALLENGE_TTL", "0")
	v.SetDefault("SIGNALWIRE_PROJECT_ID", "")
	v.SetDefault("SIGNALWIRE_TOKEN", "")
	v.SetDefault("SIGNALWIRE_SPACE_URL", "")
	v.SetDefault("SIGNALWIRE_FROM_NUMBER", "")
	v.SetDefault("ADMIN_JWT_PRIVATE_KEY", "")
	v.SetDefault("ADMIN_JWT_PUBLIC_KEY", "")
	v.SetDefault("ADMIN_TOKEN_TTL", "30m")
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "print-relay")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		if p := strings.TrimSpace(cfg.Port); p != "" {
			cfg.HTTPAddr = ":" + p
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, errors.New("config: WEBHOOK_URL must be set")
	}
	if cfg.AccessPassword == "" {
		return nil, errors.New("config: ACCESS_PASSWORD must not be empty")
	}
	if cfg.RelaySuccessStatus < 100 || cfg.RelaySuccessStatus > 599 {
		return nil, errors.New("config: RELAY_SUCCESS_STATUS must be a valid HTTP status")
	}
	if cfg.SlackMessageLimit < 1 {
		return nil, errors.New("config: SLACK_MESSAGE_LIMIT must be at least 1")
	}
	if cfg.SlackLimitPeriod < 1 {
		return nil, errors.New("config: SLACK_LIMIT_PERIOD must be at least 1 minute")
	}
	if cfg.WhitelistCacheLimit < 1 {
		return nil, errors.New("config: WHITELIST_CACHE_LIMIT must be at least 1")
	}
	if cfg.DispatchWorkers < 1 {
		return nil, errors.New("config: DISPATCH_WORKERS must be at least 1")
	}
	if cfg.DispatchQueueSize < 0 {
		return nil, errors.New("config: DISPATCH_QUEUE_SIZE must not be negative")
	}
	if cfg.LogPageLimit <= 0 {
		cfg.LogPageLimit = 100
	}

	return &cfg, nil
}

// CharacterLimit returns the message length ceiling, or 0 when no ceiling is configured.
// Only plain digit strings are honoured, matching the historical env contract.
func (c *Config) CharacterLimit() int {
	s := strings.TrimSpace(c.CharacterLimitRaw)
	if s == "" {
		return 0
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// SlackWindow returns the Slack rate-limit window as a duration.
func (c *Config) SlackWindow() time.Duration {
	return time.Duration(c.SlackLimitPeriod) * time.Minute
}

// WhitelistTTL parses WhitelistCacheTTL. Returns 5m if unset or invalid.
func (c *Config) WhitelistTTL() time.Duration {
	return parseDuration(c.WhitelistCacheTTL, 5*time.Minute)
}

// RelayTimeoutDuration parses RelayTimeout. Returns 10s if unset or invalid.
func (c *Config) RelayTimeoutDuration() time.Duration {
	return parseDuration(c.RelayTimeout, 10*time.Second)
}

// StoreTimeoutDuration parses StoreTimeout. Returns 3s if unset or invalid.
func (c *Config) StoreTimeoutDuration() time.Duration {
	return parseDuration(c.StoreTimeout, 3*time.Second)
}

// AdminTokenTTL parses AdminTokenTTLRaw. Returns 30m if unset or invalid.
func (c *Config) AdminTokenTTL() time.Duration {
	return parseDuration(c.AdminTokenTTLRaw, 30*time.Minute)
}

// ChallengeTTL parses SMSChallengeTTL. Returns 0 (no expiry) if unset, zero, or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	return parseDuration(c.SMSChallengeTTL, 0)
}

// SignalWireConfigured reports whether every SignalWire credential is present.
func (c *Config) SignalWireConfigured() bool {
	return c.SignalWireProjectID != "" && c.SignalWireToken != "" &&
		c.SignalWireSpaceURL != "" && c.SignalWireFromNumber != ""
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
