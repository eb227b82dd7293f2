package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	adminhandler "print-relay/internal/admin/handler"
	"print-relay/internal/audit"
	audithandler "print-relay/internal/audit/handler"
	auditrepo "print-relay/internal/audit/repository"
	"print-relay/internal/challenge"
	"print-relay/internal/config"
	"print-relay/internal/db"
	"print-relay/internal/dispatch"
	"print-relay/internal/docstore"
	healthhandler "print-relay/internal/health/handler"
	"print-relay/internal/policy/engine"
	"print-relay/internal/ratelimit"
	"print-relay/internal/relay"
	"print-relay/internal/security"
	"print-relay/internal/server"
	"print-relay/internal/slack"
	slackhandler "print-relay/internal/slack/handler"
	"print-relay/internal/sms"
	smshandler "print-relay/internal/sms/handler"
	"print-relay/internal/telemetry"
	"print-relay/internal/telemetry/loki"
	telemetryotel "print-relay/internal/telemetry/otel"
	webhandler "print-relay/internal/web/handler"
	"print-relay/internal/whitelist"
)

const (
	tokenIssuer   = "print-relay"
	tokenAudience = "print-relay-admin"
	shutdownGrace = 20 * time.Second
)

// stores holds the backends chosen from configuration.
type stores struct {
	db *sql.DB
	// docs backs the whitelist (needs an indexed lookup).
	docs docstore.Store
	// state backs pending challenges and rate-limit records; Redis when configured.
	state   docstore.KV
	history auditrepo.Repository
	redis   *redis.Client
}

func (s *stores) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}
	if cfg.DatabaseURL != "" {
		database, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.db = database
		s.docs = docstore.NewPostgresStore(database)
		s.history = auditrepo.NewPostgresRepository(database)
	} else {
		log.Println("server: DATABASE_URL not set; using in-memory stores")
		s.docs = docstore.NewMemoryStore()
		s.history = auditrepo.NewMemoryRepository()
	}
	s.docs = docstore.WithTimeout(s.docs, cfg.StoreTimeoutDuration())
	s.state = s.docs

	if cfg.RedisURL != "" {
		client, err := docstore.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = client
		s.state = docstore.KVWithTimeout(docstore.NewRedisStore(client), cfg.StoreTimeoutDuration())
	}
	return s, nil
}

func newTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.AdminJWTPrivateKey == "" {
		log.Println("server: ADMIN_JWT_PRIVATE_KEY not set; admin tokens are signed with an ephemeral key")
		return security.NewEphemeralTokenProvider(tokenIssuer, tokenAudience, cfg.AdminTokenTTL())
	}
	priv, pub, err := security.LoadKeyPair(cfg.AdminJWTPrivateKey, cfg.AdminJWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, pub, tokenIssuer, tokenAudience, cfg.AdminTokenTTL()), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	var lokiEmitter audit.EntryEmitter
	lokiAsync := telemetry.NewAsyncEmitter(nilSink(loki.NewClient(cfg.LokiURL)))
	if lokiAsync != nil {
		lokiEmitter = lokiAsync
	}
	var otelEmitter audit.EntryEmitter
	if cfg.OTLPEndpoint != "" {
		otelEmitter = telemetryotel.NewEntryEmitter(providers.LoggerProvider)
	}
	auditLogger := audit.NewLogger(st.history, telemetry.Fanout(otelEmitter, lokiEmitter))

	admission, err := engine.NewOPAEvaluator(ctx, cfg.CharacterLimit(), cfg.PolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	pool := dispatch.NewPool(cfg.DispatchWorkers, cfg.DispatchQueueSize)
	relayClient := relay.NewClient(cfg.WebhookURL, cfg.RelaySuccessStatus, cfg.RelayTimeoutDuration())
	dispatcher, err := dispatch.NewDispatcher(pool, relayClient, auditLogger)
	if err != nil {
		log.Fatalf("dispatch: %v", err)
	}

	accessSecret := security.NewSecret(cfg.AccessPassword)
	adminSecret := security.NewSecret(cfg.AdminPassword)

	var cacheOpts []whitelist.Option
	if cfg.WhitelistSingleflight {
		cacheOpts = append(cacheOpts, whitelist.WithSingleflight(cfg.StoreTimeoutDuration()))
	}
	allowed := whitelist.NewCache(whitelist.NewStoreLookup(st.docs), cfg.WhitelistTTL(), cfg.WhitelistCacheLimit, cacheOpts...)

	challenges, err := challenge.NewMachine(st.state, accessSecret.Matches, cfg.ChallengeTTL())
	if err != nil {
		log.Fatalf("challenge: %v", err)
	}
	sender := sms.NewSender(cfg.SignalWireProjectID, cfg.SignalWireToken, cfg.SignalWireSpaceURL, cfg.SignalWireFromNumber)

	limiter, err := ratelimit.NewLimiter(st.state, cfg.SlackMessageLimit, cfg.SlackWindow())
	if err != nil {
		log.Fatalf("ratelimit: %v", err)
	}
	verifier := slack.NewVerifier(cfg.SlackSigningSecret)
	if verifier == nil {
		log.Println("server: SLACK_SIGNING_SECRET not set; Slack signatures are not verified")
	}

	tokens, err := newTokenProvider(cfg)
	if err != nil {
		log.Fatalf("admin tokens: %v", err)
	}

	var pinger healthhandler.Pinger
	if st.db != nil {
		pinger = st.db
	}

	router := server.NewRouter(server.Deps{
		Web:     webhandler.NewHandler(accessSecret, admission, dispatcher, auditLogger, cfg.CharacterLimit()),
		SMS:     smsRoute(cfg, smshandler.NewHandler(allowed, challenges, admission, dispatcher, sender, auditLogger)),
		Slack:   slackhandler.NewHandler(verifier, limiter, admission, dispatcher, slack.NewClient(cfg.SlackBotToken), auditLogger),
		Admin:   adminhandler.NewHandler(adminSecret, tokens),
		History: audithandler.NewHandler(st.history, cfg.LogPageLimit),
		Tokens:  tokens,
		Health:  healthhandler.NewHandler(pinger, admission),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: http shutdown: %v", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: dispatch drain: %v", err)
	}
	drainCtx, drainCancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	defer drainCancel()
	if err := lokiAsync.Wait(drainCtx); err != nil {
		log.Printf("server: loki drain: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: telemetry shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

// smsRoute returns h only when the SMS gateway is configured; without it the
// channel is not mounted at all.
func smsRoute(cfg *config.Config, h http.Handler) http.Handler {
	if !cfg.SignalWireConfigured() {
		log.Println("server: SignalWire credentials not set; SMS channel disabled")
		return nil
	}
	return h
}

// nilSink keeps a nil *loki.Client from becoming a non-nil Sink.
func nilSink(c *loki.Client) telemetry.Sink {
	if c == nil {
		return nil
	}
	return c
}
