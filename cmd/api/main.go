package main

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/opaline-simulator/internal/common"
	"github.com/noah-isme/opaline-simulator/internal/config"
	"github.com/noah-isme/opaline-simulator/internal/events"
	"github.com/noah-isme/opaline-simulator/internal/health"
	"github.com/noah-isme/opaline-simulator/internal/ledger"
	"github.com/noah-isme/opaline-simulator/internal/lock"
	"github.com/noah-isme/opaline-simulator/internal/notify"
	"github.com/noah-isme/opaline-simulator/internal/obs"
	"github.com/noah-isme/opaline-simulator/internal/ratelimit"
	"github.com/noah-isme/opaline-simulator/internal/resilience"
	"github.com/noah-isme/opaline-simulator/internal/security"
	"github.com/noah-isme/opaline-simulator/internal/workflow"
)

func main() {
	bootLogger := obs.NewLogger("json", "info")
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("load configuration")
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	namespace := cfg.Obs.MetricsNamespace
	obs.MustRegisterDomainMetrics(namespace, nil)
	resilience.MustRegisterMetrics(namespace, nil)
	httpMetrics := obs.NewHTTPMetrics(namespace, obs.ParseBucketsCSV(cfg.Obs.HTTPBucketsMS), nil)

	tracingEnabled := cfg.Obs.EnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "opaline-simulator",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplerRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	store, closeStore, err := ledger.OpenStore(ctx, cfg.Ledger.BackendConfig())
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Ledger.Backend).Msg("open ledger store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error().Err(err).Msg("close ledger store")
		}
	}()
	adapter := &ledger.Adapter{
		Store:    store,
		Policy:   cfg.Ledger.DuplicatePolicy,
		Timeout:  cfg.Ledger.Timeout,
		Location: cfg.Ledger.Location,
		Backend:  cfg.Ledger.Backend,
	}
	inserted, err := adapter.EnsureHeaderRow(ctx, ledger.Columns)
	if err != nil {
		logger.Fatal().Err(err).Msg("ensure ledger header")
	}
	if inserted {
		logger.Info().Str("backend", cfg.Ledger.Backend).Msg("ledger header inserted")
	}

	redisClient := mustInitRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	sender := mustInitSender(cfg, logger)

	bus := &events.Bus{Publishers: []events.Publisher{events.LogPublisher{Logger: logger}}}
	if cfg.KafkaBrokers != "" {
		kafkaPub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafkaPub.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka writer")
			}
		}()
		bus.Publishers = append(bus.Publishers, kafkaPub)
	}

	serviceCfg := workflow.ServiceConfig{
		Recorder:               adapter,
		Notifier:               sender,
		Events:                 bus,
		Pricing:                cfg.Pricing,
		NotifyOnPersistFailure: cfg.Notify.OnPersistFailure,
		Logger:                 logger,
	}
	if redisClient != nil {
		serviceCfg.Locker = lock.Locker{R: redisClient, Wait: cfg.LockWait}
	}
	service, err := workflow.NewService(serviceCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise workflow service")
	}
	handler := workflow.NewHandler(workflow.HandlerConfig{Service: service})

	var limiter ratelimit.Limiter = ratelimit.NewMemory()
	if redisClient != nil {
		limiter = ratelimit.SlidingWindow{Client: redisClient, Prefix: "rl:submit:"}
	}
	submitLimit := ratelimit.Handler{
		Limiter: limiter,
		Config:  ratelimit.Config{Key: ratelimit.ByClientIP, Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	idem := common.Idem{TTL: cfg.IdempotencyTTL}
	if redisClient != nil {
		idem.R = redisClient
	}

	probes := []health.Probe{{Name: "ledger", Check: adapter.Ping}}
	if redisClient != nil {
		probes = append(probes, health.Probe{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	healthHandler := health.NewHandler(2*time.Second, probes...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	handler.Routes(r, submitLimit.Middleware, idem.Middleware)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("ledger", cfg.Ledger.Backend).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
		healthHandler.SetDraining(true)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Info().Msg("redis not configured; using in-process rate limiting without idempotency or contact locks")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func mustInitSender(cfg *config.Config, logger zerolog.Logger) *notify.Sender {
	var transport notify.Transport
	switch cfg.Notify.Transport {
	case "outbox":
		transport = &notify.Outbox{}
		logger.Warn().Msg("notify transport is outbox; emails are kept in memory")
	default:
		smtp, err := notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPUsername,
			Password: cfg.Notify.SMTPPassword,
			Timeout:  cfg.Notify.Timeout,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise smtp transport")
		}
		transport = smtp
	}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		MinRequests:  cfg.Notify.BreakerMinRequests,
		FailureRatio: cfg.Notify.BreakerRatio,
		OpenFor:      cfg.Notify.BreakerOpenFor,
		Target:       "notify-" + cfg.Notify.Transport,
		Logger:       &logger,
	})

	var tpl *template.Template
	if cfg.Notify.TemplatePath != "" {
		loaded, err := notify.LoadTemplate(cfg.Notify.TemplatePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Notify.TemplatePath).Msg("load email template")
		}
		tpl = loaded
	}

	return &notify.Sender{
		Transport: notify.GuardedTransport{Next: transport, Breaker: breaker},
		Template:  tpl,
		From:      cfg.Notify.From,
		Subject:   cfg.Notify.Subject,
		Timeout:   cfg.Notify.Timeout,
		Name:      cfg.Notify.Transport,
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
