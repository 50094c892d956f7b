// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/classfair/classfair/internal/api"
	"github.com/classfair/classfair/internal/audit"
	"github.com/classfair/classfair/internal/auth"
	"github.com/classfair/classfair/internal/catalog"
	"github.com/classfair/classfair/internal/checkout"
	"github.com/classfair/classfair/internal/config"
	"github.com/classfair/classfair/internal/enrollment"
	"github.com/classfair/classfair/internal/fulfillment"
	"github.com/classfair/classfair/internal/health"
	"github.com/classfair/classfair/internal/middleware"
	"github.com/classfair/classfair/internal/notify"
	"github.com/classfair/classfair/internal/payment"
	"github.com/classfair/classfair/internal/registration"
	"github.com/classfair/classfair/internal/tracing"
)

// repositories bundles every storage interface the server wires up,
// either Postgres-backed or in-memory.
type repositories struct {
	courses       catalog.CourseRepository
	events        catalog.EventRepository
	intents       payment.IntentRepository
	webhooks      payment.WebhookRepository
	enrollments   enrollment.Repository
	registrations registration.Repository
	counters      registration.CounterStore
	auditLog      audit.Repository
}

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Classfair API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "classfair-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Storage: Postgres when configured, in-memory otherwise.
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			cancel()
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		cancel()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
	}
	repos := buildRepositories(db, logger)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	// Metrics registry with process and Go runtime collectors.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mwMetrics := middleware.NewMetrics()
	if err := mwMetrics.Register(registry); err != nil {
		logger.Error("failed to register middleware metrics", "error", err)
		os.Exit(1)
	}
	engineMetrics := fulfillment.NewMetrics()
	if err := engineMetrics.Register(registry); err != nil {
		logger.Error("failed to register fulfillment metrics", "error", err)
		os.Exit(1)
	}

	// Notification pipeline: bounded queue, one consumer, rate limited.
	limiter := notify.NewSlidingWindowLimiter(notify.LimiterConfig{
		MaxPerWindow: cfg.NotifyRatePerMinute,
		Window:       config.NotifyWindow,
	})
	queue := notify.NewQueue(cfg.NotifyQueueSize, limiter, notify.NewLogSender(logger), logger)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		queue.Run(workerCtx)
	}()

	// Domain services.
	emitter := audit.NewEmitter(repos.auditLog, logger)
	registrar := registration.NewRegistrar(repos.registrations, repos.counters, logger)
	engine := fulfillment.NewEngine(
		repos.intents,
		repos.enrollments,
		registrar,
		emitter,
		queue,
		engineMetrics,
		logger,
	)
	verifier := payment.NewVerifier(cfg.StripeWebhookSecret)
	stripeClient := payment.NewStripeClient(cfg.StripeAPIKey)
	checkoutService := checkout.NewService(
		repos.courses,
		repos.events,
		repos.intents,
		repos.enrollments,
		repos.registrations,
		repos.counters,
		stripeClient,
		engine,
		cfg.CheckoutSuccessURL,
		cfg.CheckoutCancelURL,
		logger,
	)
	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)

	// Handlers.
	checkoutHandlers := api.NewCheckoutHandlers(checkoutService)
	webhookHandlers := api.NewWebhookHandlers(verifier, repos.webhooks, engine)
	auditHandlers := api.NewAuditHandlers(repos.auditLog)

	healthConfig := api.HealthHandlersConfig{}
	if db != nil {
		healthConfig.DBChecker = health.NewDBChecker(db)
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}
	healthHandlers := api.NewHealthHandlers(healthConfig)

	// Rate limit stores: Redis when available so limits hold across
	// replicas, in-memory otherwise.
	var limitStore middleware.RateLimitStore
	if redisClient != nil {
		limitStore = middleware.NewRedisRateLimitStore(redisClient).WithMetrics(mwMetrics)
	} else {
		limitStore = middleware.NewInMemoryRateLimitStore()
	}

	requireAuth := middleware.RequireAuth(jwtService)
	checkoutLimit := middleware.RateLimiter(limitStore, middleware.DefaultCheckoutLimit(), middleware.UserKeyFunc(), mwMetrics)
	webhookLimit := middleware.RateLimiter(limitStore, middleware.DefaultWebhookLimit(), middleware.IPKeyFunc(), mwMetrics)

	mux := http.NewServeMux()
	mux.Handle("POST /checkout", requireAuth(checkoutLimit(http.HandlerFunc(checkoutHandlers.HandleCheckout))))
	mux.Handle("POST /internal/stripe", webhookLimit(http.HandlerFunc(webhookHandlers.HandleStripeWebhook)))
	mux.Handle("GET /audit/users/{id}", requireAuth(http.HandlerFunc(auditHandlers.HandleQueryByUser)))
	mux.Handle("GET /audit/", requireAuth(http.HandlerFunc(auditHandlers.HandleQueryByResource)))
	mux.HandleFunc("GET /health", healthHandlers.Health)
	mux.HandleFunc("GET /ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Middleware chain: Tracing -> RequestID -> Logging -> HTTPMetrics -> routes.
	handler := middleware.Tracing("classfair-api")(
		middleware.RequestID(middleware.Logging(logger)(middleware.HTTPMetrics(mwMetrics)(mux))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop the notification worker after the server has drained so
	// in-flight webhook handlers can still enqueue.
	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		logger.Warn("notification worker did not stop in time")
	}

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer provider", "error", err)
	}

	logger.Info("server stopped")
}

func buildRepositories(db *sql.DB, logger *slog.Logger) *repositories {
	if db == nil {
		return &repositories{
			courses:       catalog.NewInMemoryCourseRepository(),
			events:        catalog.NewInMemoryEventRepository(),
			intents:       payment.NewInMemoryIntentRepository(),
			webhooks:      payment.NewInMemoryWebhookRepository(),
			enrollments:   enrollment.NewInMemoryRepository(),
			registrations: registration.NewInMemoryRepository(),
			counters:      registration.NewInMemoryCounterStore(),
			auditLog:      audit.NewInMemoryRepository(),
		}
	}
	return &repositories{
		courses:       catalog.NewPostgresCourseRepository(db),
		events:        catalog.NewPostgresEventRepository(db),
		intents:       payment.NewPostgresIntentRepository(db, logger),
		webhooks:      payment.NewPostgresWebhookRepository(db),
		enrollments:   enrollment.NewPostgresRepository(db),
		registrations: registration.NewPostgresRepository(db),
		counters:      registration.NewPostgresCounterStore(db),
		auditLog:      audit.NewPostgresRepository(db),
	}
}
