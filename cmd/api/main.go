package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hivedesk/engage-platform/cmd/mainconfig"
	"github.com/hivedesk/engage-platform/internal/api/router"
	"github.com/hivedesk/engage-platform/internal/app/bootstrap"
	"github.com/hivedesk/engage-platform/internal/calls"
	appconfig "github.com/hivedesk/engage-platform/internal/config"
	"github.com/hivedesk/engage-platform/internal/http/handlers"
	"github.com/hivedesk/engage-platform/internal/notify"
	"github.com/hivedesk/engage-platform/internal/observability/metrics"
	"github.com/hivedesk/engage-platform/internal/tenancy"
	"github.com/hivedesk/engage-platform/internal/voice"
	"github.com/hivedesk/engage-platform/pkg/logging"
)

func main() {
	// .env is a local development convenience; absent in production.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting engage-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}

	var (
		configRepo voice.ConfigRepository
		callRepo   calls.Repository
		tenants    tenancy.Resolver
	)
	if pool != nil {
		configRepo = voice.NewPostgresConfigRepository(pool)
		callRepo = calls.NewPostgresRepository(pool)
		tenants = tenancy.NewPostgresResolver(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores (development only)")
		configRepo = voice.NewInMemoryConfigRepository()
		callRepo = calls.NewInMemoryRepository()
		tenants = tenancy.NewStaticResolver(nil)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	metricsHandler, voiceMetrics := setupVoiceMetrics()

	configCache := bootstrap.BuildConfigCache(redisClient, cfg.VoiceConfigCacheTTL, logger)
	configService := voice.NewConfigService(configRepo, configCache, voiceMetrics, logger)

	engine := voice.NewEngine(configService, voiceMetrics, logger)
	recorder := voice.NewRecorder(callRepo, logger)
	executor := voice.NewExecutor(recorder, logger)

	var sesClient *sesv2.Client
	if cfg.SESFromEmail != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sesClient = sesv2.NewFromConfig(awsCfg)
	}
	emailSender := bootstrap.BuildEmailSender(sesClient, cfg, logger)
	smsSender := bootstrap.BuildSMSSender(cfg, logger)
	notifier := notify.NewService(configService, emailSender, smsSender, notify.NewLogInAppStore(logger), logger)

	voiceWebhooks := handlers.NewVoiceWebhookHandler(handlers.VoiceWebhookConfig{
		Tenants:         tenants,
		Calls:           callRepo,
		Configs:         configService,
		Engine:          engine,
		Executor:        executor,
		Notifier:        notifier,
		Metrics:         voiceMetrics,
		Logger:          logger,
		TwilioAuthToken: cfg.TwilioAuthToken,
		PublicBaseURL:   cfg.PublicBaseURL,
	})
	voiceSettings := handlers.NewVoiceSettingsHandler(configService, logger)

	routerCfg := &router.Config{
		Logger:          logger,
		VoiceWebhooks:   voiceWebhooks,
		VoiceSettings:   voiceSettings,
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  metricsHandler,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// connectPostgresPool returns nil when no database is configured; a configured
// but unreachable database is fatal.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to postgres")
	return pool
}

// setupVoiceMetrics builds the voice metrics on a dedicated registry and
// returns the /metrics handler for it.
func setupVoiceMetrics() (http.Handler, *metrics.VoiceMetrics) {
	reg := prometheus.NewRegistry()
	m := metrics.NewVoiceMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}
