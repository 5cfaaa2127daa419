package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"social_ingest/internal/api"
	"social_ingest/internal/budget"
	"social_ingest/internal/config"
	"social_ingest/internal/dedup"
	"social_ingest/internal/metrics"
	"social_ingest/internal/publisher"
	"social_ingest/internal/scheduler"
	"social_ingest/internal/service"
	"social_ingest/internal/source/apify"
	"social_ingest/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	logger.Info("connected to database")

	collector := metrics.New()

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,

			ConfirmTimeout: cfg.RabbitMQ.ConfirmTimeout,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	var guard service.RunGuard
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		runGuard := dedup.NewRunGuard(client, cfg.Redis.DedupTTL)
		defer runGuard.Close()
		guard = runGuard
	}

	profileStore := postgres.NewProfileStore(db)
	postStore := postgres.NewPostStore(db)
	runStore := postgres.NewRunStore(db)
	txManager := postgres.NewTransactionManager(db)

	provider := apify.New(apify.Config{
		BaseURL:        cfg.Apify.BaseURL,
		Token:          cfg.Apify.Token,
		LinkedInActor:  cfg.Apify.LinkedInActor,
		YouTubeActor:   cfg.Apify.YouTubeActor,
		WebhookSecret:  cfg.Auth.WebhookSecret,
		Timeout:        cfg.Apify.Timeout,
		MaxAttempts:    cfg.Apify.Retry.MaxAttempts,
		InitialBackoff: cfg.Apify.Retry.InitialBackoff,
		MaxBackoff:     cfg.Apify.Retry.MaxBackoff,
		PageSize:       cfg.Apify.PageSize,
		WaitSeconds:    cfg.Apify.WaitSeconds,
	}, logger)
	if !provider.Configured() {
		logger.Warn("apify token not set, scrape and webhook endpoints will fail")
	}

	webhookURL := ""
	if cfg.HTTP.PublicURL != "" {
		webhookURL = strings.TrimRight(cfg.HTTP.PublicURL, "/") + api.WebhookPath
	}

	pipeline := service.NewPipeline(postStore, pub, collector, logger, cfg.Ingest)
	handshake := service.NewHandshake(provider, profileStore, runStore, txManager, guard, pipeline, collector, logger)
	scraper := service.NewScraper(
		provider,
		profileStore,
		postStore,
		runStore,
		pipeline,
		budget.NewGate(cfg.Budget.MonthlyCap, cfg.Budget.UnitCost),
		collector,
		logger,
		service.ScraperConfig{
			Quotas:            scheduler.Quotas(cfg.Sync.Quotas),
			MaxProfilesPerRun: cfg.Apify.MaxProfilesPerRun,
			YouTubeMaxVideos:  cfg.Sync.YouTubeMaxVideos,
			WebhookURL:        webhookURL,
		},
	)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(handshake, scraper, db, cfg.HTTP.PublicURL, logger)
	router := api.NewRouter(api.RouterConfig{
		WebhookSecret:       cfg.Auth.WebhookSecret,
		StrictWebhookSecret: cfg.Auth.Strict(),
		CronSecret:          cfg.Auth.CronSecret,
		WebhookTimeout:      cfg.HTTP.WebhookTimeout,
		CronTimeout:         cfg.HTTP.CronTimeout,
		ScrapeTimeout:       cfg.HTTP.ScrapeTimeout,
	}, handler, collector, logger)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if cfg.Sync.Interval > 0 {
		sched := scheduler.NewScheduler(scraper, cfg.Sync.Interval, cfg.Sync.RunTimeout, logger)
		go func() {
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler error", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting social ingest service",
			"addr", cfg.HTTP.Addr,
			"sync_interval", cfg.Sync.Interval,
			"publish_events", pub != nil,
			"run_guard", guard != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	logger.Info("service stopped")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
