// Package main is the entrypoint for the Smart Study Companion API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/studycompanion/studycompanion/internal/auth"
	"github.com/studycompanion/studycompanion/internal/cache"
	"github.com/studycompanion/studycompanion/internal/config"
	"github.com/studycompanion/studycompanion/internal/handler"
	"github.com/studycompanion/studycompanion/internal/metrics"
	"github.com/studycompanion/studycompanion/internal/provider"
	"github.com/studycompanion/studycompanion/internal/repository"
	"github.com/studycompanion/studycompanion/internal/server"
	"github.com/studycompanion/studycompanion/internal/service"
	"github.com/studycompanion/studycompanion/internal/tracing"
	"github.com/studycompanion/studycompanion/internal/usage"
)

const serviceName = "studycompanion-api"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:  serviceName,
		Environment:  cfg.AppEnv,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Insecure:     cfg.OTLPInsecure,
		SampleRatio:  cfg.TracingSampleRatio,
	}, logger)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cache.Options{
		PoolSize:  cfg.RedisPoolSize,
		KeyPrefix: cfg.RedisKeyPrefix,
	})
	if err != nil {
		repo.Close()
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	publisher := usage.NewPublisher(cacheClient.Client(), logger, recorder)
	client, err := newProviderClient(cfg, logger, recorder, publisher)
	if err != nil {
		logger.Error("failed to create provider client", "error", err)
		os.Exit(1)
	}

	sessions, err := auth.NewSessions(cfg.SecretKey, cfg.SessionTTL)
	if err != nil {
		logger.Error("failed to create session issuer", "error", err)
		os.Exit(1)
	}

	summarizer := service.NewSummarizer(client, repo, cacheClient, service.SummarizerConfig{
		MaxTextLength: cfg.MaxTextLength,
		Concurrency:   cfg.SummaryConcurrency,
		CacheTTL:      cfg.SummaryCacheTTL,
		CallTimeout:   cfg.WriteTimeout,
	}, logger, recorder)
	recommender := service.NewRecommender(client, repo, service.DefaultCatalog(), logger)
	chatbot := service.NewChatbot(client, repo, logger)
	progress := service.NewProgress(repo)
	accounts := service.NewAccounts(repo, sessions, cacheClient, logger, recorder)
	usageReport := service.NewUsage(repository.NewUsageRepository(repo))

	worker := usage.NewWorker(
		cacheClient.Client(),
		repository.NewUsageRepository(repo),
		usage.WorkerConfig{Consumer: cfg.UsageConsumer, BatchSize: cfg.UsageBatchSize},
		logger,
		recorder,
	)
	workerCtx, stopWorker := context.WithCancel(ctx)
	go func() {
		if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("usage worker stopped", "error", err)
		}
	}()

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		logger.Error("invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	r := newRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		base:     handler.New(),
		health:   handler.NewHealthHandler(repo, cacheClient, logger),
		metrics:  handler.NewMetricsHandler(recorder),
		study:    handler.NewStudyHandler(summarizer, recommender, chatbot, logger),
		accounts: handler.NewAccountHandler(accounts, !cfg.IsDevelopment(), logger),
		progress: handler.NewProgressHandler(progress, summarizer, recommender, usageReport, logger),
		web:      handler.NewDashboardHandler(logger),
		sessions: accounts,
		limiter:  cacheClient,
		proxies:  proxies,
	})

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered first, stopped last.
	srv.OnShutdown("tracing", server.ShutdownFunc(shutdownTracing))
	srv.OnShutdown("database", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})
	srv.OnShutdown("usage-worker", func(ctx context.Context) error {
		defer stopWorker()
		return worker.Shutdown(ctx)
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"provider", cfg.Provider,
		"model", cfg.OpenAIModel,
		"tracing", cfg.TracingExporter,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newProviderClient builds the configured chat-completion client wrapped with
// tracing, metrics and usage publishing.
func newProviderClient(cfg *config.Config, logger *slog.Logger, recorder metrics.Recorder, observer provider.CallObserver) (provider.Client, error) {
	var base provider.Client
	switch cfg.Provider {
	case config.ProviderMock:
		logger.Warn("using mock provider; responses are canned")
		base = provider.NewMock()
	default:
		openai, err := provider.NewOpenAI(provider.OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			Timeout:    cfg.OpenAITimeout,
			MaxRetries: cfg.OpenAIMaxRetries,
		}, logger)
		if err != nil {
			return nil, err
		}
		base = openai
	}
	return provider.NewInstrumented(base, cfg.OpenAIModel, recorder, observer), nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.EffectiveLogLevel()),
		AddSource: cfg.Debug,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", serviceName)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
