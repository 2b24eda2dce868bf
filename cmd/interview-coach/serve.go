package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/sjawhar/interview-coach/internal/audio"
	"github.com/sjawhar/interview-coach/internal/coach"
	"github.com/sjawhar/interview-coach/internal/config"
	"github.com/sjawhar/interview-coach/internal/gdrive"
	"github.com/sjawhar/interview-coach/internal/interview"
	"github.com/sjawhar/interview-coach/internal/llm"
	"github.com/sjawhar/interview-coach/internal/observe"
	"github.com/sjawhar/interview-coach/internal/resilience"
	"github.com/sjawhar/interview-coach/internal/server"
	"github.com/sjawhar/interview-coach/internal/storage"
	"github.com/sjawhar/interview-coach/internal/transcribe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interview websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, warnings, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logger := newLogger(cfg.Log)
		slog.SetDefault(logger)
		for _, w := range warnings {
			logger.Warn("config warning", "warning", w)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	metrics := observe.Discard()
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() { _ = shutdownMetrics(context.Background()) }()

		metrics, err = observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
		metricsHandler = promhttp.Handler()
	}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:        "llm",
		MaxFailures: cfg.Breaker.MaxFailures,
		Cooldown:    cfg.BreakerReset(),
	}, logger)
	c := coach.New(newLLMClient(&cfg, logger), coach.Options{
		Timeout: cfg.LLMTimeout(),
		Breaker: breaker,
		Metrics: metrics,
		Logger:  logger,
	})

	deps := interview.Deps{
		Evaluator: c,
		Questions: c,
		Feedback:  c,
		Metrics:   metrics,
		Logger:    logger,
	}
	if cfg.DeepgramAPIKey != "" {
		deps.Dialer = transcribe.NewDeepgramDialer(transcribe.DeepgramConfig{
			APIKey:         cfg.DeepgramAPIKey,
			Model:          cfg.Deepgram.Model,
			Language:       cfg.Deepgram.Language,
			EndpointingMs:  cfg.Deepgram.EndpointingMs,
			UtteranceEndMs: cfg.Deepgram.UtteranceEndMs,
			Keywords:       cfg.Deepgram.Keywords,
		}, logger)
	}
	if dir := cfg.Archive.AudioDir; dir != "" {
		recorder := audio.NewRecorder(dir)
		recorder.SetSampleRate(transcribe.SampleRate)
		deps.Recorder = recorder
	}

	var (
		archive server.ArchiveStore
		checks  []server.Checker
	)
	if cfg.Archive.DBPath != "" || cfg.Archive.ReportDir != "" {
		var store *storage.SQLiteStore
		if cfg.Archive.DBPath != "" {
			var err error
			store, err = storage.NewSQLiteStore(cfg.Archive.DBPath)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer func() { _ = store.Close() }()
			archive = store
			checks = append(checks, server.Checker{Name: "archive", Check: store.Ping})
		}

		var reports *storage.ReportWriter
		if cfg.Archive.ReportDir != "" {
			reports = storage.NewReportWriter(cfg.Archive.ReportDir)
		}

		var uploader storage.Uploader
		if cfg.Archive.GDriveFolderID != "" && reports != nil {
			u, err := gdrive.NewUploader(ctx, cfg.Archive.GoogleCredentialsFile, cfg.Archive.GDriveFolderID)
			if err != nil {
				logger.Warn("google drive upload disabled", "error", err)
			} else {
				uploader = u
			}
		}
		deps.Archiver = storage.NewArchive(store, reports, uploader, logger)
	}

	registry := interview.NewRegistry(interview.Config{
		Tick:           cfg.Tick(),
		DefaultMinutes: cfg.Session.DefaultMinutes,
		RestartGrace:   cfg.RestartGrace(),
		StopGrace:      cfg.StopGrace(),
		Silence: transcribe.SilenceConfig{
			Interval:  cfg.SilenceInterval(),
			Threshold: cfg.SilenceThreshold(),
			Warmup:    cfg.SilenceWarmup(),
		},
	}, deps)

	srv := server.New(server.Options{
		Registry:       registry,
		Extractor:      c,
		Archive:        archive,
		Checks:         checks,
		MetricsHandler: metricsHandler,
		Metrics:        metrics,
		Logger:         logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("interview-coach listening", "addr", cfg.ListenAddr, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "sessions", registry.Len(), "connections", srv.Connections())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		if err := registry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("sessions did not finish before shutdown deadline", "error", err)
		}
		srv.CloseConnections()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newLLMClient returns nil when no usable provider is configured. The coach
// then answers every call with its fallback.
func newLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	provider, model, err := llm.ParseModel(cfg.LLM.Model)
	if err != nil {
		logger.Warn("llm disabled", "error", err)
		return nil
	}
	key := cfg.LLMAPIKey()
	if key == "" {
		logger.Warn("llm disabled: no api key", "provider", provider)
		return nil
	}

	var opts []llm.Option
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.LLM.BaseURL))
	}
	client, err := llm.NewClient(provider, key, model, opts...)
	if err != nil {
		logger.Warn("llm disabled", "provider", provider, "error", err)
		return nil
	}
	logger.Info("llm configured", "provider", provider, "model", model)
	return client
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
