package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/client"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/media"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/observability"
	"github.com/stemsi/exstem-attempt/internal/recognition"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/router"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/submission"
	"github.com/stemsi/exstem-attempt/internal/validator"
	"github.com/stemsi/exstem-attempt/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("definition_source", cfg.DefinitionSource).
		Msg("Starting ExStem Attempt")

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	observability.RegisterMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to PostgreSQL (only when something uses it) ───────────
	var pool *pgxpool.Pool
	if cfg.NeedsPostgres() {
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
	}

	// ─── Test Definitions ──────────────────────────────────────────────
	var definitions repository.DefinitionSource
	switch cfg.DefinitionSource {
	case config.DefinitionSourcePostgres:
		definitions = repository.NewDefinitionRepository(pool)
	case config.DefinitionSourceHTTP:
		definitions = client.NewDefinitionClient(cfg.TestServiceURL, cfg.UpstreamTimeout)
	default:
		log.Fatal().Str("definition_source", cfg.DefinitionSource).Msg("Unknown definition source")
	}
	if cfg.DefinitionCacheTTL > 0 {
		definitions = repository.NewCachedDefinitions(definitions, rdb, cfg.DefinitionCacheTTL, log)
	}

	// ─── Recognition & Media Intake ────────────────────────────────────
	var recognizer recognition.Recognizer = recognition.Disabled{}
	if cfg.OpenAIAPIKey != "" {
		r, err := recognition.NewOpenAIRecognizer(recognition.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OCRModel,
			Timeout: cfg.RecognitionTimeout,
			Logger:  log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create recognizer")
		}
		recognizer = r
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set; handwriting recognition disabled")
	}
	acquirer := media.NewAcquirer(recognizer, media.ImageOptions{
		MaxBytes:     cfg.MaxUploadBytes,
		MaxPixels:    cfg.MaxImagePixels,
		MaxDimension: cfg.MaxImageDimension,
	}, log)

	// ─── Submission ────────────────────────────────────────────────────
	submitter := submission.NewSubmitter(
		client.NewSubmissionClient(cfg.SubmissionServiceURL, cfg.UpstreamTimeout), log,
	)

	// ─── Attempts ──────────────────────────────────────────────────────
	registry := session.NewRegistry(log)
	deps := service.AttemptDeps{
		Definitions: definitions,
		Submitter:   submitter,
		Intaker:     acquirer,
		Registry:    registry,
	}
	if cfg.DraftsEnabled {
		deps.Drafts = repository.NewDraftRepository(rdb, cfg.DraftGrace)
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	if cfg.JournalEnabled {
		deps.Journal = repository.NewDeliveryQueue(rdb)
		deliveryWorker := worker.NewDeliveryWorker(repository.NewDeliveryRepository(pool), rdb, log)
		go func() {
			defer close(workersDone)
			deliveryWorker.Start(workerCtx)
		}()
	} else {
		close(workersDone)
	}

	uploadLimiter := middleware.NewRateLimiter(cfg.UploadsPerMinute, time.Minute)
	go uploadLimiter.RunCleanup(workerCtx)

	// ─── Initialize Services & Handlers ───────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	attemptService := service.NewAttemptService(deps, cfg.TickInterval, log)

	var pg handler.Pinger
	if pool != nil {
		pg = pool
	}
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(attemptService, cfg.MaxUploadBytes, log),
		WS:      handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
		Health:  handler.NewHealthHandler(rdb, pg, attemptService, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, uploadLimiter, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// 1. Stop accepting new HTTP requests. Hijacked WebSocket connections
	// are not tracked by the server and end with their sessions below.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close live attempts; their drafts are flushed for resume.
	attemptService.Shutdown()

	// 3. Stop background workers and wait for the journal queue to drain.
	workerCancel()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Workers did not drain before the shutdown deadline")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
