// Package main provides the Inkwell API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/inkwell-ai/inkwell/internal/config"
	"github.com/inkwell-ai/inkwell/internal/enhance"
	"github.com/inkwell-ai/inkwell/internal/events"
	"github.com/inkwell-ai/inkwell/internal/export"
	"github.com/inkwell-ai/inkwell/internal/flashcards"
	"github.com/inkwell-ai/inkwell/internal/jobtrack"
	"github.com/inkwell-ai/inkwell/internal/llm"
	"github.com/inkwell-ai/inkwell/internal/normalize"
	"github.com/inkwell-ai/inkwell/internal/objstore"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/pipeline"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "inkwell",
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("events", cfg.Events.Driver).
		Bool("backend", cfg.Backend.APIKey != "").
		Msg("Starting Inkwell API")

	ctx := context.Background()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Database migration failed")
	}

	jobRepo := storage.NewJobRepository(db)
	cardRepo := storage.NewFlashcardRepository(db)
	artifactRepo := storage.NewArtifactRepository(db)

	var bus events.Bus
	if cfg.Events.Driver == "redis" {
		redisBus, err := events.NewRedisBus(events.RedisConfig{
			Addr:     cfg.Events.Redis.Addr,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
			PoolSize: cfg.Events.Redis.PoolSize,
			Channel:  cfg.Events.Channel,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Redis connection failed")
		}
		bus = redisBus
	} else {
		bus = events.NewMemoryBus()
	}
	defer bus.Close()

	objects, err := objstore.NewFSStore(cfg.Storage.Root)
	if err != nil {
		logger.Fatal().Err(err).Msg("Object storage init failed")
	}

	backend := llm.NewClient(cfg.Backend, logger)
	if !backend.Available() {
		logger.Warn().Msg("No backend API key configured; enhancement will use the local fallback")
	}

	tracker := jobtrack.NewTracker(jobRepo, bus, logger)
	normalizer := normalize.New(backend, objects, jobRepo, logger)
	enhancer := enhance.NewEngine(backend, cfg.Pipeline.ChunkCharLimit, cfg.Pipeline.ChunkConcurrency, logger)
	synthesizer := flashcards.New(backend, logger)
	latexGen := export.NewLatexGenerator(backend, logger)
	compiler := export.NewLatexCompiler(cfg.Export.CompilerBinary, cfg.Export.CompileWorkers, cfg.Export.CompileTimeout)
	exporter := export.NewManager(artifactRepo, objects, latexGen, compiler, logger)

	orchestrator := pipeline.NewOrchestrator(
		jobRepo, cardRepo, tracker, normalizer, enhancer, synthesizer, exporter, logger)

	router := NewRouter(logger, cfg, orchestrator, cardRepo, objects)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}
