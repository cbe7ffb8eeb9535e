package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/codebuildervaibhav/voice-annotation/internal/cleanup"
	"github.com/codebuildervaibhav/voice-annotation/internal/config"
	"github.com/codebuildervaibhav/voice-annotation/internal/database"
	"github.com/codebuildervaibhav/voice-annotation/internal/handlers"
	"github.com/codebuildervaibhav/voice-annotation/internal/ingest"
	"github.com/codebuildervaibhav/voice-annotation/internal/llm"
	"github.com/codebuildervaibhav/voice-annotation/internal/metrics"
	"github.com/codebuildervaibhav/voice-annotation/internal/queue"
	"github.com/codebuildervaibhav/voice-annotation/internal/session"
	"github.com/codebuildervaibhav/voice-annotation/internal/storage"
	"github.com/codebuildervaibhav/voice-annotation/internal/transcription"
	"github.com/codebuildervaibhav/voice-annotation/internal/tts"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logBuffer := NewLogBuffer(1000)
	out := io.MultiWriter(os.Stdout, logBuffer)
	log := newLogger(cfg.Logging, out)
	slog.SetDefault(log)

	if err := run(cfg, log, logBuffer, out); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(cfg *config.Config, log *slog.Logger, logBuffer *LogBuffer, accessLog io.Writer) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cleanup.EnsureTempDirExists(cfg.Audio.TempDir); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.LocalPath, 0755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	log.Info("Initializing components...")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store := storage.New(ctx, cfg, log)

	repo, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	converter := transcription.NewConverter(cfg.Audio)
	transcriber := transcription.NewClient(cfg.Transcription, m)
	diarizer := transcription.NewDiarizer(ctx, transcriber, cfg.Diarization, log)

	answerer, err := llm.New(cfg.LLM, m)
	if err != nil {
		return fmt.Errorf("create answer generator: %w", err)
	}

	sessions := session.NewStore(cfg.Sessions.MaxSegments)

	// Google Drive export is optional
	var exports handlers.ExportQueue
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err := storage.NewDriveClient(ctx,
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Warn("Google Drive not available, annotations stay in primary storage", "error", err)
		} else {
			pool := queue.NewWorkerPool(cfg.Workers.Count, driveClient, log, m)
			pool.Start(ctx)
			defer pool.Stop()
			exports = pool
			log.Info("Google Drive export enabled", "folder", cfg.GoogleDrive.FolderName, "workers", cfg.Workers.Count)
		}
	} else {
		log.Info("Google Drive credentials not found, export disabled")
	}

	scheduler := cleanup.NewScheduler(
		cfg.Audio.TempDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		sessions,
		cfg.Sessions.IdleTTL(),
		log,
	)
	if cfg.Audio.PersistUploads {
		scheduler.KeepUploads()
	}
	scheduler.Start()
	defer scheduler.Stop()

	pipeline := &ingest.Pipeline{
		Converter:   converter,
		Transcriber: transcriber,
		Diarizer:    diarizer,
		Answerer:    answerer,
		Sessions:    sessions,
		TempDir:     cfg.Audio.TempDir,
		Persist:     cfg.Audio.PersistUploads,
		Logger:      log,
		Metrics:     m,
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Limits.MaxFileSizeMB * 1024 * 1024,
		ErrorHandler:          handlers.ErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: accessLog}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	routes := &handlers.Routes{
		Projects:    handlers.NewProjectHandler(repo, cfg.Storage.WorkspaceDir),
		Annotations: handlers.NewAnnotationHandler(repo, store, converter, exports, cfg.Limits.MaxFileSizeMB, log, m),
		Audio:       handlers.NewAudioHandler(repo, store, cfg.Storage.PresignDuration()),
		TTS:         handlers.NewTTSHandler(tts.NewClient(cfg.TTS)),
		Realtime:    handlers.NewRealtimeHandler(pipeline, log, m),
		Repo:        repo,
		Store:       store,
		Logs:        logBuffer,
		Gatherer:    reg,
		StaticDir:   cfg.Server.StaticDir,
		Logger:      log,
	}
	routes.Register(app)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("Shutting down gracefully...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("Shutdown failed", "error", err)
		}
	}()

	addr := cfg.Server.Addr()
	log.Info("Server starting",
		"addr", addr,
		"database", repo.Mode(),
		"storage", store.Mode(),
		"llm_provider", cfg.LLM.Provider)

	return app.Listen(addr)
}
