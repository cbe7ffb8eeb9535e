package handlers

import (
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codebuildervaibhav/voice-annotation/internal/database"
	"github.com/codebuildervaibhav/voice-annotation/internal/storage"
)

// LogSource exposes recent log lines
type LogSource interface {
	GetLogs() []string
}

// Routes bundles everything the HTTP surface needs
type Routes struct {
	Projects    *ProjectHandler
	Annotations *AnnotationHandler
	Audio       *AudioHandler
	TTS         *TTSHandler
	Realtime    *RealtimeHandler
	Repo        database.Repository
	Store       storage.Storage
	Logs        LogSource
	Gatherer    prometheus.Gatherer
	StaticDir   string
	Logger      *slog.Logger
}

// Register mounts all routes on app
func (r *Routes) Register(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Get("/api/info", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"database": r.Repo.Info(),
			"storage":  r.Store.Info(),
		})
	})

	api := app.Group("/api")
	api.Get("/projects", r.Projects.List)
	api.Post("/projects", r.Projects.Create)
	api.Get("/projects/:id/annotations", r.Annotations.List)
	api.Post("/projects/:id/annotations", r.Annotations.Create)
	api.Post("/annotations/:id/transcript", r.Annotations.UpdateTranscript)
	api.Delete("/annotations/:id", r.Annotations.Delete)

	app.Get("/audio/:filename", r.Audio.Serve)
	app.Post("/tts", r.TTS.Handle)

	if r.Logs != nil {
		app.Get("/logs", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"logs": r.Logs.GetLogs(),
			})
		})
	}

	if r.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{})))
	}

	if r.Realtime != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(r.Realtime.Handle))
	}

	if r.StaticDir != "" {
		if info, err := os.Stat(r.StaticDir); err == nil && info.IsDir() {
			app.Static("/", r.StaticDir)
		} else if r.Logger != nil {
			r.Logger.Warn("Static directory not found, web client disabled", "dir", r.StaticDir)
		}
	}
}
