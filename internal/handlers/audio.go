package handlers

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/voice-annotation/internal/database"
	"github.com/codebuildervaibhav/voice-annotation/internal/storage"
)

// AudioHandler serves stored annotation audio by file name
type AudioHandler struct {
	repo       database.Repository
	store      storage.Storage
	presignTTL time.Duration
}

func NewAudioHandler(repo database.Repository, store storage.Storage, presignTTL time.Duration) *AudioHandler {
	return &AudioHandler{repo: repo, store: store, presignTTL: presignTTL}
}

// Serve redirects to a presigned URL in S3 mode and streams the file in
// local mode. Names carrying path separators or ".." are rejected.
func (h *AudioHandler) Serve(c *fiber.Ctx) error {
	filename, err := url.PathUnescape(c.Params("filename"))
	if err != nil || filename == "" ||
		strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return jsonError(c, fiber.StatusBadRequest, "Invalid filename", "ERR_INVALID_FILENAME")
	}

	ctx := c.UserContext()
	key, err := h.keyFor(ctx, filename)
	if err != nil {
		return err
	}
	if key == "" {
		return audioNotFound(c)
	}

	if h.store.Mode() == storage.ModeS3 {
		u, err := h.store.URL(ctx, key, h.presignTTL)
		if err != nil {
			return err
		}
		return c.Redirect(u, fiber.StatusFound)
	}

	data, err := h.store.Load(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return audioNotFound(c)
	}
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, storage.ContentType(filename))
	return c.Send(data)
}

func (h *AudioHandler) keyFor(ctx context.Context, filename string) (string, error) {
	a, err := h.repo.GetAnnotationByFilename(ctx, filename)
	if errors.Is(err, database.ErrAnnotationNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	p, err := h.repo.GetProject(ctx, a.ProjectID)
	if errors.Is(err, database.ErrProjectNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return path.Join(p.WorkspacePath, filename), nil
}

func audioNotFound(c *fiber.Ctx) error {
	return jsonError(c, fiber.StatusNotFound, "Audio file not found", "ERR_AUDIO_NOT_FOUND")
}
