package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/voice-annotation/internal/database"
	"github.com/codebuildervaibhav/voice-annotation/internal/metrics"
	"github.com/codebuildervaibhav/voice-annotation/internal/queue"
	"github.com/codebuildervaibhav/voice-annotation/internal/storage"
	"github.com/codebuildervaibhav/voice-annotation/internal/transcription"
	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

// AudioConverter turns uploaded audio into canonical WAV bytes
type AudioConverter interface {
	ConvertBytes(ctx context.Context, data []byte, ext string, denoise bool) ([]byte, error)
}

// ExportQueue receives saved annotations for background export
type ExportQueue interface {
	Enqueue(job *queue.Job) bool
}

// AnnotationHandler serves annotation CRUD
type AnnotationHandler struct {
	repo      database.Repository
	store     storage.Storage
	converter AudioConverter
	exports   ExportQueue
	maxSizeMB int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewAnnotationHandler(
	repo database.Repository,
	store storage.Storage,
	converter AudioConverter,
	exports ExportQueue,
	maxSizeMB int,
	logger *slog.Logger,
	m *metrics.Metrics,
) *AnnotationHandler {
	return &AnnotationHandler{
		repo:      repo,
		store:     store,
		converter: converter,
		exports:   exports,
		maxSizeMB: maxSizeMB,
		logger:    logger,
		metrics:   m,
	}
}

// CreateAnnotationRequest is the JSON form of a new annotation. Audio is
// base64 encoded.
type CreateAnnotationRequest struct {
	Audio         string  `json:"audio"`
	Transcript    *string `json:"transcript"`
	RecordingMode string  `json:"recording_mode"`
	Language      string  `json:"language"`
	Duration      float64 `json:"duration"`
}

// UpdateTranscriptRequest represents the request body
type UpdateTranscriptRequest struct {
	Transcript *string `json:"transcript"`
}

func (h *AnnotationHandler) List(c *fiber.Ctx) error {
	projectID := c.Params("id")
	if _, err := h.repo.GetProject(c.UserContext(), projectID); err != nil {
		return projectError(c, err)
	}

	annotations, err := h.repo.ListAnnotations(c.UserContext(), projectID)
	if err != nil {
		return err
	}
	return c.JSON(annotations)
}

// Create stores the uploaded audio under the project's workspace and saves
// the annotation. Non-WAV audio is converted first.
func (h *AnnotationHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	project, err := h.repo.GetProject(ctx, c.Params("id"))
	if err != nil {
		return projectError(c, err)
	}

	req, audio, ext, err := h.parseCreate(c)
	if err != nil {
		return err
	}
	if req.Transcript == nil {
		return jsonError(c, fiber.StatusBadRequest, "Missing transcript", "ERR_NO_TRANSCRIPT")
	}
	if len(audio) == 0 {
		return jsonError(c, fiber.StatusBadRequest, "Missing audio", "ERR_NO_AUDIO")
	}

	switch req.RecordingMode {
	case "":
		req.RecordingMode = types.ModeSingle
	case types.ModeSingle, types.ModeDiarization, types.ModeStreaming:
	default:
		return jsonError(c, fiber.StatusBadRequest, "Unknown recording mode", "ERR_INVALID_MODE")
	}

	if !transcription.IsWAV(audio) {
		audio, err = h.converter.ConvertBytes(ctx, audio, ext, false)
		if err != nil {
			h.logger.Error("Audio conversion failed", "project", project.ID, "error", err)
			return jsonError(c, fiber.StatusBadRequest, "Audio conversion failed", "ERR_CONVERSION_FAILED")
		}
	}

	if req.Duration <= 0 {
		if d, err := transcription.Duration(audio); err == nil {
			req.Duration = d
		}
	}

	filename := fmt.Sprintf("%s_%s_%s.wav", req.RecordingMode, time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	audioPath, err := h.store.Save(ctx, path.Join(project.WorkspacePath, filename), audio)
	if err != nil {
		return fmt.Errorf("save audio: %w", err)
	}

	saved, err := h.repo.SaveAnnotation(ctx, &types.Annotation{
		ProjectID:     project.ID,
		AudioFilename: filename,
		AudioPath:     audioPath,
		Transcript:    *req.Transcript,
		RecordingMode: req.RecordingMode,
		Language:      req.Language,
		Duration:      req.Duration,
	})
	if err != nil {
		if errors.Is(err, database.ErrProjectNotFound) {
			return projectError(c, err)
		}
		return err
	}

	h.metrics.RecordAnnotationSaved()
	h.logger.Info("Annotation saved", "project", project.ID, "annotation", saved.ID, "file", filename)

	if h.exports != nil {
		h.exports.Enqueue(queue.NewJob(project.Name, *saved))
	}

	return c.Status(fiber.StatusCreated).JSON(saved)
}

// parseCreate reads either a multipart upload with a "file" part or a JSON
// body with base64 audio. Validation failures are returned as *fiber.Error.
func (h *AnnotationHandler) parseCreate(c *fiber.Ctx) (CreateAnnotationRequest, []byte, string, error) {
	var req CreateAnnotationRequest

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return req, nil, "", fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if v, ok := form.Value["transcript"]; ok && len(v) > 0 {
			req.Transcript = &v[0]
		}
		req.RecordingMode = c.FormValue("recording_mode")
		req.Language = c.FormValue("language")
		req.Duration, _ = strconv.ParseFloat(c.FormValue("duration"), 64)

		file, err := c.FormFile("file")
		if err != nil {
			return req, nil, "", nil
		}

		maxSize := int64(h.maxSizeMB) * 1024 * 1024
		if file.Size > maxSize {
			return req, nil, "", fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB))
		}
		if !transcription.ValidateAudioFormat(file.Filename) {
			return req, nil, "", fiber.NewError(fiber.StatusBadRequest, "Unsupported audio format")
		}

		f, err := file.Open()
		if err != nil {
			return req, nil, "", fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return req, nil, "", fmt.Errorf("read upload: %w", err)
		}
		return req, data, strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Filename)), "."), nil
	}

	if err := c.BodyParser(&req); err != nil {
		return req, nil, "", fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Audio == "" {
		return req, nil, "", nil
	}

	data, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return req, nil, "", fiber.NewError(fiber.StatusBadRequest, "Invalid base64 audio")
	}
	ext, ok := transcription.DetectContainer(data)
	if !ok {
		ext = transcription.ContainerWebM
	}
	return req, data, ext, nil
}

func (h *AnnotationHandler) UpdateTranscript(c *fiber.Ctx) error {
	var req UpdateTranscriptRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body", "ERR_INVALID_BODY")
	}
	if req.Transcript == nil {
		return jsonError(c, fiber.StatusBadRequest, "Missing transcript", "ERR_NO_TRANSCRIPT")
	}

	if err := h.repo.UpdateTranscript(c.UserContext(), c.Params("id"), *req.Transcript); err != nil {
		return annotationError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *AnnotationHandler) Delete(c *fiber.Ctx) error {
	if err := h.repo.DeleteAnnotation(c.UserContext(), c.Params("id")); err != nil {
		return annotationError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func projectError(c *fiber.Ctx, err error) error {
	if errors.Is(err, database.ErrProjectNotFound) {
		return jsonError(c, fiber.StatusNotFound, "Project not found", "ERR_PROJECT_NOT_FOUND")
	}
	return err
}

func annotationError(c *fiber.Ctx, err error) error {
	if errors.Is(err, database.ErrAnnotationNotFound) {
		return jsonError(c, fiber.StatusNotFound, "Annotation not found", "ERR_ANNOTATION_NOT_FOUND")
	}
	return err
}
