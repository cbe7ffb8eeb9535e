package handlers

import (
	"context"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SpeechGenerator synthesizes speech for text
type SpeechGenerator interface {
	GenerateAudio(ctx context.Context, text string) (io.ReadCloser, error)
}

// TTSHandler streams synthesized speech
type TTSHandler struct {
	speech SpeechGenerator
}

func NewTTSHandler(speech SpeechGenerator) *TTSHandler {
	return &TTSHandler{speech: speech}
}

func (h *TTSHandler) Handle(c *fiber.Ctx) error {
	text := strings.TrimSpace(c.FormValue("text"))
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No text provided"})
	}

	body, err := h.speech.GenerateAudio(c.UserContext(), text)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	return c.SendStream(body)
}
