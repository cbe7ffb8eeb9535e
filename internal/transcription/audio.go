package transcription

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/voice-annotation/internal/config"
)

// Container extensions recognised from magic numbers
const (
	ContainerWebM = "webm"
	ContainerWAV  = "wav"
	ContainerOgg  = "ogg"
)

var (
	magicWebM = []byte{0x1A, 0x45, 0xDF, 0xA3}
	magicRIFF = []byte("RIFF")
	magicWAVE = []byte("WAVE")
	magicOgg  = []byte("OggS")
)

// DetectContainer returns the file extension of a recognised audio container
func DetectContainer(data []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(data, magicWebM):
		return ContainerWebM, true
	case bytes.HasPrefix(data, magicRIFF):
		return ContainerWAV, true
	case bytes.HasPrefix(data, magicOgg):
		return ContainerOgg, true
	}
	return "", false
}

// IsWAV reports whether data is a RIFF/WAVE file
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.HasPrefix(data, magicRIFF) && bytes.Equal(data[8:12], magicWAVE)
}

// Converter turns arbitrary audio into canonical 16-bit PCM WAV via ffmpeg
type Converter struct {
	ffmpegPath string
	sampleRate int
	channels   int
	tempDir    string
}

func NewConverter(cfg config.AudioConfig) *Converter {
	return &Converter{
		ffmpegPath: cfg.FFmpegPath,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		tempDir:    cfg.TempDir,
	}
}

func (c *Converter) args(inputPath, outputPath string, denoise bool) []string {
	args := []string{"-i", inputPath}
	if denoise {
		args = append(args, "-af", "afftdn")
	}
	return append(args,
		"-ar", strconv.Itoa(c.sampleRate),
		"-ac", strconv.Itoa(c.channels),
		"-c:a", "pcm_s16le",
		"-y",
		outputPath,
	)
}

// ToWAV converts inputPath into a WAV file at outputPath
func (c *Converter) ToWAV(ctx context.Context, inputPath, outputPath string, denoise bool) error {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, c.args(inputPath, outputPath, denoise)...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}

// ConvertBytes converts in-memory audio with the given extension and returns
// the WAV bytes. Intermediate files live in the temp dir and are removed.
func (c *Converter) ConvertBytes(ctx context.Context, data []byte, ext string, denoise bool) ([]byte, error) {
	if err := os.MkdirAll(c.tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	base := filepath.Join(c.tempDir, "convert_"+uuid.NewString())
	inputPath := base + "." + strings.TrimPrefix(ext, ".")
	outputPath := base + "_canonical.wav"
	defer os.Remove(inputPath)
	defer os.Remove(outputPath)

	if err := os.WriteFile(inputPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp audio: %w", err)
	}
	if err := c.ToWAV(ctx, inputPath, outputPath, denoise); err != nil {
		return nil, err
	}
	return os.ReadFile(outputPath)
}

// ValidateAudioFormat checks if the file format is supported
func ValidateAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	supportedFormats := []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".wma"}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
