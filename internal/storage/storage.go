package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/voice-annotation/internal/cloud"
	"github.com/codebuildervaibhav/voice-annotation/internal/config"
)

const (
	ModeLocal = "local"
	ModeS3    = "s3"
)

var (
	ErrNotFound   = errors.New("file not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Storage persists audio blobs under slash-separated keys
type Storage interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// URL returns a location a client can fetch the blob from. For S3 this is
	// a presigned URL valid for ttl, for local storage the file path.
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Mode() string
	Info() map[string]any
}

// New selects the storage backend from configuration. S3 mode falls back to
// local storage when credentials, bucket or bucket access are missing.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) Storage {
	local := NewLocalStorage(cfg.Storage.LocalPath)

	if cfg.Storage.Mode != ModeS3 {
		return local
	}

	s3Store, err := newS3FromConfig(ctx, cfg)
	if err != nil {
		logger.Error("S3 storage unavailable, falling back to local storage",
			"error", err, "local_path", cfg.Storage.LocalPath)
		return local
	}

	logger.Info("S3 storage initialized", "bucket", cfg.Storage.S3Bucket, "region", cfg.Storage.S3Region)
	return s3Store
}

func newS3FromConfig(ctx context.Context, cfg *config.Config) (*S3Storage, error) {
	if cfg.Storage.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET_NAME not configured")
	}

	sess, err := cloud.NewAWSSession(cfg.AWS, cfg.Storage.S3Region, cfg.Storage.S3Endpoint)
	if err != nil {
		return nil, err
	}

	s3Store := NewS3Storage(sess, cfg.Storage.S3Bucket, cfg.Storage.S3Region)
	if err := s3Store.CheckBucket(ctx); err != nil {
		return nil, err
	}
	return s3Store, nil
}

// cleanKey validates a storage key and returns it in slash form
func cleanKey(key string) (string, error) {
	key = strings.ReplaceAll(key, "\\", "/")
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return key, nil
}

// ContentType returns the MIME type for an audio file name
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".webm":
		return "audio/webm"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	}
	return "application/octet-stream"
}

const maxNameRunes = 100

// SanitizeName turns a user supplied name into a single safe path segment
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	result := strings.Trim(b.String(), ".")
	if runes := []rune(result); len(runes) > maxNameRunes {
		result = string(runes[:maxNameRunes])
	}
	if result == "" {
		result = "untitled"
	}
	return result
}
