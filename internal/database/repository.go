// Package database persists projects and annotations in SQLite or DynamoDB,
// selected once at startup.
package database

import (
	"context"
	"errors"
	"log/slog"

	"github.com/codebuildervaibhav/voice-annotation/internal/config"
	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

const (
	ModeSQLite   = "sqlite"
	ModeDynamoDB = "dynamodb"
)

var (
	ErrProjectExists      = errors.New("project name already exists")
	ErrProjectNotFound    = errors.New("project not found")
	ErrAnnotationNotFound = errors.New("annotation not found")
)

// Repository is implemented by every persistence backend.
//
// Listing operations exclude soft-deleted annotations; GetAnnotation and
// GetAnnotationByFilename read rows regardless of their deleted flag.
type Repository interface {
	ListProjects(ctx context.Context) ([]types.Project, error)
	CreateProject(ctx context.Context, name, description, workspacePath string) (*types.Project, error)
	GetProject(ctx context.Context, id string) (*types.Project, error)

	ListAnnotations(ctx context.Context, projectID string) ([]types.Annotation, error)
	SaveAnnotation(ctx context.Context, a *types.Annotation) (*types.Annotation, error)
	GetAnnotation(ctx context.Context, id string) (*types.Annotation, error)
	UpdateTranscript(ctx context.Context, id, transcript string) error
	DeleteAnnotation(ctx context.Context, id string) error
	GetAnnotationByFilename(ctx context.Context, filename string) (*types.Annotation, error)

	Mode() string
	Info() map[string]any
	Close() error
}

// New opens the configured backend. DynamoDB mode falls back to SQLite when
// credentials are missing or the tables cannot be prepared.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Repository, error) {
	if cfg.Database.Mode == ModeDynamoDB {
		repo, err := NewDynamoRepository(ctx, cfg)
		if err == nil {
			logger.Info("DynamoDB repository initialized",
				"region", cfg.Database.DynamoRegion,
				"projects_table", cfg.Database.ProjectsTable,
				"annotations_table", cfg.Database.AnnotationsTable)
			return repo, nil
		}
		logger.Error("DynamoDB unavailable, falling back to SQLite",
			"error", err, "sqlite_path", cfg.Database.SQLitePath)
	}

	repo, err := NewSQLiteRepository(cfg.Database.SQLitePath)
	if err != nil {
		return nil, err
	}
	logger.Info("SQLite repository initialized", "path", cfg.Database.SQLitePath)
	return repo, nil
}
