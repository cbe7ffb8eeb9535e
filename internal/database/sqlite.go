package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_name TEXT UNIQUE NOT NULL,
	description TEXT,
	workspace_path TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	audio_filename TEXT NOT NULL,
	audio_path TEXT NOT NULL,
	transcript TEXT NOT NULL,
	original_transcript TEXT,
	recording_mode TEXT NOT NULL,
	language TEXT DEFAULT 'en',
	duration REAL,
	deleted TEXT DEFAULT 'N',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	FOREIGN KEY (project_id) REFERENCES projects (id)
);

CREATE INDEX IF NOT EXISTS idx_annotations_project ON annotations(project_id);
CREATE INDEX IF NOT EXISTS idx_annotations_filename ON annotations(audio_filename);
`

const annotationColumns = `id, project_id, audio_filename, audio_path, transcript,
	COALESCE(original_transcript, ''), recording_mode, COALESCE(language, 'en'),
	COALESCE(duration, 0), COALESCE(deleted, 'N'), created_at, updated_at`

// SQLiteRepository handles SQLite database operations
type SQLiteRepository struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writers serialize on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteRepository{
		db:   db,
		path: dbPath,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT p.id, p.project_name, COALESCE(p.description, ''), p.workspace_path, p.created_at,
		COUNT(CASE WHEN a.deleted IS NULL OR a.deleted = 'N' THEN a.id END)
	FROM projects p
	LEFT JOIN annotations a ON p.id = a.project_id
	GROUP BY p.id
	ORDER BY p.created_at DESC, p.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []types.Project{}
	for rows.Next() {
		var (
			p  types.Project
			id int64
		)
		if err := rows.Scan(&id, &p.Name, &p.Description, &p.WorkspacePath, &p.CreatedAt, &p.AnnotationCount); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.ID = strconv.FormatInt(id, 10)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, name, description, workspacePath string) (*types.Project, error) {
	createdAt := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (project_name, description, workspace_path, created_at) VALUES (?, ?, ?, ?)`,
		name, description, workspacePath, createdAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrProjectExists
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read project id: %w", err)
	}

	return &types.Project{
		ID:            strconv.FormatInt(id, 10),
		Name:          name,
		Description:   description,
		WorkspacePath: workspacePath,
		CreatedAt:     createdAt,
	}, nil
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*types.Project, error) {
	pid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrProjectNotFound
	}

	var p types.Project
	err = r.db.QueryRowContext(ctx, `
	SELECT p.project_name, COALESCE(p.description, ''), p.workspace_path, p.created_at,
		COUNT(CASE WHEN a.deleted IS NULL OR a.deleted = 'N' THEN a.id END)
	FROM projects p
	LEFT JOIN annotations a ON p.id = a.project_id
	WHERE p.id = ?
	GROUP BY p.id
	`, pid).Scan(&p.Name, &p.Description, &p.WorkspacePath, &p.CreatedAt, &p.AnnotationCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.ID = strconv.FormatInt(pid, 10)
	return &p, nil
}

func (r *SQLiteRepository) ListAnnotations(ctx context.Context, projectID string) ([]types.Annotation, error) {
	pid, err := strconv.ParseInt(projectID, 10, 64)
	if err != nil {
		return []types.Annotation{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+annotationColumns+`
	FROM annotations
	WHERE project_id = ? AND (deleted IS NULL OR deleted = 'N')
	ORDER BY created_at DESC, id DESC`, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()

	annotations := []types.Annotation{}
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, *a)
	}
	return annotations, rows.Err()
}

// SaveAnnotation inserts a and returns it with its id and timestamps set.
// The original transcript is frozen to the initial transcript.
func (r *SQLiteRepository) SaveAnnotation(ctx context.Context, a *types.Annotation) (*types.Annotation, error) {
	if _, err := r.GetProject(ctx, a.ProjectID); err != nil {
		return nil, err
	}

	saved := *a
	saved.OriginalTranscript = a.Transcript
	saved.CreatedAt = r.now()
	saved.UpdatedAt = saved.CreatedAt
	saved.Deleted = false
	if saved.Language == "" {
		saved.Language = "en"
	}

	res, err := r.db.ExecContext(ctx, `
	INSERT INTO annotations (project_id, audio_filename, audio_path, transcript, original_transcript,
		recording_mode, language, duration, deleted, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'N', ?, ?)`,
		saved.ProjectID, saved.AudioFilename, saved.AudioPath, saved.Transcript, saved.OriginalTranscript,
		saved.RecordingMode, saved.Language, saved.Duration, saved.CreatedAt, saved.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save annotation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation id: %w", err)
	}
	saved.ID = strconv.FormatInt(id, 10)
	return &saved, nil
}

func (r *SQLiteRepository) GetAnnotation(ctx context.Context, id string) (*types.Annotation, error) {
	aid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrAnnotationNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE id = ?`, aid)
	return scanAnnotation(row)
}

func (r *SQLiteRepository) UpdateTranscript(ctx context.Context, id, transcript string) error {
	return r.updateAnnotation(ctx, id, `UPDATE annotations SET transcript = ?, updated_at = ? WHERE id = ?`, transcript)
}

func (r *SQLiteRepository) DeleteAnnotation(ctx context.Context, id string) error {
	return r.updateAnnotation(ctx, id, `UPDATE annotations SET deleted = ?, updated_at = ? WHERE id = ?`, "Y")
}

func (r *SQLiteRepository) updateAnnotation(ctx context.Context, id, query, value string) error {
	aid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ErrAnnotationNotFound
	}

	res, err := r.db.ExecContext(ctx, query, value, r.now(), aid)
	if err != nil {
		return fmt.Errorf("failed to update annotation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update annotation %s: %w", id, err)
	}
	if n == 0 {
		return ErrAnnotationNotFound
	}
	return nil
}

func (r *SQLiteRepository) GetAnnotationByFilename(ctx context.Context, filename string) (*types.Annotation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+annotationColumns+`
	FROM annotations WHERE audio_filename = ? ORDER BY id DESC LIMIT 1`, filename)
	return scanAnnotation(row)
}

func (r *SQLiteRepository) Mode() string {
	return ModeSQLite
}

func (r *SQLiteRepository) Info() map[string]any {
	return map[string]any{
		"database_mode":      ModeSQLite,
		"sqlite_db_path":     r.path,
		"dynamodb_available": false,
	}
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnnotation(row rowScanner) (*types.Annotation, error) {
	var (
		a         types.Annotation
		id, pid   int64
		deletedYN string
	)
	err := row.Scan(&id, &pid, &a.AudioFilename, &a.AudioPath, &a.Transcript, &a.OriginalTranscript,
		&a.RecordingMode, &a.Language, &a.Duration, &deletedYN, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAnnotationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan annotation: %w", err)
	}
	a.ID = strconv.FormatInt(id, 10)
	a.ProjectID = strconv.FormatInt(pid, 10)
	a.Deleted = deletedYN == "Y"
	return &a, nil
}
