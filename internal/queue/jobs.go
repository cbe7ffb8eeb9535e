package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

// Job status constants
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job represents an annotation export job
type Job struct {
	ID          string
	ProjectName string
	Annotation  types.Annotation
	Status      string
	Attempts    int
	Error       error
	ExportURL   string
	CreatedAt   time.Time
}

// NewJob creates a new job with default values
func NewJob(projectName string, a types.Annotation) *Job {
	return &Job{
		ID:          uuid.NewString(),
		ProjectName: projectName,
		Annotation:  a,
		Status:      StatusQueued,
		CreatedAt:   time.Now(),
	}
}
