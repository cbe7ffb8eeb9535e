package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codebuildervaibhav/voice-annotation/internal/metrics"
	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

const maxAttempts = 3

// Exporter mirrors a saved annotation to an external destination
type Exporter interface {
	Export(ctx context.Context, projectName string, a *types.Annotation) (string, error)
}

// WorkerPool manages a pool of workers exporting annotations
type WorkerPool struct {
	jobQueue    chan *Job
	workerCount int
	exporter    Exporter
	logger      *slog.Logger
	metrics     *metrics.Metrics
	backoff     func(attempt int) time.Duration
	done        func(*Job)
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount int, exporter Exporter, logger *slog.Logger, m *metrics.Metrics) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		jobQueue:    make(chan *Job, 100), // Buffer of 100 jobs
		workerCount: workerCount,
		exporter:    exporter,
		logger:      logger,
		metrics:     m,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

// Start initializes all workers. Workers stop once Stop drains the queue.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.logger.Info("Starting export worker pool", "workers", wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Enqueue adds a job to the queue. A full queue drops the job.
func (wp *WorkerPool) Enqueue(job *Job) bool {
	job.Status = StatusQueued
	select {
	case wp.jobQueue <- job:
		wp.logger.Debug("Export job enqueued", "job", job.ID, "annotation", job.Annotation.ID)
		return true
	default:
		wp.logger.Warn("Export queue full, dropping job", "job", job.ID, "annotation", job.Annotation.ID)
		job.Status = StatusFailed
		wp.metrics.RecordExport(fmt.Errorf("queue full"))
		return false
	}
}

// Stop closes the queue and waits for queued jobs to finish
func (wp *WorkerPool) Stop() {
	wp.closeOnce.Do(func() { close(wp.jobQueue) })
	wp.wg.Wait()
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		// Panic recovery
		func() {
			defer func() {
				if r := recover(); r != nil {
					wp.logger.Error("Worker panic processing export job",
						"worker", id, "job", job.ID, "panic", r, "stack", string(debug.Stack()))
					job.Status = StatusFailed
					job.Error = fmt.Errorf("worker panic: %v", r)
				}
			}()

			wp.processJob(ctx, id, job)
		}()

		if wp.done != nil {
			wp.done(job)
		}
	}
}

// processJob exports one annotation with up to three attempts
func (wp *WorkerPool) processJob(ctx context.Context, workerID int, job *Job) {
	job.Status = StatusProcessing

	var err error
retry:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		job.Attempts = attempt
		job.ExportURL, err = wp.exporter.Export(ctx, job.ProjectName, &job.Annotation)
		if err == nil {
			break
		}
		wp.logger.Warn("Export attempt failed",
			"worker", workerID, "job", job.ID, "attempt", attempt, "max_attempts", maxAttempts, "error", err)
		if attempt < maxAttempts {
			select {
			case <-time.After(wp.backoff(attempt)):
			case <-ctx.Done():
				err = ctx.Err()
				break retry
			}
		}
	}

	wp.metrics.RecordExport(err)
	if err != nil {
		job.Status = StatusFailed
		job.Error = err
		wp.logger.Error("Export failed, annotation kept locally only",
			"worker", workerID, "job", job.ID, "annotation", job.Annotation.ID, "error", err)
		return
	}

	job.Status = StatusCompleted
	wp.logger.Info("Annotation exported",
		"worker", workerID, "job", job.ID, "annotation", job.Annotation.ID, "url", job.ExportURL)
}
