package cleanup

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SessionEvicter drops realtime sessions idle for longer than ttl
type SessionEvicter interface {
	EvictIdle(ttl time.Duration) int
}

// Scheduler removes stale upload files and idle realtime sessions
type Scheduler struct {
	tempDir   string
	interval  time.Duration
	maxAge    time.Duration
	sessions  SessionEvicter
	idleTTL   time.Duration
	keepFiles bool
	logger    *slog.Logger
	now       func() time.Time
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewScheduler creates a new cleanup scheduler. sessions may be nil.
func NewScheduler(tempDir string, interval, maxAge time.Duration, sessions SessionEvicter, idleTTL time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		sessions: sessions,
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// KeepUploads disables the temp file sweep. Uploads persisted in the temp
// directory are then never removed; idle sessions are still evicted.
func (s *Scheduler) KeepUploads() *Scheduler {
	s.keepFiles = true
	return s
}

// Start runs one sweep immediately and then one per interval
func (s *Scheduler) Start() {
	s.logger.Info("Running initial temp file cleanup", "dir", s.tempDir, "keep_uploads", s.keepFiles)
	s.sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.logger.Info("Cleanup scheduler started", "interval", s.interval, "max_age", s.maxAge, "session_idle_ttl", s.idleTTL)
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.logger.Info("Cleanup scheduler stopped")
	})
}

func (s *Scheduler) sweep() {
	if !s.keepFiles {
		s.cleanOldFiles()
	}

	if s.sessions != nil && s.idleTTL > 0 {
		if n := s.sessions.EvictIdle(s.idleTTL); n > 0 {
			s.logger.Info("Evicted idle realtime sessions", "count", n)
		}
	}
}

// cleanOldFiles removes files older than maxAge from the temp directory
func (s *Scheduler) cleanOldFiles() {
	now := s.now()

	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(s.tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if info.IsDir() {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}

		size := info.Size()
		if err := os.Remove(path); err != nil {
			s.logger.Error("Failed to delete old file", "path", path, "error", err)
			return nil
		}
		deletedCount++
		deletedSize += size
		s.logger.Debug("Deleted old temp file", "file", filepath.Base(path), "age", age.Round(time.Hour), "size_kb", size/1024)
		return nil
	})
	if err != nil {
		s.logger.Error("Error during cleanup", "error", err)
	}

	if deletedCount > 0 {
		s.logger.Info("Cleanup complete", "files_deleted", deletedCount, "mb_freed", float64(deletedSize)/(1024*1024))
	}
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0755)
}
