// Package janitor runs the periodic reclamation sweep: abandoned upload
// sessions (and their target files) and stale scratch files left behind
// by interrupted chunk writes.
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"resumable-upload-core/pkg/logging"
	"resumable-upload-core/pkg/metadata"
	"resumable-upload-core/pkg/metrics"
	"resumable-upload-core/pkg/storage"
)

// Janitor periodically deletes sessions that outlived their retention
// window and scratch files older than their own, shorter, retention
// window.
type Janitor struct {
	store             metadata.Store
	files             *storage.TargetFileStore
	scratchDir        string
	sessionRetention  time.Duration
	scratchRetention  time.Duration
	interval          time.Duration
	logger            *logging.Logger
	serverID          string
}

// Config configures a Janitor's sweep cadence and retention windows.
type Config struct {
	ScratchDir       string
	SessionRetention time.Duration
	ScratchRetention time.Duration
	Interval         time.Duration
}

// New builds a Janitor. It does not start running until Run is called.
func New(store metadata.Store, files *storage.TargetFileStore, cfg Config, logger *logging.Logger, serverID string) *Janitor {
	return &Janitor{
		store:            store,
		files:            files,
		scratchDir:       cfg.ScratchDir,
		sessionRetention: cfg.SessionRetention,
		scratchRetention: cfg.ScratchRetention,
		interval:         cfg.Interval,
		logger:           logger,
		serverID:         serverID,
	}
}

// Run blocks, sweeping on a fixed interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one reclamation pass: expired sessions (abandoned
// UPLOADING or FAILED sessions older than sessionRetention — never
// COMPLETED or PROCESSING) and scratch files older than
// scratchRetention. Both halves are best-effort; one failing does not
// stop the other.
func (j *Janitor) Sweep(ctx context.Context) {
	start := time.Now()
	j.sweepSessions(ctx)
	j.sweepScratch()
	metrics.JanitorSweepDuration.WithLabelValues(j.serverID).Set(time.Since(start).Seconds())
}

func (j *Janitor) sweepSessions(ctx context.Context) {
	cutoff := time.Now().Add(-j.sessionRetention)
	statuses := []metadata.Status{
		metadata.StatusUploading,
		metadata.StatusFailed,
	}

	sessions, err := j.store.ListSessionsWhere(ctx, statuses, cutoff)
	if err != nil {
		j.logger.Error("janitor: list expired sessions failed", zap.Error(err))
		return
	}
	if len(sessions) == 0 {
		return
	}

	for _, session := range sessions {
		if err := j.files.Remove(session.ID); err != nil {
			j.logger.Error("janitor: remove target file failed", zap.String("upload_id", session.ID), zap.Error(err))
		}
	}

	if err := j.store.DeleteSessionsWhere(ctx, statuses, cutoff); err != nil {
		j.logger.Error("janitor: delete expired sessions failed", zap.Error(err))
		return
	}

	metrics.JanitorSessionsDeletedTotal.WithLabelValues(j.serverID).Add(float64(len(sessions)))
	j.logger.Info("janitor: reclaimed expired sessions", zap.Int("count", len(sessions)))
}

func (j *Janitor) sweepScratch() {
	entries, err := os.ReadDir(j.scratchDir)
	if err != nil {
		j.logger.Error("janitor: read scratch directory failed", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-j.scratchRetention)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.scratchDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.logger.Error("janitor: remove scratch file failed", zap.String("path", path), zap.Error(err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		metrics.JanitorScratchFilesDeletedTotal.WithLabelValues(j.serverID).Add(float64(deleted))
		j.logger.Info("janitor: reclaimed stale scratch files", zap.Int("count", deleted))
	}
}
