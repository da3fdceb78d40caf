// Package coordinator implements the Session Coordinator: the core
// algorithm that orchestrates init, per-chunk admission and write,
// completion detection, and finalization, and enforces every invariant in
// core algorithm.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resumable-upload-core/pkg/chunk"
	"resumable-upload-core/pkg/container"
	"resumable-upload-core/pkg/digest"
	"resumable-upload-core/pkg/logging"
	"resumable-upload-core/pkg/metadata"
	"resumable-upload-core/pkg/metrics"
	"resumable-upload-core/pkg/storage"
)

// Coordinator is the only writer of session/chunk records and of upload
// target files.
type Coordinator struct {
	store    metadata.Store
	files    *storage.TargetFileStore
	writer   *chunk.Writer
	scratch  string
	logger   *logging.Logger
	serverID string
}

// New builds a Coordinator. scratchDir must already exist (cmd/server
// creates it at startup).
func New(store metadata.Store, files *storage.TargetFileStore, scratchDir string, logger *logging.Logger, serverID string) *Coordinator {
	return &Coordinator{
		store:    store,
		files:    files,
		writer:   chunk.NewWriter(),
		scratch:  scratchDir,
		logger:   logger,
		serverID: serverID,
	}
}

// InitResult is the response shape for Init.
type InitResult struct {
	ID             string
	Status         metadata.Status
	UploadedChunks []int
}

// Init creates a session (and its total_chunks PENDING chunk records,
// its chunk records) if id is new, or returns the existing session's current progress
// if it was already created — repeated Init calls with the same id are
// idempotent.
//
// If id was already created with a different filename or totalSize, the
// first value wins; see DESIGN.md's Open Question #1. This is not
// detected or rejected here.
func (c *Coordinator) Init(ctx context.Context, id, filename string, totalSize int64) (InitResult, error) {
	if id == "" || filename == "" || totalSize <= 0 {
		return InitResult{}, fmt.Errorf("%w: id, filename and a positive totalSize are required", ErrValidation)
	}

	totalChunks := chunk.TotalChunks(totalSize)
	now := time.Now()
	session := metadata.UploadSession{
		ID:          id,
		Filename:    filename,
		TotalSize:   totalSize,
		TotalChunks: totalChunks,
		Status:      metadata.StatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := c.store.PutSessionIfAbsent(ctx, session)
	if err == nil {
		records := make([]metadata.ChunkRecord, totalChunks)
		for i := range records {
			records[i] = metadata.ChunkRecord{UploadID: id, ChunkIndex: i, Status: metadata.ChunkPending}
		}
		if err := c.store.PutChunksIfAbsent(ctx, records); err != nil {
			return InitResult{}, fmt.Errorf("%w: %v", ErrStoreError, err)
		}
		metrics.UploadSessionsTotal.WithLabelValues(c.serverID).Inc()
		return InitResult{ID: id, Status: session.Status, UploadedChunks: []int{}}, nil
	}

	if !errors.Is(err, metadata.ErrSessionExists) {
		return InitResult{}, fmt.Errorf("%w: %v", ErrStoreError, err)
	}

	existing, err := c.store.GetSession(ctx, id)
	if err != nil {
		return InitResult{}, fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	uploaded, err := c.uploadedIndices(ctx, id)
	if err != nil {
		return InitResult{}, err
	}
	return InitResult{ID: existing.ID, Status: existing.Status, UploadedChunks: uploaded}, nil
}

func (c *Coordinator) uploadedIndices(ctx context.Context, id string) ([]int, error) {
	records, err := c.store.ListChunks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	out := make([]int, 0, len(records))
	for _, rec := range records {
		if rec.Status == metadata.ChunkReceived {
			out = append(out, rec.ChunkIndex)
		}
	}
	return out, nil
}

// ReceiveResult is the response shape for ReceiveChunk.
type ReceiveResult struct {
	Received    int
	TotalChunks int
	IsComplete  bool
	Message     string
}

// ReceiveChunk admits one chunk's payload. payload is read exactly once,
// streamed to a scratch file, and always drained or deleted on every exit
// path.
func (c *Coordinator) ReceiveChunk(ctx context.Context, id string, index int, payload io.Reader) (ReceiveResult, error) {
	session, err := c.store.GetSession(ctx, id)
	if errors.Is(err, metadata.ErrSessionNotFound) {
		discard(payload)
		return ReceiveResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		discard(payload)
		return ReceiveResult{}, fmt.Errorf("%w: %v", ErrStoreError, err)
	}

	// Tail idempotency: a session past UPLOADING has either finished or
	// failed; any further chunk for it is a stale retry.
	if session.Status != metadata.StatusUploading {
		discard(payload)
		received, _ := c.store.CountReceived(ctx, id)
		return ReceiveResult{
			Received:    received,
			TotalChunks: session.TotalChunks,
			IsComplete:  true,
			Message:     "already finalized",
		}, nil
	}

	if index < 0 || index >= session.TotalChunks {
		discard(payload)
		return ReceiveResult{}, fmt.Errorf("%w: chunk index %d out of range [0,%d)", ErrValidation, index, session.TotalChunks)
	}

	rec, err := c.store.GetChunk(ctx, id, index)
	if err != nil {
		discard(payload)
		return ReceiveResult{}, fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	if rec.Status == metadata.ChunkReceived {
		// Fast idempotent path: client retry of an already-durable chunk.
		discard(payload)
		received, err := c.store.CountReceived(ctx, id)
		if err != nil {
			return ReceiveResult{}, fmt.Errorf("%w: %v", ErrStoreError, err)
		}
		return ReceiveResult{
			Received:    received,
			TotalChunks: session.TotalChunks,
			IsComplete:  received == session.TotalChunks,
			Message:     "Chunk already uploaded",
		}, nil
	}

	scratchPath, scratchSize, err := c.spool(payload, id, index)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("%w: %v", ErrWriteError, err)
	}
	defer os.Remove(scratchPath)

	if err := c.writeChunk(session, index, scratchPath, scratchSize); err != nil {
		if errors.Is(err, chunk.ErrLengthMismatch) {
			metrics.ChunksRejectedTotal.WithLabelValues("length_mismatch", c.serverID).Inc()
			return ReceiveResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		metrics.ChunksRejectedTotal.WithLabelValues("write_error", c.serverID).Inc()
		return ReceiveResult{}, fmt.Errorf("%w: %v", ErrWriteError, err)
	}

	// The chunk record is durably marked RECEIVED only after the
	// bytes above are written and flushed.
	if err := c.store.SetChunkReceived(ctx, id, index); err != nil {
		return ReceiveResult{}, fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	metrics.ChunksReceivedTotal.WithLabelValues(c.serverID).Inc()

	received, err := c.store.CountReceived(ctx, id)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("%w: %v", ErrStoreError, err)
	}

	isComplete := received == session.TotalChunks
	if isComplete {
		// The last arriving chunk's handler also performs finalization,
		// inline, on this request.
		if err := c.TryFinalize(ctx, id); err != nil {
			c.logger.Error("inline finalize failed", zap.String("upload_id", id), zap.Error(err))
		}
	}

	return ReceiveResult{Received: received, TotalChunks: session.TotalChunks, IsComplete: isComplete}, nil
}

var scratchNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// spool streams payload into a uniquely-named scratch file and returns
// its path and actual byte length — the length the rest of the pipeline
// trusts, never a client-supplied hint.
func (c *Coordinator) spool(payload io.Reader, uploadID string, index int) (string, int64, error) {
	safeID := scratchNameSanitizer.ReplaceAllString(uploadID, "_")
	pattern := fmt.Sprintf("%s-%d-%s-*.chunk", safeID, index, uuid.NewString())

	f, err := os.CreateTemp(c.scratch, pattern)
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}

	n, copyErr := io.Copy(f, payload)
	syncErr := f.Sync()
	closeErr := f.Close()

	if copyErr != nil || syncErr != nil || closeErr != nil {
		os.Remove(f.Name())
		if copyErr != nil {
			return "", 0, fmt.Errorf("spool payload: %w", copyErr)
		}
		if syncErr != nil {
			return "", 0, fmt.Errorf("sync scratch file: %w", syncErr)
		}
		return "", 0, fmt.Errorf("close scratch file: %w", closeErr)
	}

	return f.Name(), n, nil
}

func (c *Coordinator) writeChunk(session metadata.UploadSession, index int, scratchPath string, scratchSize int64) error {
	start := time.Now()
	defer func() {
		metrics.ChunkWriteDuration.WithLabelValues(c.serverID).Observe(time.Since(start).Seconds())
	}()

	// Reject a wrong-length payload before the target file is opened, so a
	// rejected chunk never creates or touches it.
	expected := chunk.ExpectedSize(index, session.TotalChunks, session.TotalSize)
	if scratchSize != expected {
		return fmt.Errorf("%w: index %d expected %d bytes, got %d", chunk.ErrLengthMismatch, index, expected, scratchSize)
	}

	scratch, err := os.Open(scratchPath)
	if err != nil {
		return fmt.Errorf("open scratch file: %w", err)
	}
	defer scratch.Close()

	target, err := c.files.OpenForRandomWrite(session.ID)
	if err != nil {
		return err
	}
	defer target.Close()

	return c.writer.WriteChunk(target, index, session.TotalChunks, session.TotalSize, scratchSize, scratch)
}

// TryFinalize is the exactly-once completion transition.
// Multiple concurrent callers may race here; only the one that wins the
// UPLOADING->PROCESSING CAS proceeds.
func (c *Coordinator) TryFinalize(ctx context.Context, id string) error {
	swapped, err := c.store.UpdateSessionStatus(ctx, id, metadata.StatusUploading, metadata.StatusProcessing, metadata.StatusPatch{UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	if !swapped {
		// Either another worker already claimed finalization, or this
		// session is not (or no longer) UPLOADING at all — which also
		// covers a session that somehow reached COMPLETED out-of-band:
		// UPLOADING is unreachable from COMPLETED/FAILED, so the
		// CAS's `from` clause can never match it again. See DESIGN.md
		// Open Question #2.
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.FinalizeDuration.WithLabelValues(c.serverID).Observe(time.Since(start).Seconds())
	}()

	session, err := c.store.GetSession(ctx, id)
	if err != nil {
		c.failSession(ctx, id, err)
		return fmt.Errorf("%w: %v", ErrFinalization, err)
	}

	hash, err := digest.SHA256File(c.files.Path(id))
	if err != nil {
		c.failSession(ctx, id, err)
		return fmt.Errorf("%w: %v", ErrFinalization, err)
	}

	if container.LooksLikeZIP(session.Filename) {
		if _, peekErr := container.PeekZIP(c.files.Path(id)); peekErr != nil {
			// PeekError is suppressed by contract; never user-visible.
			c.logger.Warn("container peek failed", zap.String("upload_id", id), zap.Error(peekErr))
		}
	}

	swapped, err = c.store.UpdateSessionStatus(ctx, id, metadata.StatusProcessing, metadata.StatusCompleted, metadata.StatusPatch{
		FinalHash: hash,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		c.failSession(ctx, id, err)
		return fmt.Errorf("%w: %v", ErrFinalization, err)
	}
	if !swapped {
		// Unreachable: this worker has held exclusive
		// PROCESSING ownership since the first CAS succeeded, and
		// nothing else can move a PROCESSING session except this path.
		err := fmt.Errorf("session %s left PROCESSING unexpectedly", id)
		c.failSession(ctx, id, err)
		return fmt.Errorf("%w: %v", ErrFinalization, err)
	}

	metrics.UploadSessionsCompletedTotal.WithLabelValues(c.serverID).Inc()
	return nil
}

func (c *Coordinator) failSession(ctx context.Context, id string, cause error) {
	if _, err := c.store.UpdateSessionStatus(ctx, id, metadata.StatusProcessing, metadata.StatusFailed, metadata.StatusPatch{UpdatedAt: time.Now()}); err != nil {
		c.logger.Error("failed to mark session FAILED after finalization error", zap.String("upload_id", id), zap.Error(err))
	}
	metrics.UploadSessionsFailedTotal.WithLabelValues(c.serverID).Inc()
	c.logger.Error("finalization failed", zap.String("upload_id", id), zap.Error(cause))
}

// GetStatus is the read-only status query. It never blocks
// the write path.
func (c *Coordinator) GetStatus(ctx context.Context, id string) (metadata.UploadSession, []metadata.ChunkRecord, error) {
	session, err := c.store.GetSession(ctx, id)
	if errors.Is(err, metadata.ErrSessionNotFound) {
		return metadata.UploadSession{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return metadata.UploadSession{}, nil, fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	chunks, err := c.store.ListChunks(ctx, id)
	if err != nil {
		return metadata.UploadSession{}, nil, fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	return session, chunks, nil
}

func discard(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}
