// Package metadata defines the durable record types for upload sessions
// and chunk receipts, and the narrow Store contract any backend
// (in-memory, remote) must satisfy.
package metadata

import (
	"context"
	"errors"
	"time"
)

// Status is an UploadSession's position in the one-way state machine
// UPLOADING -> PROCESSING -> (COMPLETED | FAILED), with the single
// exception UPLOADING -> FAILED.
type Status string

const (
	StatusUploading  Status = "UPLOADING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// ChunkStatus is a single chunk record's receipt state.
type ChunkStatus string

const (
	ChunkPending  ChunkStatus = "PENDING"
	ChunkReceived ChunkStatus = "RECEIVED"
)

// UploadSession is the per-upload metadata record.
type UploadSession struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	TotalSize   int64      `json:"total_size"`
	TotalChunks int        `json:"total_chunks"`
	Status      Status     `json:"status"`
	FinalHash   string     `json:"final_hash,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ChunkRecord is the per-(upload, index) receipt record.
type ChunkRecord struct {
	UploadID    string      `json:"upload_id"`
	ChunkIndex  int         `json:"chunk_index"`
	Status      ChunkStatus `json:"status"`
	ReceivedAt  *time.Time  `json:"received_at,omitempty"`
}

// StatusPatch is the set of fields UpdateSessionStatus may apply alongside
// the status transition itself.
type StatusPatch struct {
	FinalHash string
	UpdatedAt time.Time
}

// ErrSessionExists is returned by PutSessionIfAbsent when a session with
// the same ID is already on record.
var ErrSessionExists = errors.New("metadata: session already exists")

// ErrSessionNotFound is returned by GetSession (and anything that needs a
// session to exist first) when no record matches the given ID.
var ErrSessionNotFound = errors.New("metadata: session not found")

// Store is the sole concurrency primitive the Session Coordinator relies
// on. UpdateSessionStatus's compare-and-set must be linearizable per
// session ID; every other method may be implemented
// however a given backend likes as long as PutChunksIfAbsent and
// SetChunkReceived are safe under concurrent callers for the same ID.
type Store interface {
	// PutSessionIfAbsent creates session if no record with the same ID
	// exists yet. Returns ErrSessionExists on collision; the caller is
	// expected to then GetSession and treat init as idempotent.
	PutSessionIfAbsent(ctx context.Context, session UploadSession) error

	// GetSession loads a session by ID. Returns ErrSessionNotFound if
	// absent.
	GetSession(ctx context.Context, id string) (UploadSession, error)

	// UpdateSessionStatus applies patch and advances status to `to` only
	// if the session's current status equals `from`. Returns whether the
	// swap occurred; a false return with a nil error means another
	// caller already moved the session past `from`.
	UpdateSessionStatus(ctx context.Context, id string, from, to Status, patch StatusPatch) (bool, error)

	// PutChunksIfAbsent bulk-creates the initial PENDING chunk records for
	// a session. Called once, from inside the same logical step that
	// creates the session.
	PutChunksIfAbsent(ctx context.Context, chunks []ChunkRecord) error

	// SetChunkReceived idempotently marks one chunk RECEIVED. Safe to call
	// more than once for the same (uploadID, index).
	SetChunkReceived(ctx context.Context, uploadID string, index int) error

	// GetChunk loads a single chunk record.
	GetChunk(ctx context.Context, uploadID string, index int) (ChunkRecord, error)

	// ListChunks returns every chunk record for uploadID.
	ListChunks(ctx context.Context, uploadID string) ([]ChunkRecord, error)

	// CountReceived returns the number of RECEIVED chunk records for
	// uploadID.
	CountReceived(ctx context.Context, uploadID string) (int, error)

	// ListSessionsWhere returns sessions whose status is one of
	// statusIn and whose CreatedAt is strictly before olderThan.
	ListSessionsWhere(ctx context.Context, statusIn []Status, olderThan time.Time) ([]UploadSession, error)

	// DeleteSessionsWhere deletes sessions (and their chunk records)
	// matching the same filter as ListSessionsWhere.
	DeleteSessionsWhere(ctx context.Context, statusIn []Status, olderThan time.Time) error
}
