package coordinator

import "errors"

// AlreadyReceived and PeekError are deliberately not represented as
// errors here: the former is a success-shaped no-op, the latter is
// swallowed-and-logged and never reaches a caller.
var (
	// ErrValidation marks a malformed request: missing/ill-typed fields,
	// non-positive size. No state is mutated.
	ErrValidation = errors.New("coordinator: validation error")

	// ErrNotFound marks an unknown upload session.
	ErrNotFound = errors.New("coordinator: upload session not found")

	// ErrWriteError marks a disk I/O failure while spooling or writing a
	// chunk. The chunk record remains PENDING. A payload length mismatch is
	// reported as ErrValidation instead.
	ErrWriteError = errors.New("coordinator: chunk write failed")

	// ErrStoreError marks a metadata backend failure.
	ErrStoreError = errors.New("coordinator: metadata store error")

	// ErrFinalization marks a digest or CAS failure during PROCESSING.
	// The session is moved to FAILED before this is returned.
	ErrFinalization = errors.New("coordinator: finalization failed")
)
