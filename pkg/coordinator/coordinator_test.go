package coordinator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumable-upload-core/pkg/chunk"
	"resumable-upload-core/pkg/logging"
	"resumable-upload-core/pkg/metadata"
	"resumable-upload-core/pkg/metadata/memstore"
	"resumable-upload-core/pkg/storage"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.GetLogger(logging.LogConfig{
		ServiceName: "coordinator-test",
		LogLevel:    "error",
		OutputPaths: []string{"stdout"},
	})
	require.NoError(t, err)
	return logger
}

// harness wires a Coordinator against a fresh memstore and temp
// directories, with chunk.Size shrunk to 4 bytes so multi-chunk scenarios
// don't need real 5 MiB payloads.
type harness struct {
	coord *Coordinator
	store metadata.Store
	files *storage.TargetFileStore
}

func newHarness(t *testing.T) harness {
	t.Helper()
	origSize := chunk.Size
	chunk.Size = 4
	t.Cleanup(func() { chunk.Size = origSize })

	dir := t.TempDir()
	files, err := storage.NewTargetFileStore(filepath.Join(dir, "upload"))
	require.NoError(t, err)

	scratch := filepath.Join(dir, "temp")
	require.NoError(t, os.MkdirAll(scratch, 0755))

	store := memstore.New()
	coord := New(store, files, scratch, testLogger(t), "test-server")
	return harness{coord: coord, store: store, files: files}
}

func reuseHarness(t *testing.T, h harness) harness {
	t.Helper()
	// Simulates a process restart: a fresh Coordinator over the same
	// store and files, as cmd/server would build after a crash.
	dir := t.TempDir()
	scratch := filepath.Join(dir, "temp")
	require.NoError(t, os.MkdirAll(scratch, 0755))
	return harness{
		coord: New(h.store, h.files, scratch, testLogger(t), "test-server"),
		store: h.store,
		files: h.files,
	}
}

func sha256hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// TestHappyPath covers S1: init, then chunks submitted in order.
func TestHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	initRes, err := h.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)
	assert.Equal(t, metadata.StatusUploading, initRes.Status)
	assert.Empty(t, initRes.UploadedChunks)

	chunks := []string{"abcd", "efgh", "ij"}
	for i, payload := range chunks {
		res, err := h.coord.ReceiveChunk(ctx, "u1", i, bytes.NewReader([]byte(payload)))
		require.NoError(t, err)
		if i < len(chunks)-1 {
			assert.False(t, res.IsComplete)
		} else {
			assert.True(t, res.IsComplete)
		}
	}

	session, _, err := h.coord.GetStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, metadata.StatusCompleted, session.Status)
	assert.Equal(t, sha256hex([]byte("abcdefghij")), session.FinalHash)

	data, err := os.ReadFile(h.files.Path("u1"))
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", string(data))
}

// TestOutOfOrder covers S2: same end state regardless of arrival order.
func TestOutOfOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)

	order := []struct {
		index   int
		payload string
	}{{2, "ij"}, {0, "abcd"}, {1, "efgh"}}

	for _, c := range order {
		_, err := h.coord.ReceiveChunk(ctx, "u1", c.index, bytes.NewReader([]byte(c.payload)))
		require.NoError(t, err)
	}

	session, _, err := h.coord.GetStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, metadata.StatusCompleted, session.Status)
	assert.Equal(t, sha256hex([]byte("abcdefghij")), session.FinalHash)

	data, err := os.ReadFile(h.files.Path("u1"))
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", string(data))
}

// TestConcurrentLastChunkFinalizesExactlyOnce covers S3/P3: several
// concurrent deliveries of the final chunk must only let one finalize.
func TestConcurrentLastChunkFinalizesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)
	_, err = h.coord.ReceiveChunk(ctx, "u1", 0, bytes.NewReader([]byte("abcd")))
	require.NoError(t, err)
	_, err = h.coord.ReceiveChunk(ctx, "u1", 1, bytes.NewReader([]byte("efgh")))
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.coord.ReceiveChunk(ctx, "u1", 2, bytes.NewReader([]byte("ij")))
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	session, chunks, err := h.coord.GetStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, metadata.StatusCompleted, session.Status)
	assert.Equal(t, sha256hex([]byte("abcdefghij")), session.FinalHash)
	for _, c := range chunks {
		assert.Equal(t, metadata.ChunkReceived, c.Status)
	}
}

// TestCrashRecovery covers S4: a second Coordinator instance over the same
// store resumes from the surviving progress.
func TestCrashRecovery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)
	_, err = h.coord.ReceiveChunk(ctx, "u1", 0, bytes.NewReader([]byte("abcd")))
	require.NoError(t, err)
	_, err = h.coord.ReceiveChunk(ctx, "u1", 1, bytes.NewReader([]byte("efgh")))
	require.NoError(t, err)

	restarted := reuseHarness(t, h)

	initRes, err := restarted.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)
	assert.Equal(t, metadata.StatusUploading, initRes.Status)
	assert.ElementsMatch(t, []int{0, 1}, initRes.UploadedChunks)

	res, err := restarted.coord.ReceiveChunk(ctx, "u1", 2, bytes.NewReader([]byte("ij")))
	require.NoError(t, err)
	assert.True(t, res.IsComplete)

	session, _, err := restarted.coord.GetStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, metadata.StatusCompleted, session.Status)
}

func TestInit_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)
	_, err = h.coord.ReceiveChunk(ctx, "u1", 0, bytes.NewReader([]byte("abcd")))
	require.NoError(t, err)

	second, err := h.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []int{0}, second.UploadedChunks)
}

func TestInit_RejectsMissingFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Init(ctx, "", "a.zip", 10)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.coord.Init(ctx, "u1", "", 10)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.coord.Init(ctx, "u1", "a.zip", 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReceiveChunk_UnknownSessionIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.ReceiveChunk(context.Background(), "missing", 0, bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReceiveChunk_WrongLengthRejectedAndStaysPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)

	_, err = h.coord.ReceiveChunk(ctx, "u1", 0, bytes.NewReader([]byte("ab")))
	assert.ErrorIs(t, err, ErrValidation)

	_, chunks, err := h.coord.GetStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, metadata.ChunkPending, chunks[0].Status)

	_, err = os.Stat(h.files.Path("u1"))
	assert.True(t, os.IsNotExist(err), "a rejected chunk must never create the target file")
}

func TestReceiveChunk_DuplicateIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)

	_, err = h.coord.ReceiveChunk(ctx, "u1", 0, bytes.NewReader([]byte("abcd")))
	require.NoError(t, err)

	res, err := h.coord.ReceiveChunk(ctx, "u1", 0, bytes.NewReader([]byte("abcd")))
	require.NoError(t, err)
	assert.Equal(t, "Chunk already uploaded", res.Message)
	assert.Equal(t, 1, res.Received)
}

func TestReceiveChunk_AfterFinalizationIsIdempotentTailNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)
	for i, payload := range []string{"abcd", "efgh", "ij"} {
		_, err := h.coord.ReceiveChunk(ctx, "u1", i, bytes.NewReader([]byte(payload)))
		require.NoError(t, err)
	}

	res, err := h.coord.ReceiveChunk(ctx, "u1", 2, bytes.NewReader([]byte("ij")))
	require.NoError(t, err)
	assert.Equal(t, "already finalized", res.Message)
	assert.True(t, res.IsComplete)
}

func TestSingleByteUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.coord.Init(ctx, "u1", "a.txt", 1)
	require.NoError(t, err)

	res, err := h.coord.ReceiveChunk(ctx, "u1", 0, bytes.NewReader([]byte("Z")))
	require.NoError(t, err)
	assert.True(t, res.IsComplete)

	info, err := h.files.Stat("u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.Size())
}

func TestExactMultipleOfChunkSizeHasNoShortLastChunk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.coord.Init(ctx, "u1", "a.bin", 8)
	require.NoError(t, err)

	_, err = h.coord.ReceiveChunk(ctx, "u1", 0, bytes.NewReader([]byte("abcd")))
	require.NoError(t, err)
	res, err := h.coord.ReceiveChunk(ctx, "u1", 1, bytes.NewReader([]byte("efgh")))
	require.NoError(t, err)
	assert.True(t, res.IsComplete)

	info, err := h.files.Stat("u1")
	require.NoError(t, err)
	assert.EqualValues(t, 8, info.Size())
}

func TestTryFinalize_NoOpWhenNotUploading(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.coord.Init(ctx, "u1", "a.zip", 10)
	require.NoError(t, err)
	for i, payload := range []string{"abcd", "efgh", "ij"} {
		_, err := h.coord.ReceiveChunk(ctx, "u1", i, bytes.NewReader([]byte(payload)))
		require.NoError(t, err)
	}

	session, _, err := h.coord.GetStatus(ctx, "u1")
	require.NoError(t, err)
	hashBefore := session.FinalHash

	// A session that somehow reached COMPLETED out-of-band must reject any
	// further finalization attempt: see DESIGN.md Open Question #2.
	require.NoError(t, h.coord.TryFinalize(ctx, "u1"))

	session, _, err = h.coord.GetStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, hashBefore, session.FinalHash)
	assert.Equal(t, metadata.StatusCompleted, session.Status)
}
