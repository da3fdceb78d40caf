package chunk

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTarget is an in-memory chunk.TargetFile, letting tests drive
// WriteChunk without touching a real filesystem.
type fakeTarget struct {
	buf       []byte
	synced    bool
	failWrite bool
}

func (f *fakeTarget) WriteAt(p []byte, off int64) (int, error) {
	if f.failWrite {
		return 0, errors.New("simulated disk failure")
	}
	end := off + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[off:end], p)
	return len(p), nil
}

func (f *fakeTarget) Sync() error {
	f.synced = true
	return nil
}

func withSize(t *testing.T, size int64) {
	t.Helper()
	orig := Size
	Size = size
	t.Cleanup(func() { Size = orig })
}

func TestTotalChunks(t *testing.T) {
	withSize(t, 4)

	tests := []struct {
		name      string
		totalSize int64
		want      int
	}{
		{"exact multiple", 8, 2},
		{"short last chunk", 10, 3},
		{"single byte", 1, 1},
		{"single full chunk", 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TotalChunks(tt.totalSize))
		})
	}
}

func TestExpectedSize(t *testing.T) {
	withSize(t, 4)

	assert.Equal(t, int64(4), ExpectedSize(0, 3, 10))
	assert.Equal(t, int64(4), ExpectedSize(1, 3, 10))
	assert.Equal(t, int64(2), ExpectedSize(2, 3, 10))
	assert.Equal(t, int64(1), ExpectedSize(0, 1, 1))
}

func TestOffset(t *testing.T) {
	withSize(t, 4)

	assert.Equal(t, int64(0), Offset(0))
	assert.Equal(t, int64(4), Offset(1))
	assert.Equal(t, int64(8), Offset(2))
}

func TestWriteChunk_WritesAtExpectedOffset(t *testing.T) {
	withSize(t, 4)

	target := &fakeTarget{}
	w := NewWriter()

	require.NoError(t, w.WriteChunk(target, 0, 3, 10, 4, bytes.NewReader([]byte("abcd"))))
	require.NoError(t, w.WriteChunk(target, 1, 3, 10, 4, bytes.NewReader([]byte("efgh"))))
	require.NoError(t, w.WriteChunk(target, 2, 3, 10, 2, bytes.NewReader([]byte("ij"))))

	assert.Equal(t, "abcdefghij", string(target.buf))
	assert.True(t, target.synced)
}

func TestWriteChunk_LengthMismatchLeavesTargetUntouched(t *testing.T) {
	withSize(t, 4)

	target := &fakeTarget{buf: []byte("XXXXXXXXXX")}
	w := NewWriter()

	err := w.WriteChunk(target, 0, 3, 10, 3, bytes.NewReader([]byte("abc")))
	require.ErrorIs(t, err, ErrLengthMismatch)
	assert.Equal(t, "XXXXXXXXXX", string(target.buf), "target must be untouched on a length mismatch")
	assert.False(t, target.synced)
}

func TestWriteChunk_WriteFailureLeavesNoPartialRecordAssumption(t *testing.T) {
	// Simulates the WriteError half of P4/S5: a disk failure mid-write must
	// surface an error so the caller never marks the chunk RECEIVED, and a
	// subsequent retry (fresh fakeTarget with failWrite cleared) succeeds.
	withSize(t, 4)

	failing := &fakeTarget{failWrite: true}
	w := NewWriter()
	err := w.WriteChunk(failing, 1, 3, 10, 4, bytes.NewReader([]byte("efgh")))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrLengthMismatch)

	retry := &fakeTarget{buf: make([]byte, 10)}
	require.NoError(t, w.WriteChunk(retry, 1, 3, 10, 4, bytes.NewReader([]byte("efgh"))))
	assert.Equal(t, "efgh", string(retry.buf[4:8]))
}

func TestWriteChunk_LastChunkShorterThanFull(t *testing.T) {
	withSize(t, 5*1024*1024)

	target := &fakeTarget{}
	w := NewWriter()
	require.NoError(t, w.WriteChunk(target, 0, 1, 1, 1, bytes.NewReader([]byte("Z"))))
	assert.Equal(t, "Z", string(target.buf))
}
