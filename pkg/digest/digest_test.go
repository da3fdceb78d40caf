package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256File_MatchesDirectDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target")
	content := []byte("abcdefghij")
	require.NoError(t, os.WriteFile(path, content, 0644))

	want := sha256.Sum256(content)

	got, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestSHA256File_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	want := sha256.Sum256(nil)
	got, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestSHA256File_LargerThanBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big")
	content := make([]byte, bufferSize*3+17)
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, content, 0644))

	want := sha256.Sum256(content)
	got, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestSHA256File_MissingFile(t *testing.T) {
	_, err := SHA256File(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
