package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTargetFileStore_CreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "upload")
	_, err := NewTargetFileStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenForRandomWrite_CreatesThenReopens(t *testing.T) {
	s, err := NewTargetFileStore(t.TempDir())
	require.NoError(t, err)

	f, err := s.OpenForRandomWrite("u1")
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := s.OpenForRandomWrite("u1")
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = f2.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	require.NoError(t, f2.Close())
}

func TestStat_NotExist(t *testing.T) {
	s, err := NewTargetFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Stat("missing")
	assert.True(t, os.IsNotExist(err))
}

func TestRemove_IdempotentOnMissingFile(t *testing.T) {
	s, err := NewTargetFileStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, s.Remove("never-existed"))

	f, err := s.OpenForRandomWrite("u1")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Remove("u1"))
	_, err = s.Stat("u1")
	assert.True(t, os.IsNotExist(err))
}
