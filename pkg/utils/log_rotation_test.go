package utils

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNewRotatingFile(t *testing.T) {
	_, err := NewRotatingFile(RotationConfig{})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "logs", "pagestated.log")
	rf, err := NewRotatingFile(RotationConfig{Path: path})
	require.NoError(t, err)
	defer rf.Close()

	assert.Equal(t, 3, rf.config.MaxBackups)
	assert.FileExists(t, path)
}

func TestRotatingFile_RotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	rf, err := NewRotatingFile(RotationConfig{Path: path, MaxBytes: 10, MaxBackups: 2})
	require.NoError(t, err)
	defer rf.Close()

	for _, line := range []string{"aaaaaa\n", "bbbbbb\n", "cccccc\n", "dddddd\n"} {
		_, err := rf.Write([]byte(line))
		require.NoError(t, err)
	}

	assert.Equal(t, "dddddd\n", readFile(t, path))
	assert.Equal(t, "cccccc\n", readFile(t, rf.BackupPath(1)))
	assert.Equal(t, "bbbbbb\n", readFile(t, rf.BackupPath(2)))
	assert.NoFileExists(t, rf.BackupPath(3), "only MaxBackups files are kept")
}

func TestRotatingFile_OversizedWriteIsNotSplit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	rf, err := NewRotatingFile(RotationConfig{Path: path, MaxBytes: 4})
	require.NoError(t, err)
	defer rf.Close()

	long := strings.Repeat("x", 32)
	_, err = rf.Write([]byte(long))
	require.NoError(t, err)
	assert.Equal(t, long, readFile(t, path))
	assert.NoFileExists(t, rf.BackupPath(1))
}

func TestRotatingFile_Compress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	rf, err := NewRotatingFile(RotationConfig{Path: path, Compress: true})
	require.NoError(t, err)
	defer rf.Close()

	_, err = rf.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, rf.Rotate())

	assert.True(t, strings.HasSuffix(rf.BackupPath(1), ".1.gz"))
	f, err := os.Open(rf.BackupPath(1))
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(data))
	assert.Empty(t, readFile(t, path))
}

func TestRotatingFile_AsLoggerOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	rf, err := NewRotatingFile(RotationConfig{Path: path})
	require.NoError(t, err)

	logger, err := NewStructuredLogger(&StructuredLoggerConfig{Level: INFO, Output: rf, Format: FormatJSON})
	require.NoError(t, err)
	logger.WithComponent("pagestore").Info("page stored", map[string]interface{}{"page": 3})
	require.NoError(t, rf.Close())

	content := readFile(t, path)
	assert.Contains(t, content, `"message":"page stored"`)
	assert.Contains(t, content, `"component":"pagestore"`)

	_, err = rf.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
