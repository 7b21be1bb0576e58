package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	closeFn, err := Init(Options{})
	require.NoError(t, err)
	require.NoError(t, closeFn())
	assert.False(t, L.Enabled(t.Context(), slog.LevelWarn))
	assert.False(t, L.Enabled(t.Context(), slog.LevelError))
}

func TestInit_Writer(t *testing.T) {
	var buf bytes.Buffer
	closeFn, err := Init(Options{Enabled: true, Writer: &buf, Level: slog.LevelWarn})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = Init(Options{}) })

	Info("hidden")
	Warn("shown", "heap", 3)
	require.NoError(t, closeFn())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "level=WARN msg=shown heap=3")
}

func TestInit_JSON(t *testing.T) {
	var buf bytes.Buffer
	_, err := Init(Options{Enabled: true, Writer: &buf, Level: slog.LevelDebug, JSON: true})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = Init(Options{}) })

	Debug("allocate", "size", 64)
	assert.Contains(t, buf.String(), `"msg":"allocate","size":64`)
}

func TestInit_LogDir(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, logPrefix+"2001-01-01"+logSuffix)
	other := filepath.Join(dir, "unrelated.log")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	closeFn, err := Init(Options{Enabled: true, LogDir: dir, Level: slog.LevelInfo})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = Init(Options{}) })

	Error("failed", "err", "boom")
	require.NoError(t, closeFn())

	assert.NoFileExists(t, old)
	assert.FileExists(t, other)

	data, err := os.ReadFile(filepath.Join(dir, logPrefix+time.Now().Format(time.DateOnly)+logSuffix))
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=failed err=boom")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}
