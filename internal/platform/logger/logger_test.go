// Package logger_test contains tests for the logger package
package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbhughes/old-purrio-geographix/internal/config"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range cases {
		got, ok := logger.ParseLevel(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	got, ok := logger.ParseLevel("verbose")
	assert.False(t, ok)
	assert.Equal(t, slog.LevelInfo, got)
}

func TestNewFanout(t *testing.T) {
	t.Parallel()

	var console, file bytes.Buffer
	log := logger.NewFanout(&console, &file, slog.LevelInfo)

	log.Debug("hidden")
	log.Info("batch planned", "pages", 3)

	assert.Contains(t, console.String(), "msg=\"batch planned\"")
	assert.Contains(t, console.String(), "pages=3")
	assert.NotContains(t, console.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(file.Bytes()), &entry))
	assert.Equal(t, "batch planned", entry["msg"])
	assert.Equal(t, float64(3), entry["pages"])
}

func TestSetupWithLogFile(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	path := filepath.Join(t.TempDir(), "purr.log")
	log, cleanup, err := logger.Setup(config.WorkerConfig{
		ID:       "scout",
		LogLevel: "debug",
		LogFile:  path,
	})
	require.NoError(t, err)
	require.NotNil(t, log)

	log.Debug("written to file")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "written to file", entry["msg"])
	assert.Equal(t, "scout", entry["worker"])
	assert.Same(t, log, slog.Default())
}

func TestSetupBadLogFile(t *testing.T) {
	_, cleanup, err := logger.Setup(config.WorkerConfig{
		ID:       "scout",
		LogLevel: "info",
		LogFile:  filepath.Join(t.TempDir(), "missing", "dir", "purr.log"),
	})
	assert.Error(t, err)
	assert.NoError(t, cleanup())
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	buf, log := logger.NewTestLogger(t)
	ctx := logger.WithLogger(context.Background(), log)

	logger.FromContext(ctx).Info("from context", "task_id", 9)
	logger.AssertLogContains(t, buf, "from context")
	logger.AssertLogField(t, buf, "task_id", float64(9))

	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
	assert.Same(t, log, logger.FromContextOrDefault(ctx, fallback))
	assert.NotNil(t, logger.FromContext(context.Background()))
}
