package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CamJohns/ddr-cmdln/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("collection processed", "collection", "ddr-test-123", "failed", 0)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "collection processed", rec["msg"])
	assert.Equal(t, "ddr-test-123", rec["collection"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewWritesLogFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "ddr.log")

	logger, closer, err := New(Options{Format: "text", Output: &buf, File: path, MaxSizeMB: 1})
	require.NoError(t, err)
	logger.Warn("working copy dirty", "collection", "ddr-test-1")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "working copy dirty")
	assert.Contains(t, buf.String(), "collection=ddr-test-1")
}

func TestNewRejectsFormat(t *testing.T) {
	_, _, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.Log.Level = "debug"

	logger, closer, err := NewFromConfig(cfg, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("loaded record")
	assert.Contains(t, buf.String(), "loaded record")
}
