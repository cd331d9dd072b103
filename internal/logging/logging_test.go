package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := New(zap.New(core)).With("workflow_id", "wf-1")

	logger.Info("workflow submitted", "name", "Diethyl_Ether_api_conformer-search")
	logger.Error("wait failed", "error", "timeout")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "workflow submitted", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, map[string]interface{}{
		"workflow_id": "wf-1",
		"name":        "Diethyl_Ether_api_conformer-search",
	}, entries[0].ContextMap())
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner.log")
	logger := NewLogger(Options{Level: "debug", File: path, MaxSizeMB: 1})

	logger.Debug("polling", "workflow_id", "wf-2")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"workflow_id":"wf-2"`)
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.Warn("ignored", "k", "v")
	})
}
