package main

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{level: "debug", wantDebug: true, wantInfo: true},
		{level: "info", wantDebug: false, wantInfo: true},
		{level: "error", wantDebug: false, wantInfo: false},
		{level: "bogus", wantDebug: false, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(LoggerConfig{Level: tt.level, Format: "json"}, zapcore.AddSync(&buf))

			assert.Equal(t, tt.wantDebug, logger.Core().Enabled(zapcore.DebugLevel))
			assert.Equal(t, tt.wantInfo, logger.Core().Enabled(zapcore.InfoLevel))
		})
	}
}

func TestNewLoggerConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: "info", Format: "console"}, zapcore.AddSync(&buf))

	logger.Named("runner").Info("run starting", zap.Int("scenarios", 3))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "storefront.runner.")
	assert.Contains(t, out, "run starting")
	assert.Contains(t, out, `{"scenarios": 3}`)
}

func TestNewLoggerWritesJSONFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "storefront.log")
	var console bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1}, zapcore.AddSync(&console))

	logger.Named("checkout").Warn("checkout failed", zap.String("stage", "SHIPPING"))
	require.NoError(t, logger.Sync())

	f, err := os.Open(logFile)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "storefront.checkout", entry["logger"])
	assert.Equal(t, "checkout failed", entry["msg"])
	assert.Equal(t, "SHIPPING", entry["stage"])

	assert.True(t, strings.Contains(console.String(), "checkout failed"))
}
