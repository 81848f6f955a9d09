package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "cargo.log")

	log, err := NewLogger(Config{Level: "info", File: logFile, Quiet: true})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("Committed file", zap.String("category", "images"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Committed file", entry["message"])
	assert.Equal(t, "images", entry["category"])
	assert.Contains(t, entry, "timestamp")
	assert.Contains(t, entry, "caller")
}

func TestNewLogger_Level(t *testing.T) {
	testCases := []struct {
		name     string
		level    string
		expected zapcore.Level
	}{
		{name: "debug", level: "debug", expected: zapcore.DebugLevel},
		{name: "warn", level: "warn", expected: zapcore.WarnLevel},
		{name: "无效级别回退到 info", level: "verbose", expected: zapcore.InfoLevel},
		{name: "空级别回退到 info", level: "", expected: zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			log, err := NewLogger(Config{Level: tc.level})
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tc.expected))
			if tc.expected > zapcore.DebugLevel {
				assert.False(t, log.Core().Enabled(tc.expected-1))
			}
		})
	}
}

func TestNewLogger_QuietWithoutFile(t *testing.T) {
	log, err := NewLogger(Config{Level: "debug", Quiet: true})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.ErrorLevel))
}

func TestNewLogger_UnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewLogger(Config{File: filepath.Join(blocker, "cargo.log")})
	assert.Error(t, err)
}

func TestNewDevelopmentLogger(t *testing.T) {
	log := NewDevelopmentLogger()
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 100, orDefault(0, 100))
	assert.Equal(t, 100, orDefault(-1, 100))
	assert.Equal(t, 7, orDefault(7, 100))
}
