package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := newLogger(buffer, HandlerTypeJSON, LogLevelInfo)
		logger.Info("Cache ready.", "policy", "lru")

		record := make(map[string]any)
		require.NoError(t, json.Unmarshal(buffer.Bytes(), &record))
		assert.Equal(t, "Cache ready.", record["msg"])
		assert.Equal(t, "lru", record["policy"])
	})
	t.Run("text", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := newLogger(buffer, HandlerTypeText, LogLevelInfo)
		logger.Info("Cache ready.", "policy", "lfu")
		assert.Contains(t, buffer.String(), "policy=lfu")
	})
	t.Run("level_filters_records", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := newLogger(buffer, HandlerTypeText, LogLevelWarn)
		logger.Info("Dropped.")
		assert.Empty(t, buffer.String())
		logger.Warn("Kept.")
		assert.Contains(t, buffer.String(), "Kept.")
	})
}

func TestParseLogLevel(t *testing.T) {
	for _, testCase := range []struct {
		level    LogLevel
		expected slog.Level
	}{
		{level: LogLevelDebug, expected: slog.LevelDebug},
		{level: LogLevelInfo, expected: slog.LevelInfo},
		{level: LogLevelWarn, expected: slog.LevelWarn},
		{level: LogLevelError, expected: slog.LevelError},
	} {
		t.Run(string(testCase.level), func(t *testing.T) {
			assert.Equal(t, testCase.expected, parseLogLevel(testCase.level))
		})
	}
}
