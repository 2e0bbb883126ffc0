package infra

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("SEQUENCE_GAP_TOLERATED", slog.Uint64("gap", 3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "SEQUENCE_GAP_TOLERATED", rec["msg"])
	assert.Equal(t, AppName, rec["app"])
	assert.EqualValues(t, 3, rec["gap"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "text"}, &buf)
	require.NoError(t, err)

	logger.Debug("sweep", slog.Int("removed", 2))
	assert.Contains(t, buf.String(), "removed=2")
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := NewLogger(LoggingConfig{Level: "verbose"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewLogger(LoggingConfig{Level: "info", Format: "yaml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
