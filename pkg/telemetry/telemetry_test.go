package telemetry

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("lmb", "debug", "json", &buf)
	require.NoError(t, err)

	logger.Debug("patching version")
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "patching version", entry["msg"])
	assert.Equal(t, "lmb", entry["service"])
	assert.Contains(t, entry, "ts")
}

func TestNewLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("", "warn", "console", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLoggerRejectsUnknownSettings(t *testing.T) {
	_, err := NewLogger("lmb", "loud", "json", nil)
	assert.Error(t, err)

	_, err = NewLogger("lmb", "info", "xml", nil)
	assert.Error(t, err)
}

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(t.Context(), "lmb", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(t.Context()))

	_, err = InitTracing(t.Context(), "", "")
	assert.Error(t, err)
}

func TestNewTraceExporterRejectsHostlessURL(t *testing.T) {
	_, err := newTraceExporter(t.Context(), "http://")
	assert.Error(t, err)
}
