package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", FormatJSON)
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("run_id", "r1").Msg("run submitted")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "run submitted", entry["message"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, "ideaforge", entry["service"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", FormatConsole)
	require.NoError(t, err)

	logger.Debug().Str("step", "intake").Msg("step started")
	out := buf.String()
	assert.Contains(t, out, "step started")
	assert.Contains(t, out, "step=")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestNew_EmptyLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "", FormatJSON)
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", FormatJSON)
	assert.ErrorContains(t, err, "invalid log level")

	_, err = New(&bytes.Buffer{}, "info", "xml")
	assert.ErrorContains(t, err, "invalid log format")
}
