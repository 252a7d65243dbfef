package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	buf := new(bytes.Buffer)
	logger, err := New(buf, "info", "json")
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("stream", "inputs").Msg("visible")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "visible", entry["message"])
	require.Equal(t, "inputs", entry["stream"])
	require.Equal(t, "info", entry["level"])
}

func TestNew_Console(t *testing.T) {
	buf := new(bytes.Buffer)
	logger, err := New(buf, "trace", "console")
	require.NoError(t, err)

	logger.Trace().Msg("peeking last produced event")
	require.Contains(t, buf.String(), "peeking last produced event")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(new(bytes.Buffer), "loud", "json")
	require.Error(t, err)

	_, err = New(new(bytes.Buffer), "info", "xml")
	require.Error(t, err)
}
