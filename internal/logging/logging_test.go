package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "debug", "json")
	require.NoError(t, err)
	log.Debug().Str("rev", "r1").Msg("revision loaded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	require.Equal(t, "revision loaded", line["message"])
	require.Equal(t, "r1", line["rev"])
	require.Equal(t, "debug", line["level"])
	require.Contains(t, line, "time")
}

func TestNewConsoleFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn", "console")
	require.NoError(t, err)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "shown")
	require.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"), "console output looks like json: %q", out)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, zerolog.InfoLevel, lvl)

	lvl, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, zerolog.DebugLevel, lvl)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}
