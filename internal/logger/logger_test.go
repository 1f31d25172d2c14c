package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSONWithService(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWithWriter(&buf, "quotefeed", "info")

	l.Debug().Msg("hidden")
	l.Info().Str("key", "IBOV").Msg("collected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "quotefeed", entry["service"])
	require.Equal(t, "IBOV", entry["key"])
	require.Equal(t, "collected", entry["message"])
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, "debug", Level(true))
	require.Equal(t, "info", Level(false))
}
