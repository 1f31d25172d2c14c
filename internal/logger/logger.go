// Package logger builds the zerolog logger shared by the binaries.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a logger tagged with service and installs it as the global
// zerolog logger. level is a zerolog level name ("debug", "info", ...);
// unknown names fall back to info. pretty selects human readable console
// output instead of JSON.
func New(service, level string, pretty bool) zerolog.Logger {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}
	l := NewWithWriter(out, service, level)
	log.Logger = l
	return l
}

// NewWithWriter is New without touching global state.
func NewWithWriter(w io.Writer, service, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Level returns "debug" when debug is set, "info" otherwise.
func Level(debug bool) string {
	if debug {
		return zerolog.LevelDebugValue
	}
	return zerolog.LevelInfoValue
}
