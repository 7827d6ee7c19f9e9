// Package logging builds the zerolog loggers used across the module.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// New returns a timestamped logger writing to w. format "console" gives
// human-readable output, "json" one JSON object per line.
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	out := w
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	logger := zerolog.New(out).With().Timestamp().Logger()
	return logger.Level(lvl), nil
}

// ParseLevel maps a level name to a zerolog level; empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, xerrors.Errorf("log level %q: %w", level, err)
	}
	return lvl, nil
}
