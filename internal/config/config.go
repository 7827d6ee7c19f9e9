// Package config loads runtime settings from the environment.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/xerrors"

	"revision-replay/internal/playback"
)

// Config holds the playback pacing and logging settings. Defaults match
// playback.DefaultOptions.
type Config struct {
	CharDuration      time.Duration `env:"REPLAY_CHAR_DURATION"        envDefault:"20ms"`
	DeletionLinger    time.Duration `env:"REPLAY_DELETION_LINGER"      envDefault:"300ms"`
	TimeSkipThreshold time.Duration `env:"REPLAY_TIME_SKIP_THRESHOLD"  envDefault:"1h"`
	TimeSkipDisplay   time.Duration `env:"REPLAY_TIME_SKIP_DISPLAY"    envDefault:"1s"`
	FrameInterval     time.Duration `env:"REPLAY_FRAME_INTERVAL"       envDefault:"16ms"`
	LogLevel          string        `env:"REPLAY_LOG_LEVEL"            envDefault:"info"`
	LogFormat         string        `env:"REPLAY_LOG_FORMAT"           envDefault:"console"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return xerrors.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that durations are usable and the log settings known.
func (c Config) Validate() error {
	var msgs []string
	if c.CharDuration <= 0 {
		msgs = append(msgs, "char duration must be > 0")
	}
	if c.DeletionLinger < 0 {
		msgs = append(msgs, "deletion linger must be >= 0")
	}
	if c.TimeSkipThreshold <= 0 {
		msgs = append(msgs, "time skip threshold must be > 0")
	}
	if c.TimeSkipDisplay < 0 {
		msgs = append(msgs, "time skip display must be >= 0")
	}
	if c.FrameInterval <= 0 {
		msgs = append(msgs, "frame interval must be > 0")
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		msgs = append(msgs, "log format must be console or json, got "+c.LogFormat)
	}
	if len(msgs) > 0 {
		return xerrors.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Playback returns the pacing options for a playback.Scheduler.
func (c Config) Playback() playback.Options {
	return playback.Options{
		CharDuration:      c.CharDuration,
		DeletionLinger:    c.DeletionLinger,
		TimeSkipThreshold: c.TimeSkipThreshold,
		TimeSkipDisplay:   c.TimeSkipDisplay,
	}
}
