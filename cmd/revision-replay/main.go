// Package main provides the revision-replay CLI. It builds Delta Manifests
// from recorded revisions and plays them back as a typing animation in the
// terminal.
//
// Commands:
//   - build    : revision-replay build --revisions <dir> --doc <id> [--out file]
//   - validate : revision-replay validate <manifest.json>
//   - inspect  : revision-replay inspect [--patch] <manifest.json>
//   - play     : revision-replay play [pacing flags] <manifest.json>
//
// Pacing and logging defaults come from REPLAY_* environment variables;
// flags override them.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"revision-replay/internal/config"
	"revision-replay/internal/logging"
)

// env holds what every command needs once the global flags are parsed.
type env struct {
	cfg    config.Config
	log    zerolog.Logger
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	e := &env{stdout: stdout, stderr: stderr, log: zerolog.Nop()}

	return &cli.App{
		Name:      "revision-replay",
		Usage:     "replay how a text document evolved across its recorded revisions",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, error (default from REPLAY_LOG_LEVEL)"},
			&cli.StringFlag{Name: "log-format", Usage: "console or json (default from REPLAY_LOG_FORMAT)"},
		},
		Before: func(c *cli.Context) error {
			return e.setup(c)
		},
		Commands: []*cli.Command{
			buildCommand(e),
			validateCommand(e),
			inspectCommand(e),
			playCommand(e),
		},
	}
}

// setup loads the environment config, applies the global flag overrides and
// builds the logger.
func (e *env) setup(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(e.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.log = logger
	return nil
}
