package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"revision-replay/internal/config"
	"revision-replay/internal/playback"
	"revision-replay/internal/render"
)

func playCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "animate a manifest in the terminal",
		ArgsUsage: "<manifest.json>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "char-duration", Usage: "time per typed character"},
			&cli.DurationFlag{Name: "linger", Usage: "how long deleted text stays visible"},
			&cli.DurationFlag{Name: "time-skip-threshold", Usage: "revision gap shown as a time skip"},
			&cli.DurationFlag{Name: "time-skip-display", Usage: "how long a time skip is shown"},
			&cli.DurationFlag{Name: "frame-interval", Usage: "tick interval of the playback clock"},
			&cli.BoolFlag{Name: "plain", Usage: "no ANSI escapes; mark deleted text with [- -]"},
			&cli.BoolFlag{Name: "quiet", Usage: "only print the final text"},
		},
		Action: func(c *cli.Context) error {
			m, err := loadArg(c)
			if err != nil {
				return err
			}
			cfg := playConfig(c, e.cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			style := render.ANSI
			if c.Bool("plain") {
				style = render.Plain
			}
			quiet := c.Bool("quiet")
			total := len(m.Deltas)

			// The observer runs under the scheduler lock. Only the latest frame
			// is kept.
			frames := make(chan playback.Frame, 1)
			observe := func(f playback.Frame) {
				select {
				case <-frames:
				default:
				}
				frames <- f
			}

			clock := playback.NewFrameClock(cfg.FrameInterval)
			sched := playback.NewScheduler(clock,
				playback.WithOptions(cfg.Playback()),
				playback.WithObserver(observe),
				playback.WithLogger(e.log),
			)
			sched.SetManifest(m)
			sched.Play()

			for {
				select {
				case <-c.Context.Done():
					sched.Pause()
					f := sched.Snapshot()
					fmt.Fprintf(e.stdout, "\ninterrupted at revision %d/%d\n", f.RevisionIndex, total)
					return nil
				case f := <-frames:
					done := !f.Playing && f.State == playback.StateIdle
					if !quiet {
						fmt.Fprint(e.stdout, render.Screen(f, total, style))
					}
					if done {
						if quiet {
							fmt.Fprintln(e.stdout, render.Text(f, render.Plain))
						}
						return nil
					}
				}
			}
		},
	}
}

// playConfig applies the pacing flags on top of the environment config.
func playConfig(c *cli.Context, base config.Config) config.Config {
	cfg := base
	if c.IsSet("char-duration") {
		cfg.CharDuration = c.Duration("char-duration")
	}
	if c.IsSet("linger") {
		cfg.DeletionLinger = c.Duration("linger")
	}
	if c.IsSet("time-skip-threshold") {
		cfg.TimeSkipThreshold = c.Duration("time-skip-threshold")
	}
	if c.IsSet("time-skip-display") {
		cfg.TimeSkipDisplay = c.Duration("time-skip-display")
	}
	if c.IsSet("frame-interval") {
		cfg.FrameInterval = c.Duration("frame-interval")
	}
	return cfg
}
