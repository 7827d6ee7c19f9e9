package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"revision-replay/internal/diff"
	"revision-replay/internal/manifest"
	"revision-replay/internal/revision"
	"revision-replay/internal/textutil"
	"revision-replay/internal/validate"
)

func buildCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "diff consecutive revisions of a document into a manifest",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "revisions", Usage: "directory holding <doc>/revisions.json and bodies", Required: true},
			&cli.StringFlag{Name: "doc", Usage: "document id", Required: true},
			&cli.StringFlag{Name: "out", Usage: "output manifest path (default <doc>.manifest.json)"},
			&cli.BoolFlag{Name: "validate", Usage: "validate the manifest before writing", Value: true},
		},
		Action: func(c *cli.Context) error {
			docID := c.String("doc")
			out := c.String("out")
			if out == "" {
				out = docID + ".manifest.json"
			}

			src := revision.NewDirSource(c.String("revisions"))
			revs, err := src.List(c.Context, docID)
			if err != nil {
				return xerrors.Errorf("list revisions: %w", err)
			}
			e.log.Debug().Str("doc", docID).Int("revisions", len(revs)).Msg("revisions listed")

			m, err := manifest.Build(docID, revs, diff.Chars)
			if err != nil {
				return xerrors.Errorf("build manifest: %w", err)
			}
			if c.Bool("validate") {
				if err := validate.Manifest(m); err != nil {
					return xerrors.Errorf("built manifest is invalid: %w", err)
				}
			}
			if err := manifest.Save(filepath.Clean(out), m); err != nil {
				return xerrors.Errorf("save manifest: %w", err)
			}
			fmt.Fprintf(e.stdout, "Wrote manifest %s (revisions=%d, deltas=%d)\n", out, m.TotalRevisions, len(m.Deltas))
			return nil
		},
	}
}

func validateCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "check a manifest for ordering and diff consistency",
		ArgsUsage: "<manifest.json>",
		Action: func(c *cli.Context) error {
			m, err := loadArg(c)
			if err != nil {
				return err
			}
			if err := validate.Manifest(m); err != nil {
				return xerrors.Errorf("%s is invalid:\n%s", c.Args().First(), err.Error())
			}
			fmt.Fprintf(e.stdout, "OK: %s (deltas=%d)\n", c.Args().First(), len(m.Deltas))
			return nil
		},
	}
}

func inspectCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "summarise each revision of a manifest",
		ArgsUsage: "<manifest.json>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "patch", Usage: "print a unified line patch per revision"},
			&cli.IntFlag{Name: "context", Usage: "context lines in patches", Value: 3},
			&cli.IntFlag{Name: "max-patch-bytes", Usage: "omit patches larger than this (0 = no limit)", Value: 2_000_000},
			&cli.DurationFlag{Name: "time-skip-threshold", Usage: "gap marked as a time skip (default from REPLAY_TIME_SKIP_THRESHOLD)"},
		},
		Action: func(c *cli.Context) error {
			m, err := loadArg(c)
			if err != nil {
				return err
			}
			texts, err := manifest.Replay(m)
			if err != nil {
				return xerrors.Errorf("replay manifest: %w", err)
			}
			threshold := e.cfg.TimeSkipThreshold
			if c.IsSet("time-skip-threshold") {
				threshold = c.Duration("time-skip-threshold")
			}

			fmt.Fprintf(e.stdout, "file %s: %d deltas, base %d chars\n", m.FileID, len(m.Deltas), textutil.RuneLen(m.BaseText))
			prev := m.BaseTimestamp
			for i, d := range m.Deltas {
				s := summarize(d)
				line := fmt.Sprintf("%4d  %-12s  %-24s  %-16s  +%d -%d", i+1, d.RevID, formatTime(d.Timestamp), d.Author, s.inserted, s.deleted)
				if s.unknown > 0 {
					line += fmt.Sprintf("  (%d unknown ops)", s.unknown)
				}
				if !prev.IsZero() && !d.Timestamp.IsZero() && d.Timestamp.Sub(prev.Time) > threshold {
					line += fmt.Sprintf("  [time skip %s]", d.Timestamp.Sub(prev.Time).Round(time.Second))
				}
				fmt.Fprintln(e.stdout, line)
				if !d.Timestamp.IsZero() {
					prev = d.Timestamp
				}

				if c.Bool("patch") {
					body, _ := diff.Unified(
						fmt.Sprintf("rev/%d", i), fmt.Sprintf("rev/%d", i+1),
						texts[i], texts[i+1],
						diff.Options{Context: c.Int("context"), MaxBytes: c.Int("max-patch-bytes")},
					)
					fmt.Fprint(e.stdout, body)
				}
			}
			fmt.Fprintf(e.stdout, "final: %s\n", textutil.Abbrev(texts[len(texts)-1], 72))
			return nil
		},
	}
}

type opSummary struct {
	inserted, deleted, unknown int
}

func summarize(d manifest.Delta) opSummary {
	var s opSummary
	for _, op := range d.Ops {
		switch op.Code {
		case manifest.OpInsert:
			s.inserted += textutil.RuneLen(op.Text)
		case manifest.OpDelete:
			s.deleted += textutil.RuneLen(op.Text)
		case manifest.OpEqual:
		default:
			s.unknown++
		}
	}
	return s
}

func formatTime(t manifest.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// loadArg loads the manifest named by the first positional argument.
func loadArg(c *cli.Context) (*manifest.Manifest, error) {
	if c.NArg() != 1 {
		return nil, xerrors.Errorf("usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage)
	}
	m, err := manifest.Load(c.Args().First())
	if err != nil {
		return nil, err
	}
	return m, nil
}
