// Package render turns playback frames into terminal text. Lingering
// deletions are shown struck through (ANSI) or bracketed (plain).
package render

import (
	"fmt"
	"sort"
	"strings"

	"revision-replay/internal/playback"
)

// Style selects how deleted-but-visible text is marked.
type Style int

const (
	// Plain wraps ghost text in [- -].
	Plain Style = iota
	// ANSI uses the strike-through and faint SGR attributes.
	ANSI
)

const (
	ansiGhostOn  = "\x1b[9;2m"
	ansiGhostOff = "\x1b[29;22m"
	ansiClear    = "\x1b[H\x1b[2J"
)

// Text renders the frame's buffer with its pending deletions marked.
func Text(f playback.Frame, style Style) string {
	runes := []rune(f.Text)
	pending := make([]playback.PendingDeletion, len(f.Pending))
	copy(pending, f.Pending)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Start < pending[j].Start })

	var b strings.Builder
	pos := 0
	for _, d := range pending {
		start, end := d.Start, d.End()
		if start < pos {
			start = pos
		}
		if end > len(runes) {
			end = len(runes)
		}
		if start >= end {
			continue
		}
		b.WriteString(string(runes[pos:start]))
		openTag, closeTag := "[-", "-]"
		if style == ANSI {
			openTag, closeTag = ansiGhostOn, ansiGhostOff
		}
		b.WriteString(openTag)
		b.WriteString(string(runes[start:end]))
		b.WriteString(closeTag)
		pos = end
	}
	if pos < len(runes) {
		b.WriteString(string(runes[pos:]))
	}
	return b.String()
}

// Status is a one-line summary: revision progress, play state and whether
// a time skip is being shown.
func Status(f playback.Frame, total int) string {
	state := "paused"
	if f.Playing {
		state = "playing"
	}
	s := fmt.Sprintf("revision %d/%d  %s  %s", f.RevisionIndex, total, state, f.State)
	if f.TimeSkipping {
		s += "  >> time skip >>"
	}
	if n := len(f.Pending); n > 0 {
		s += fmt.Sprintf("  (%d pending deletions)", n)
	}
	return s
}

// Screen is a full-screen redraw: clear, status line, blank line, text.
func Screen(f playback.Frame, total int, style Style) string {
	var b strings.Builder
	if style == ANSI {
		b.WriteString(ansiClear)
	}
	b.WriteString(Status(f, total))
	b.WriteString("\n\n")
	b.WriteString(Text(f, style))
	b.WriteString("\n")
	return b.String()
}
