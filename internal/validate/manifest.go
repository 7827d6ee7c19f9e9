// Package validate checks a Delta Manifest before it is played. The engine
// itself trusts its input; this is where malformed manifests get caught.
//
// All issues are aggregated into a single error for better UX.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"revision-replay/internal/manifest"
)

// Manifest validates structural and semantic constraints:
//
//   - Every delta has a non-empty, unique revId.
//   - Timestamps never go backwards (unknown timestamps are skipped), and
//     the base timestamp, if present, is not after the first delta.
//   - totalRevisions, if present, equals len(deltas)+1.
//   - Every op uses a known opcode and carries text.
//   - Applying the ops in order reproduces a consistent chain of texts:
//     EQUAL and DELETE spans match the previous revision exactly.
//
// The function returns nil if everything looks fine, or a single aggregated
// error describing all the issues found.
func Manifest(m *manifest.Manifest) error {
	if m == nil {
		return errors.New("manifest is nil")
	}
	var errs errlist

	if m.TotalRevisions != 0 && m.TotalRevisions != len(m.Deltas)+1 {
		errs.add("totalRevisions is %d but there are %d deltas (expected %d)", m.TotalRevisions, len(m.Deltas), len(m.Deltas)+1)
	}

	seen := make(map[string]int, len(m.Deltas))
	prev := m.BaseTimestamp
	prevName := "baseTimestamp"
	for i, d := range m.Deltas {
		prefix := fmt.Sprintf("deltas[%d] (%s)", i, d.RevID)

		if strings.TrimSpace(d.RevID) == "" {
			errs.add("%s: revId must be non-empty", prefix)
		} else if j, dup := seen[d.RevID]; dup {
			errs.add("%s: duplicate revId, first seen at deltas[%d]", prefix, j)
		} else {
			seen[d.RevID] = i
		}

		if !d.Timestamp.IsZero() {
			if !prev.IsZero() && d.Timestamp.Before(prev.Time) {
				errs.add("%s: timestamp %s is before %s %s", prefix, d.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), prevName, prev.Format("2006-01-02T15:04:05.000Z07:00"))
			}
			prev = d.Timestamp
			prevName = fmt.Sprintf("deltas[%d]", i)
		}

		for j, op := range d.Ops {
			if !op.Code.Known() {
				errs.add("%s.ops[%d]: unknown opcode %d", prefix, j, int(op.Code))
			}
			if op.Text == "" {
				errs.add("%s.ops[%d]: empty %s span", prefix, j, op.Code)
			}
		}
	}

	cur := m.BaseText
	for i, d := range m.Deltas {
		next, err := manifest.Apply(cur, d.Ops)
		if err != nil {
			errs.add("deltas[%d] (%s): %v", i, d.RevID, err)
			// Later deltas are relative to a text we can no longer trust.
			break
		}
		cur = next
	}

	return errs.err()
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	// Join with newline for readability.
	return errors.New(strings.Join(e.msgs, "\n"))
}
