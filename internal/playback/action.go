package playback

import (
	"revision-replay/internal/manifest"
	"revision-replay/internal/textutil"
)

// ActionType is the kind of an atomic playback step.
type ActionType int

const (
	ActionInsert ActionType = iota
	ActionDelete
)

func (t ActionType) String() string {
	if t == ActionInsert {
		return "insert"
	}
	return "delete"
}

// Action is one independently timed step. LogicalIndex is expressed in the
// coordinate space the diff was computed in, which knows nothing about
// deleted text still lingering on screen. Payload is a single character for
// an insert and the whole span for a delete.
type Action struct {
	Type         ActionType
	LogicalIndex int
	Payload      string
}

// Flatten expands one revision's spans into ordered actions. The logical
// cursor advances over EQUAL and INSERT text and stays put on DELETE, since
// deleted text no longer exists going forward. Spans with an unrecognised
// opcode, and empty spans, produce nothing.
func Flatten(ops []manifest.Op) []Action {
	actions := make([]Action, 0, len(ops))
	cursor := 0
	for _, op := range ops {
		switch op.Code {
		case manifest.OpEqual:
			cursor += textutil.RuneLen(op.Text)
		case manifest.OpInsert:
			for _, r := range op.Text {
				actions = append(actions, Action{Type: ActionInsert, LogicalIndex: cursor, Payload: string(r)})
				cursor++
			}
		case manifest.OpDelete:
			if op.Text == "" {
				continue
			}
			actions = append(actions, Action{Type: ActionDelete, LogicalIndex: cursor, Payload: op.Text})
		}
	}
	return actions
}

// countUnknown reports how many spans Flatten skipped for their opcode.
func countUnknown(ops []manifest.Op) int {
	n := 0
	for _, op := range ops {
		if !op.Code.Known() {
			n++
		}
	}
	return n
}
