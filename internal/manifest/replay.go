package manifest

import (
	"strings"

	"golang.org/x/xerrors"
)

// Apply reconstructs the text that results from applying ops to prev.
// EQUAL and DELETE spans must match prev at the running offset; unknown
// opcodes are skipped the same way the playback engine skips them.
func Apply(prev string, ops []Op) (string, error) {
	src := []rune(prev)
	var out strings.Builder
	out.Grow(len(prev))
	pos := 0
	for i, op := range ops {
		switch op.Code {
		case OpEqual, OpDelete:
			span := []rune(op.Text)
			end := pos + len(span)
			if end > len(src) || string(src[pos:end]) != op.Text {
				return "", xerrors.Errorf("ops[%d] %s %q does not match source at rune %d", i, op.Code, op.Text, pos)
			}
			if op.Code == OpEqual {
				out.WriteString(op.Text)
			}
			pos = end
		case OpInsert:
			out.WriteString(op.Text)
		}
	}
	if pos != len(src) {
		return "", xerrors.Errorf("ops cover %d of %d source runes", pos, len(src))
	}
	return out.String(), nil
}

// Replay returns the text of every revision in m: index 0 is the base text
// and index i is the text after deltas[i-1].
func Replay(m *Manifest) ([]string, error) {
	if m == nil {
		return nil, xerrors.New("nil manifest")
	}
	texts := make([]string, 0, len(m.Deltas)+1)
	texts = append(texts, m.BaseText)
	cur := m.BaseText
	for i, d := range m.Deltas {
		next, err := Apply(cur, d.Ops)
		if err != nil {
			return nil, xerrors.Errorf("delta %d (%s): %w", i, d.RevID, err)
		}
		texts = append(texts, next)
		cur = next
	}
	return texts, nil
}

// FinalText is the text of the last revision in m.
func FinalText(m *Manifest) (string, error) {
	texts, err := Replay(m)
	if err != nil {
		return "", err
	}
	return texts[len(texts)-1], nil
}
