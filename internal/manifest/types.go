// Package manifest defines the Delta Manifest: a base text plus an ordered
// list of per-revision diff operations, and the helpers that load, save,
// build and replay it.
package manifest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// UnknownAuthor is the label used when a revision carries no author.
const UnknownAuthor = "Unknown"

// OpCode identifies the kind of a diff span. The numeric values follow the
// diff-match-patch wire convention.
type OpCode int

const (
	OpDelete OpCode = -1
	OpEqual  OpCode = 0
	OpInsert OpCode = 1
)

// Known reports whether c is one of EQUAL, INSERT or DELETE.
func (c OpCode) Known() bool {
	return c == OpDelete || c == OpEqual || c == OpInsert
}

func (c OpCode) String() string {
	switch c {
	case OpDelete:
		return "DELETE"
	case OpEqual:
		return "EQUAL"
	case OpInsert:
		return "INSERT"
	default:
		return "OP(" + strconv.Itoa(int(c)) + ")"
	}
}

// Op is one (opcode, text) span. On the wire it is a two element array,
// e.g. [1, " World"].
type Op struct {
	Code OpCode
	Text string
}

// MarshalJSON encodes the span as [code, text].
func (o Op) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]any{int(o.Code), o.Text}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes a [code, text] pair. Unknown codes are kept as-is;
// consumers decide whether to skip them.
func (o *Op) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return xerrors.Errorf("op must be a [code, text] pair: %w", err)
	}
	if len(pair) != 2 {
		return xerrors.Errorf("op must have 2 elements, got %d", len(pair))
	}
	var code int
	if err := json.Unmarshal(pair[0], &code); err != nil {
		return xerrors.Errorf("op code: %w", err)
	}
	var text string
	if err := json.Unmarshal(pair[1], &text); err != nil {
		return xerrors.Errorf("op text: %w", err)
	}
	o.Code = OpCode(code)
	o.Text = text
	return nil
}

// Timestamp is a revision time. It decodes from an RFC 3339 string or from
// integer epoch milliseconds, and encodes as RFC 3339 (UTC, millisecond
// precision). The zero value means "unknown".
type Timestamp struct {
	time.Time
}

// At wraps t as a Timestamp.
func At(t time.Time) Timestamp { return Timestamp{Time: t} }

// Millis builds a Timestamp from epoch milliseconds.
func Millis(ms int64) Timestamp { return Timestamp{Time: time.UnixMilli(ms).UTC()} }

// MarshalJSON writes the time as an RFC 3339 UTC string with millisecond
// precision, or null when the time is unknown.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// UnmarshalJSON accepts an RFC 3339 string, integer epoch milliseconds, null
// or an empty string. The last two leave the time unknown.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return xerrors.Errorf("timestamp %q: %w", str, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return xerrors.Errorf("timestamp %s: expected RFC 3339 string or epoch millis", s)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// Delta is one recorded revision expressed as diff spans against the
// previous revision's text.
type Delta struct {
	RevID     string    `json:"revId"`
	Timestamp Timestamp `json:"timestamp"`
	Author    string    `json:"author"`
	Ops       []Op      `json:"ops"`
}

// Manifest is the full input of a playback session. Deltas are in
// chronological order; nothing in this package reorders them.
type Manifest struct {
	FileID         string    `json:"fileId"`
	TotalRevisions int       `json:"totalRevisions,omitempty"`
	BaseText       string    `json:"baseText"`
	BaseTimestamp  Timestamp `json:"baseTimestamp,omitzero"`
	Deltas         []Delta   `json:"deltas"`
}

// applyDefaults fills absent fields the way the playback engine expects
// them: missing authors become UnknownAuthor and a nil delta list becomes
// empty. baseText already defaults to "" through JSON decoding.
func (m *Manifest) applyDefaults() {
	if m.Deltas == nil {
		m.Deltas = []Delta{}
	}
	for i := range m.Deltas {
		if strings.TrimSpace(m.Deltas[i].Author) == "" {
			m.Deltas[i].Author = UnknownAuthor
		}
	}
}
