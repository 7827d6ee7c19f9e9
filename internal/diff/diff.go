// Package diff computes the spans a manifest is made of. Chars produces
// rune-level EQUAL/INSERT/DELETE spans; Unified produces classic unified
// line patches for human inspection. Both use
// github.com/pmezard/go-difflib/difflib.
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"revision-replay/internal/manifest"
	"revision-replay/internal/textutil"
)

// Chars returns the rune-level spans that turn a into b. A replaced range
// is emitted as DELETE followed by INSERT; adjacent spans with the same
// opcode are merged. Short equalities wedged between edits are folded into
// the edits around them (see cleanupSemantic).
func Chars(a, b string) []manifest.Op {
	if a == b {
		if a == "" {
			return []manifest.Op{}
		}
		return []manifest.Op{{Code: manifest.OpEqual, Text: a}}
	}
	ra, rb := splitRunes(a), splitRunes(b)
	// autojunk off: with it, frequent characters such as spaces would be
	// treated as junk and the spans would get needlessly fragmented.
	m := difflib.NewMatcherWithJunk(ra, rb, false, nil)

	ops := make([]manifest.Op, 0, 8)
	for _, oc := range m.GetOpCodes() {
		switch oc.Tag {
		case 'e':
			ops = appendOp(ops, manifest.OpEqual, strings.Join(ra[oc.I1:oc.I2], ""))
		case 'd':
			ops = appendOp(ops, manifest.OpDelete, strings.Join(ra[oc.I1:oc.I2], ""))
		case 'i':
			ops = appendOp(ops, manifest.OpInsert, strings.Join(rb[oc.J1:oc.J2], ""))
		case 'r':
			ops = appendOp(ops, manifest.OpDelete, strings.Join(ra[oc.I1:oc.I2], ""))
			ops = appendOp(ops, manifest.OpInsert, strings.Join(rb[oc.J1:oc.J2], ""))
		}
	}
	return cleanupSemantic(ops)
}

// segment is either an equality or a group of adjacent edits.
type segment struct {
	edit     bool
	eq       string
	del, ins string
}

// cleanupSemantic folds an equality into the edit groups on both sides of it
// when it is no longer than the larger side of either group. Character
// matches such as the shared letters of two unrelated words then play back
// as one replacement instead of a scatter of tiny edits.
func cleanupSemantic(ops []manifest.Op) []manifest.Op {
	segs := make([]segment, 0, len(ops))
	for _, op := range ops {
		if op.Code == manifest.OpEqual {
			segs = append(segs, segment{eq: op.Text})
			continue
		}
		if n := len(segs); n == 0 || !segs[n-1].edit {
			segs = append(segs, segment{edit: true})
		}
		g := &segs[len(segs)-1]
		if op.Code == manifest.OpDelete {
			g.del += op.Text
		} else {
			g.ins += op.Text
		}
	}

	weight := func(g segment) int {
		return max(textutil.RuneLen(g.del), textutil.RuneLen(g.ins))
	}
	for i := 1; i < len(segs)-1; {
		prev, eq, next := segs[i-1], segs[i], segs[i+1]
		if eq.edit || !prev.edit || !next.edit {
			i++
			continue
		}
		l := textutil.RuneLen(eq.eq)
		if l > weight(prev) || l > weight(next) {
			i++
			continue
		}
		segs[i-1] = segment{
			edit: true,
			del:  prev.del + eq.eq + next.del,
			ins:  prev.ins + eq.eq + next.ins,
		}
		segs = append(segs[:i], segs[i+2:]...)
		// the grown group may now swallow the equality before it
		if i > 1 {
			i -= 2
		}
		i = max(i, 1)
	}

	out := make([]manifest.Op, 0, len(ops))
	for _, g := range segs {
		if !g.edit {
			out = appendOp(out, manifest.OpEqual, g.eq)
			continue
		}
		out = appendOp(out, manifest.OpDelete, g.del)
		out = appendOp(out, manifest.OpInsert, g.ins)
	}
	return out
}

func appendOp(ops []manifest.Op, code manifest.OpCode, text string) []manifest.Op {
	if text == "" {
		return ops
	}
	if n := len(ops); n > 0 && ops[n-1].Code == code {
		ops[n-1].Text += text
		return ops
	}
	return append(ops, manifest.Op{Code: code, Text: text})
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Options controls patch generation behavior.
type Options struct {
	// MaxBytes is a guardrail on input size (old+new). When exceeded,
	// a minimal placeholder patch is returned and oversize=true.
	// 0 means "no limit".
	MaxBytes int

	// Context controls the number of CONTEXT LINES in unified hunks.
	// If 0, default to 3.
	Context int
}

// Unified produces a classic unified patch for a↦b.
// Returns the patch body and a flag indicating it was omitted due to size.
func Unified(aName, bName, a, b string, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && (len(a)+len(b)) > opt.MaxBytes {
		return omitted(aName, bName), true
	}
	if a == b {
		return "", false
	}

	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}

	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(a),
		B:        splitLinesKeepNL(b),
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return omitted(aName, bName), false
	}
	return s, false
}

// splitLinesKeepNL splits into lines and keeps newline characters,
// which produces better unified hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}

// omitted returns a compact placeholder when size limits are exceeded.
func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
