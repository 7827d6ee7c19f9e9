package textutil

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// NormalizeUTF8LF converts CRLF to LF and ensures the output is valid UTF-8
// by replacing invalid byte sequences with the Unicode replacement character.
func NormalizeUTF8LF(b []byte) []byte {
	// Normalize newlines first
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	b = bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
	return bytes.ToValidUTF8(b, []byte("\uFFFD"))
}

// RuneLen is the length of s in code points, the unit every playback index
// is expressed in.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Abbrev shortens s to at most max runes for one-line display, replacing
// newlines with a visible marker and appending "..." when cut.
func Abbrev(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	if max <= 0 || RuneLen(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}
