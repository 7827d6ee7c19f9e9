package playback

// Buffer is the visual text: live characters interleaved with deleted spans
// that are still lingering. Positions are rune offsets. Out-of-range
// positions are clamped; the returned flag reports whether clamping was
// needed so the caller can log it.
type Buffer struct {
	runes []rune
}

// NewBuffer returns a buffer holding s.
func NewBuffer(s string) *Buffer {
	return &Buffer{runes: []rune(s)}
}

// Reset replaces the whole content with s.
func (b *Buffer) Reset(s string) {
	b.runes = []rune(s)
}

// Len is the number of runes in the buffer.
func (b *Buffer) Len() int { return len(b.runes) }

// String returns a copy of the content.
func (b *Buffer) String() string { return string(b.runes) }

// Insert splices s in before position at.
func (b *Buffer) Insert(at int, s string) (clamped bool) {
	ins := []rune(s)
	if len(ins) == 0 {
		return false
	}
	at, clamped = clamp(at, len(b.runes))
	b.runes = append(b.runes, ins...)
	copy(b.runes[at+len(ins):], b.runes[at:len(b.runes)-len(ins)])
	copy(b.runes[at:], ins)
	return clamped
}

// Delete removes length runes starting at start.
func (b *Buffer) Delete(start, length int) (clamped bool) {
	if length <= 0 {
		return false
	}
	start, c1 := clamp(start, len(b.runes))
	end, c2 := clamp(start+length, len(b.runes))
	b.runes = append(b.runes[:start], b.runes[end:]...)
	return c1 || c2
}

// Slice returns the runes in [start, start+length) as a string, clamped.
func (b *Buffer) Slice(start, length int) string {
	start, _ = clamp(start, len(b.runes))
	end, _ := clamp(start+length, len(b.runes))
	return string(b.runes[start:end])
}

func clamp(i, n int) (int, bool) {
	switch {
	case i < 0:
		return 0, true
	case i > n:
		return n, true
	default:
		return i, false
	}
}
