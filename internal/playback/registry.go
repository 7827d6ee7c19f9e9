package playback

import (
	"time"

	"golang.org/x/exp/slices"
)

// PendingDeletion is a span that has been deleted logically but is still
// shown (e.g. struck through) until Expiry. Start is the current offset of
// the span in the Buffer and moves as text is inserted or removed before it.
type PendingDeletion struct {
	Start  int
	Length int
	Text   string
	Expiry time.Time

	// seq is the registration order, used to break ties between entries
	// with the same Start.
	seq uint64
}

// End is the offset just past the span.
func (d PendingDeletion) End() int { return d.Start + d.Length }

// Registry holds the lingering deletions. It is owned by the Scheduler and
// not safe for concurrent use.
type Registry struct {
	entries []PendingDeletion
	nextSeq uint64
}

// Register records a new lingering span. The text stays in the Buffer until
// the entry is swept.
func (r *Registry) Register(start, length int, text string, expiry time.Time) {
	r.entries = append(r.entries, PendingDeletion{
		Start:  start,
		Length: length,
		Text:   text,
		Expiry: expiry,
		seq:    r.nextSeq,
	})
	r.nextSeq++
}

// ShiftForInsertion moves every entry starting at or after visualIndex one
// position to the right, after a character has been inserted there.
func (r *Registry) ShiftForInsertion(visualIndex int) {
	for i := range r.entries {
		if r.entries[i].Start >= visualIndex {
			r.entries[i].Start++
		}
	}
}

// Sweep removes every entry whose expiry is not after now. Entries are
// processed from the highest Start down (ties: latest registration first).
// For each one, remove is called to cut the span out of the Buffer, and the
// remaining entries that start strictly after it are shifted left by its
// length. The swept entries are returned in processing order.
func (r *Registry) Sweep(now time.Time, remove func(start, length int)) []PendingDeletion {
	var expired []PendingDeletion
	for _, d := range r.entries {
		if !d.Expiry.After(now) {
			expired = append(expired, d)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	slices.SortStableFunc(expired, func(a, b PendingDeletion) int {
		if a.Start != b.Start {
			return b.Start - a.Start
		}
		return cmpSeq(b.seq, a.seq)
	})

	swept := make([]PendingDeletion, 0, len(expired))
	for _, e := range expired {
		i := r.indexOf(e.seq)
		if i < 0 {
			continue
		}
		d := r.entries[i]
		remove(d.Start, d.Length)
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
		for j := range r.entries {
			if r.entries[j].Start > d.Start {
				r.entries[j].Start -= d.Length
			}
		}
		swept = append(swept, d)
	}
	return swept
}

func (r *Registry) indexOf(seq uint64) int {
	for i := range r.entries {
		if r.entries[i].seq == seq {
			return i
		}
	}
	return -1
}

// Len is the number of lingering spans.
func (r *Registry) Len() int { return len(r.entries) }

// Clear drops every entry.
func (r *Registry) Clear() {
	r.entries = nil
}

// Pending returns a copy of the entries in registration order.
func (r *Registry) Pending() []PendingDeletion {
	out := make([]PendingDeletion, len(r.entries))
	copy(out, r.entries)
	return out
}

// ToVisualIndex maps a logical position onto the Buffer using the current
// entries.
func (r *Registry) ToVisualIndex(logical int) int {
	return ToVisualIndex(logical, r.entries)
}

// ToVisualIndex translates a logical position (as if no deleted text were
// lingering) into a position in the rendered Buffer. Entries are visited by
// ascending Start, ties in registration order; every entry that starts at
// or before the running visual position pushes it right by its length, so
// the result skips over lingering text and is never less than logical.
func ToVisualIndex(logical int, pending []PendingDeletion) int {
	if len(pending) == 0 {
		return logical
	}
	sorted := make([]PendingDeletion, len(pending))
	copy(sorted, pending)
	slices.SortStableFunc(sorted, func(a, b PendingDeletion) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return cmpSeq(a.seq, b.seq)
	})
	visual := logical
	for _, d := range sorted {
		if d.Start <= visual {
			visual += d.Length
		}
	}
	return visual
}

func cmpSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
