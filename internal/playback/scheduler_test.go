package playback

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"revision-replay/internal/diff"
	"revision-replay/internal/manifest"
)

type timedFrame struct {
	at time.Time
	Frame
}

type harness struct {
	clock  *ManualClock
	sched  *Scheduler
	frames []timedFrame
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{clock: NewManualClock(t0)}
	h.sched = NewScheduler(h.clock,
		WithOptions(opts),
		WithObserver(func(f Frame) {
			h.frames = append(h.frames, timedFrame{at: h.clock.Now(), Frame: f})
		}),
	)
	return h
}

func (h *harness) last() Frame { return h.frames[len(h.frames)-1].Frame }

// manifestOf diffs consecutive texts into a manifest with revisions one
// second apart.
func manifestOf(texts ...string) *manifest.Manifest {
	const base = 1_700_000_000_000
	m := &manifest.Manifest{
		FileID:         "doc",
		TotalRevisions: len(texts),
		BaseText:       texts[0],
		BaseTimestamp:  manifest.Millis(base),
		Deltas:         []manifest.Delta{},
	}
	for i := 1; i < len(texts); i++ {
		m.Deltas = append(m.Deltas, manifest.Delta{
			RevID:     fmt.Sprintf("r%d", i),
			Timestamp: manifest.Millis(base + int64(i)*1000),
			Author:    "tester",
			Ops:       diff.Chars(texts[i-1], texts[i]),
		})
	}
	return m
}

// requireConsistentFrames checks that lingering spans always lie inside the
// text, hold the text they cover and never overlap.
func requireConsistentFrames(t *testing.T, frames []timedFrame) {
	t.Helper()
	for _, tf := range frames {
		runes := []rune(tf.Text)
		covered := make([]bool, len(runes))
		for _, p := range tf.Pending {
			require.GreaterOrEqual(t, p.Start, 0)
			require.LessOrEqual(t, p.End(), len(runes), "pending %+v in %q", p, tf.Text)
			require.Equal(t, p.Text, string(runes[p.Start:p.End()]))
			for i := p.Start; i < p.End(); i++ {
				require.False(t, covered[i], "overlapping lingering spans in %q", tf.Text)
				covered[i] = true
			}
		}
		for i := range runes {
			require.GreaterOrEqual(t, ToVisualIndex(i, tf.Pending), i)
		}
	}
}

// playToEnd runs m to completion and checks the result against the text
// the manifest describes.
func playToEnd(t *testing.T, m *manifest.Manifest, opts Options) *harness {
	t.Helper()
	want, err := manifest.FinalText(m)
	require.NoError(t, err)

	h := newHarness(t, opts)
	h.sched.SetManifest(m)
	h.sched.Play()
	h.clock.Run(10*time.Millisecond, 1_000_000)

	require.False(t, h.clock.Armed())
	f := h.sched.Snapshot()
	require.Equal(t, want, f.Text)
	require.Empty(t, f.Pending)
	requireConsistentFrames(t, h.frames)
	return h
}

func TestSchedulerConvergesToFinalText(t *testing.T) {
	texts := []string{
		"Hello world",
		"Hello brave new world",
		"Hello new world!",
		"Say hello to the new world!",
		"",
		"fresh start",
		"fresh start ✓ ünïcode",
		"start ✓ code, fresh",
	}
	h := newHarness(t, DefaultOptions())
	h.sched.SetManifest(manifestOf(texts...))
	h.sched.Play()

	h.clock.Run(5*time.Millisecond, 100_000)

	require.False(t, h.clock.Armed())
	f := h.sched.Snapshot()
	require.Equal(t, texts[len(texts)-1], f.Text)
	require.Empty(t, f.Pending)
	require.False(t, f.Playing)
	require.Equal(t, StateIdle, f.State)
	require.Equal(t, len(texts)-1, f.RevisionIndex)

	requireConsistentFrames(t, h.frames)
}

func TestSchedulerDeletedTextLingers(t *testing.T) {
	h := newHarness(t, Options{
		CharDuration:      20 * time.Millisecond,
		DeletionLinger:    300 * time.Millisecond,
		TimeSkipThreshold: time.Hour,
		TimeSkipDisplay:   time.Second,
	})
	h.sched.SetManifest(manifestOf("abc", "ac"))
	h.sched.Play()

	h.clock.Run(10*time.Millisecond, 1000)

	var registered, removed time.Time
	removals := 0
	for i, tf := range h.frames {
		if registered.IsZero() && len(tf.Pending) == 1 {
			registered = tf.at
			require.Equal(t, "b", tf.Pending[0].Text)
			require.Equal(t, "abc", tf.Text)
		}
		if i > 0 && tf.Text == "ac" && h.frames[i-1].Text == "abc" {
			removed = tf.at
			removals++
		}
	}
	require.False(t, registered.IsZero())
	require.Equal(t, 1, removals)
	require.GreaterOrEqual(t, removed.Sub(registered), 300*time.Millisecond)
	require.Less(t, removed.Sub(registered), 320*time.Millisecond)

	require.Equal(t, "ac", h.last().Text)
	require.False(t, h.last().Playing)
}

func TestSchedulerDeleteAcrossLingeringText(t *testing.T) {
	m := &manifest.Manifest{
		FileID:   "doc",
		BaseText: "abcdef",
		Deltas: []manifest.Delta{
			{RevID: "1", Ops: []manifest.Op{
				{Code: manifest.OpEqual, Text: "ab"},
				{Code: manifest.OpDelete, Text: "cd"},
				{Code: manifest.OpEqual, Text: "ef"},
			}},
			{RevID: "2", Ops: []manifest.Op{
				{Code: manifest.OpDelete, Text: "abe"},
				{Code: manifest.OpEqual, Text: "f"},
			}},
		},
	}
	h := newHarness(t, DefaultOptions())
	h.sched.SetManifest(m)
	h.sched.Play()

	h.clock.Run(10*time.Millisecond, 1000)

	found := false
	for _, tf := range h.frames {
		if len(tf.Pending) != 3 {
			continue
		}
		found = true
		require.Equal(t, "abcdef", tf.Text)
		var texts []string
		for _, p := range tf.Pending {
			texts = append(texts, p.Text)
		}
		require.ElementsMatch(t, []string{"cd", "ab", "e"}, texts)
		break
	}
	require.True(t, found)
	require.Equal(t, "f", h.sched.Snapshot().Text)
}

func TestSchedulerTimeSkip(t *testing.T) {
	m := &manifest.Manifest{
		FileID:        "doc",
		BaseText:      "a",
		BaseTimestamp: manifest.Millis(1_000_000),
		Deltas: []manifest.Delta{
			{RevID: "1", Timestamp: manifest.Millis(1_000_500), Ops: []manifest.Op{
				{Code: manifest.OpEqual, Text: "a"},
				{Code: manifest.OpInsert, Text: "b"},
			}},
			{RevID: "2", Timestamp: manifest.Millis(1_000_500 + 3_600_001), Ops: []manifest.Op{
				{Code: manifest.OpEqual, Text: "ab"},
				{Code: manifest.OpInsert, Text: "c"},
			}},
		},
	}
	h := newHarness(t, DefaultOptions())
	h.sched.SetManifest(m)
	h.sched.Play()

	h.clock.Run(20*time.Millisecond, 1000)

	var skipStart, nextRev time.Time
	skips := 0
	for _, tf := range h.frames {
		if tf.TimeSkipping {
			skips++
			skipStart = tf.at
			require.Equal(t, StateTimeSkipWaiting, tf.State)
			require.Equal(t, "ab", tf.Text)
			require.Equal(t, 1, tf.RevisionIndex)
		}
		if nextRev.IsZero() && tf.RevisionIndex == 2 {
			nextRev = tf.at
		}
		if !nextRev.IsZero() {
			continue
		}
		require.Contains(t, []string{"a", "ab"}, tf.Text)
	}
	require.Equal(t, 1, skips)
	require.GreaterOrEqual(t, nextRev.Sub(skipStart), time.Second)
	require.Equal(t, "abc", h.last().Text)
	require.Equal(t, StateIdle, h.last().State)
}

func TestSchedulerTimeSkipBeforeFirstRevision(t *testing.T) {
	m := &manifest.Manifest{
		FileID:        "doc",
		BaseText:      "x",
		BaseTimestamp: manifest.Millis(0),
		Deltas: []manifest.Delta{
			{RevID: "1", Timestamp: manifest.At(time.UnixMilli(0).Add(2 * time.Hour)), Ops: []manifest.Op{
				{Code: manifest.OpEqual, Text: "x"},
				{Code: manifest.OpInsert, Text: "y"},
			}},
		},
	}
	h := newHarness(t, DefaultOptions())
	h.sched.SetManifest(m)
	h.sched.Play()

	require.True(t, h.clock.Step(16*time.Millisecond))
	require.True(t, h.last().TimeSkipping)
	require.Equal(t, 0, h.last().RevisionIndex)

	h.clock.Run(16*time.Millisecond, 1000)
	require.Equal(t, "xy", h.sched.Snapshot().Text)
}

func TestSchedulerZeroDeltas(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.sched.SetManifest(&manifest.Manifest{FileID: "doc", BaseText: "Hello", Deltas: []manifest.Delta{}})
	h.sched.Play()

	h.clock.Run(16*time.Millisecond, 10)

	f := h.sched.Snapshot()
	require.Equal(t, "Hello", f.Text)
	require.Equal(t, 0, f.RevisionIndex)
	require.False(t, f.Playing)
	require.Equal(t, StateIdle, f.State)
	require.False(t, h.clock.Armed())
	for _, tf := range h.frames {
		require.NotEqual(t, StateDraining, tf.State)
	}
}

func TestSchedulerSetManifestResets(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.sched.SetManifest(manifestOf("abcdef", "defghi"))
	h.sched.Play()

	for i := 0; i < 100 && len(h.sched.Snapshot().Pending) == 0; i++ {
		h.clock.Step(10 * time.Millisecond)
	}
	require.NotEmpty(t, h.sched.Snapshot().Pending)

	h.sched.SetManifest(manifestOf("xyz", "xyz!"))

	f := h.sched.Snapshot()
	require.Equal(t, "xyz", f.Text)
	require.Empty(t, f.Pending)
	require.Equal(t, 0, f.RevisionIndex)
	require.True(t, f.Playing)
	require.Equal(t, StateLoading, f.State)

	h.clock.Run(10*time.Millisecond, 1000)
	require.Equal(t, "xyz!", h.sched.Snapshot().Text)
}

func TestSchedulerSetManifestNil(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.sched.SetManifest(manifestOf("abc", "abcd"))
	h.sched.SetManifest(nil)

	f := h.sched.Snapshot()
	require.Equal(t, "", f.Text)
	require.Equal(t, StateIdle, f.State)

	h.sched.Play()
	require.False(t, h.clock.Armed())
}

func TestSchedulerPauseResume(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.sched.SetManifest(manifestOf("", "hello"))
	h.sched.Play()

	h.clock.Step(16 * time.Millisecond)
	h.clock.Step(40 * time.Millisecond)
	require.Equal(t, "he", h.sched.Snapshot().Text)

	h.sched.Pause()
	require.False(t, h.clock.Armed())
	require.False(t, h.sched.Snapshot().Playing)
	require.False(t, h.clock.Step(time.Hour))
	require.Equal(t, "he", h.sched.Snapshot().Text)

	h.sched.Play()
	require.True(t, h.clock.Armed())
	// the paused hour is not replayed as a burst
	h.clock.Step(time.Hour)
	require.Equal(t, "he", h.sched.Snapshot().Text)

	h.clock.Run(20*time.Millisecond, 1000)
	require.Equal(t, "hello", h.sched.Snapshot().Text)
	require.False(t, h.sched.Snapshot().Playing)
}

func TestSchedulerBackwardsTick(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.sched.SetManifest(manifestOf("", "xy"))
	h.sched.Play()

	h.sched.Tick(t0)
	h.sched.Tick(t0.Add(-time.Second))
	require.Equal(t, "", h.sched.Snapshot().Text)

	h.sched.Tick(t0.Add(19 * time.Millisecond))
	require.Equal(t, "", h.sched.Snapshot().Text)

	h.sched.Tick(t0.Add(20 * time.Millisecond))
	require.Equal(t, "x", h.sched.Snapshot().Text)
}

func TestSchedulerPlayWithoutManifest(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.sched.Play()

	require.False(t, h.clock.Armed())
	require.False(t, h.sched.Snapshot().Playing)
	require.Empty(t, h.frames)
}

func TestSchedulerSeekUnsupported(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.sched.SetManifest(manifestOf("ab", "abc", "abcd"))
	h.sched.Play()
	h.clock.Step(16 * time.Millisecond)
	before := h.sched.Snapshot()

	err := h.sched.Seek(2)

	require.ErrorIs(t, err, ErrSeekUnsupported)
	require.Equal(t, before, h.sched.Snapshot())
}

func TestSchedulerSessionId(t *testing.T) {
	a := NewScheduler(NewManualClock(t0))
	b := NewScheduler(NewManualClock(t0))
	require.NotEmpty(t, a.Session())
	require.NotEqual(t, a.Session(), b.Session())
}

func TestSchedulerDeleteAcrossSeveralLingeringSpans(t *testing.T) {
	m := &manifest.Manifest{
		FileID:   "doc",
		BaseText: "a1b2c",
		Deltas: []manifest.Delta{
			{RevID: "1", Ops: []manifest.Op{
				{Code: manifest.OpEqual, Text: "a"},
				{Code: manifest.OpDelete, Text: "1"},
				{Code: manifest.OpEqual, Text: "b"},
				{Code: manifest.OpDelete, Text: "2"},
				{Code: manifest.OpEqual, Text: "c"},
			}},
			{RevID: "2", Ops: []manifest.Op{
				{Code: manifest.OpDelete, Text: "abc"},
			}},
		},
	}

	h := playToEnd(t, m, DefaultOptions())

	found := false
	for _, tf := range h.frames {
		if len(tf.Pending) != 5 {
			continue
		}
		found = true
		require.Equal(t, "a1b2c", tf.Text)
		starts := map[int]string{}
		for _, p := range tf.Pending {
			starts[p.Start] = p.Text
		}
		require.Equal(t, map[int]string{0: "a", 1: "1", 2: "b", 3: "2", 4: "c"}, starts)
		break
	}
	require.True(t, found)
	require.Equal(t, "", h.sched.Snapshot().Text)
}

// randomRevisions returns n+1 texts, each derived from the previous one by a
// few random deletes and inserts.
func randomRevisions(rng *rand.Rand, n int) []string {
	alphabet := []rune("abcdé ✓xyz")
	randomText := func(l int) string {
		var b strings.Builder
		for i := 0; i < l; i++ {
			b.WriteRune(alphabet[rng.Intn(len(alphabet))])
		}
		return b.String()
	}

	texts := []string{randomText(5 + rng.Intn(20))}
	for i := 0; i < n; i++ {
		cur := []rune(texts[len(texts)-1])
		for e := 0; e < 1+rng.Intn(4); e++ {
			if len(cur) > 0 && rng.Intn(3) > 0 {
				at := rng.Intn(len(cur))
				l := 1 + rng.Intn(min(4, len(cur)-at))
				cur = append(cur[:at:at], cur[at+l:]...)
				continue
			}
			at := rng.Intn(len(cur) + 1)
			ins := []rune(randomText(1 + rng.Intn(3)))
			cur = append(cur[:at:at], append(ins, cur[at:]...)...)
		}
		texts = append(texts, string(cur))
	}
	return texts
}

func TestSchedulerConvergesOnRandomRevisions(t *testing.T) {
	opts := DefaultOptions()
	// long enough for deletions of several revisions to linger together
	opts.DeletionLinger = 2 * time.Second

	for seed := int64(1); seed <= 40; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			playToEnd(t, manifestOf(randomRevisions(rng, 2+rng.Intn(8))...), opts)
		})
	}
}
