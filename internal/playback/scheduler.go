// Package playback replays a Delta Manifest as an animation: characters are
// typed in one at a time, deleted spans linger on screen as "ghosts" before
// disappearing, and long real-world pauses between revisions are compressed
// into a short on-screen pause.
package playback

import (
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"revision-replay/internal/manifest"
)

// ErrSeekUnsupported is returned by Seek. Playback can only move forward.
var ErrSeekUnsupported = xerrors.New("seeking is not supported")

// Default tuning values.
const (
	DefaultCharDuration      = 20 * time.Millisecond
	DefaultDeletionLinger    = 300 * time.Millisecond
	DefaultTimeSkipThreshold = time.Hour
	DefaultTimeSkipDisplay   = time.Second
)

// Options tunes the pace of playback.
type Options struct {
	// CharDuration is the time budget of one action.
	CharDuration time.Duration
	// DeletionLinger is how long deleted text stays visible.
	DeletionLinger time.Duration
	// TimeSkipThreshold is the real-world gap between two revisions above
	// which playback shows a time skip instead of running on.
	TimeSkipThreshold time.Duration
	// TimeSkipDisplay is how long a time skip is shown.
	TimeSkipDisplay time.Duration
}

// DefaultOptions returns the standard pacing.
func DefaultOptions() Options {
	return Options{
		CharDuration:      DefaultCharDuration,
		DeletionLinger:    DefaultDeletionLinger,
		TimeSkipThreshold: DefaultTimeSkipThreshold,
		TimeSkipDisplay:   DefaultTimeSkipDisplay,
	}
}

// State is the scheduler's phase.
type State int

const (
	// StateIdle: no manifest, or playback has finished.
	StateIdle State = iota
	// StateLoading: the action queue is empty and a revision is due.
	StateLoading
	// StateTimeSkipWaiting: a long gap is being shown as a short pause.
	StateTimeSkipWaiting
	// StateDraining: queued actions are being applied. Also covers the
	// tail after the last revision while lingering deletions expire.
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateTimeSkipWaiting:
		return "time-skip"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Frame is an immutable snapshot of the observable playback state.
type Frame struct {
	Text          string
	RevisionIndex int
	Playing       bool
	Pending       []PendingDeletion
	TimeSkipping  bool
	State         State
}

// Observer receives a Frame after every change. It runs on the tick
// executor with the scheduler locked and must not call back into the
// Scheduler.
type Observer func(Frame)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithOptions sets the pacing.
func WithOptions(o Options) Option {
	return func(s *Scheduler) { s.opts = o }
}

// WithObserver sets the publish callback.
func WithObserver(fn Observer) Option {
	return func(s *Scheduler) { s.observer = fn }
}

// WithLogger sets the logger; a session id is attached to it.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler is the real-time driver. It exclusively owns the Buffer and the
// Registry. Every entry point takes the same lock, so ticks delivered from
// timer goroutines and control calls from the host never interleave.
type Scheduler struct {
	mu       sync.Mutex
	clock    TickSource
	opts     Options
	observer Observer
	log      zerolog.Logger
	session  string

	manifest *manifest.Manifest
	buffer   *Buffer
	registry *Registry
	queue    []Action

	// next is the index of the next delta to load, which is also the number
	// of revisions loaded so far.
	next       int
	skippedFor int
	skipUntil  time.Time

	playing     bool
	state       State
	lastTick    time.Time
	accumulator time.Duration
}

// NewScheduler returns an idle scheduler with no manifest.
func NewScheduler(clock TickSource, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:      clock,
		opts:       DefaultOptions(),
		log:        zerolog.Nop(),
		session:    xid.New().String(),
		buffer:     NewBuffer(""),
		registry:   &Registry{},
		skippedFor: -1,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("session", s.session).Logger()
	return s
}

// Session is the id attached to this scheduler's log lines.
func (s *Scheduler) Session() string { return s.session }

// SetManifest replaces the manifest and resets every piece of playback
// state: the buffer shows the new base text, the registry and the queue are
// emptied and the revision index returns to 0. A nil manifest leaves the
// scheduler idle with empty text. Whether playback is running is unchanged.
func (s *Scheduler) SetManifest(m *manifest.Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manifest = m
	s.registry.Clear()
	s.queue = nil
	s.next = 0
	s.skippedFor = -1
	s.skipUntil = time.Time{}
	s.accumulator = 0
	s.lastTick = time.Time{}
	if m == nil {
		s.buffer.Reset("")
		s.state = StateIdle
		s.log.Debug().Msg("manifest cleared")
	} else {
		s.buffer.Reset(m.BaseText)
		s.state = StateLoading
		s.log.Debug().Str("file", m.FileID).Int("deltas", len(m.Deltas)).Msg("manifest loaded")
	}
	s.publish()
	if s.playing && m != nil {
		s.clock.RequestTick(s.Tick)
	}
}

// Play starts or resumes playback. Without a manifest it does nothing.
func (s *Scheduler) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		return
	}
	if s.manifest == nil {
		s.log.Debug().Msg("play ignored: no manifest")
		return
	}
	s.playing = true
	// The first tick after resuming measures no elapsed time, so a pause
	// never turns into a burst of queued actions.
	s.lastTick = time.Time{}
	s.log.Info().Int("revision", s.next).Msg("playback started")
	s.publish()
	s.clock.RequestTick(s.Tick)
}

// Pause stops requesting ticks. All internal state is kept and playback
// resumes where it left off.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.playing = false
	s.clock.Cancel()
	s.log.Info().Int("revision", s.next).Msg("playback paused")
	s.publish()
}

// Seek is not supported: it logs a warning, leaves the state untouched and
// returns ErrSeekUnsupported.
func (s *Scheduler) Seek(index int) error {
	s.log.Warn().Int("index", index).Msg("seek requested but not supported")
	return xerrors.Errorf("seek to revision %d: %w", index, ErrSeekUnsupported)
}

// Snapshot returns the current observable state.
func (s *Scheduler) Snapshot() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame()
}

// Tick advances playback to now. It is the callback handed to the
// TickSource and can also be called directly by a host that owns its loop.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick(now)
}

func (s *Scheduler) tick(now time.Time) {
	if !s.playing || s.manifest == nil {
		return
	}

	if s.lastTick.IsZero() {
		s.lastTick = now
	}
	// A timestamp from the past counts as no progress and does not move the
	// reference point back.
	var elapsed time.Duration
	if now.After(s.lastTick) {
		elapsed = now.Sub(s.lastTick)
		s.lastTick = now
	}

	// 1-2. time skip wait
	if !s.skipUntil.IsZero() {
		if now.Before(s.skipUntil) {
			s.clock.RequestTick(s.Tick)
			return
		}
		s.skipUntil = time.Time{}
		s.state = StateLoading
		s.publish()
	}

	// 3. expired deletions
	if swept := s.registry.Sweep(now, s.removeSpan); len(swept) > 0 {
		s.log.Debug().Int("count", len(swept)).Msg("swept expired deletions")
		s.publish()
	}

	// 4. load the next revision
	if len(s.queue) == 0 {
		if s.next < len(s.manifest.Deltas) {
			if s.skippedFor != s.next && s.gapBefore(s.next) {
				s.skippedFor = s.next
				s.skipUntil = now.Add(s.opts.TimeSkipDisplay)
				s.state = StateTimeSkipWaiting
				s.log.Debug().Int("revision", s.next).Msg("time skip")
				s.publish()
				s.clock.RequestTick(s.Tick)
				return
			}
			s.load(s.next)
		} else if s.registry.Len() == 0 {
			s.finish()
			return
		} else {
			s.state = StateDraining
		}
	}

	// 5. drain due actions
	s.accumulator += elapsed
	for len(s.queue) > 0 && s.accumulator >= s.opts.CharDuration {
		s.accumulator -= s.opts.CharDuration
		a := s.queue[0]
		s.queue = s.queue[1:]
		s.apply(a, now)
		s.publish()
	}

	// 6. re-arm
	if s.playing {
		s.clock.RequestTick(s.Tick)
	}
}

func (s *Scheduler) load(idx int) {
	d := s.manifest.Deltas[idx]
	s.queue = Flatten(d.Ops)
	s.next = idx + 1
	s.accumulator = 0
	s.state = StateDraining
	ev := s.log.Debug().Int("revision", s.next).Str("rev", d.RevID).Str("author", d.Author).Int("actions", len(s.queue))
	if n := countUnknown(d.Ops); n > 0 {
		ev = ev.Int("skipped_ops", n)
	}
	ev.Msg("revision loaded")
}

// gapBefore reports whether the real-world gap before delta idx exceeds the
// threshold. The first delta is compared with the base timestamp, if any.
func (s *Scheduler) gapBefore(idx int) bool {
	var prev manifest.Timestamp
	if idx == 0 {
		prev = s.manifest.BaseTimestamp
	} else {
		prev = s.manifest.Deltas[idx-1].Timestamp
	}
	curr := s.manifest.Deltas[idx].Timestamp
	if prev.IsZero() || curr.IsZero() {
		return false
	}
	return curr.Sub(prev.Time) > s.opts.TimeSkipThreshold
}

func (s *Scheduler) apply(a Action, now time.Time) {
	switch a.Type {
	case ActionInsert:
		visual := s.registry.ToVisualIndex(a.LogicalIndex)
		if s.buffer.Insert(visual, a.Payload) {
			s.log.Warn().Int("logical", a.LogicalIndex).Int("visual", visual).Msg("insert position clamped")
		}
		s.registry.ShiftForInsertion(visual)
	case ActionDelete:
		s.registerDeletion(a, now.Add(s.opts.DeletionLinger))
	}
}

// registerDeletion marks the live characters of a delete span as lingering.
// Each character is mapped separately so that a span which straddles text
// that is already lingering is registered as several entries covering only
// live characters. All characters are mapped against the registry as it was
// before this action; the runs are registered afterwards.
func (s *Scheduler) registerDeletion(a Action, expiry time.Time) {
	type run struct{ start, length int }
	var runs []run
	for k := range []rune(a.Payload) {
		v := s.registry.ToVisualIndex(a.LogicalIndex + k)
		if n := len(runs); n > 0 && v == runs[n-1].start+runs[n-1].length {
			runs[n-1].length++
			continue
		}
		runs = append(runs, run{start: v, length: 1})
	}
	for _, r := range runs {
		if r.start+r.length > s.buffer.Len() {
			s.log.Warn().Int("start", r.start).Int("length", r.length).Msg("deletion past end of text")
		}
		s.registry.Register(r.start, r.length, s.buffer.Slice(r.start, r.length), expiry)
	}
}

func (s *Scheduler) removeSpan(start, length int) {
	if s.buffer.Delete(start, length) {
		s.log.Warn().Int("start", start).Int("length", length).Msg("swept span clamped")
	}
}

func (s *Scheduler) finish() {
	s.playing = false
	s.state = StateIdle
	s.clock.Cancel()
	s.log.Info().Int("revisions", s.next).Msg("playback finished")
	s.publish()
}

func (s *Scheduler) frame() Frame {
	return Frame{
		Text:          s.buffer.String(),
		RevisionIndex: s.next,
		Playing:       s.playing,
		Pending:       s.registry.Pending(),
		TimeSkipping:  !s.skipUntil.IsZero(),
		State:         s.state,
	}
}

func (s *Scheduler) publish() {
	if s.observer != nil {
		s.observer(s.frame())
	}
}
