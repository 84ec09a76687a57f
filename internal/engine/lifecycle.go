package engine

import (
	"log/slog"
	"sort"
	"time"
)

// Sink receives the note messages.  Implementations may be unavailable; the
// lifecycle treats every call as best effort.
type Sink interface {
	NoteOn(note, velocity uint8) error
	NoteOff(note uint8) error
}

// ActiveNote is a note that has received a note-on and not yet a note-off.
type ActiveNote struct {
	Note   int
	OnTime time.Time
	gen    uint64
}

// Lifecycle tracks sounding notes, schedules their note-off and sweeps notes
// that outlived maxDur.  Every ActiveNote receives exactly one note-off.
type Lifecycle struct {
	sink     Sink
	velocity uint8
	maxDur   time.Duration
	log      *slog.Logger

	active map[int]*ActiveNote
	sched  Scheduler
	gen    uint64
}

// NewLifecycle returns a manager emitting to sink.  sink may be nil.
func NewLifecycle(sink Sink, velocity uint8, maxDur time.Duration, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		sink:     sink,
		velocity: velocity,
		maxDur:   maxDur,
		log:      logger,
		active:   make(map[int]*ActiveNote),
	}
}

// NoteOn starts note and schedules its note-off after d (clamped to maxDur).
// An already active entry for note is replaced; its pending note-off becomes
// stale and will not fire.
func (l *Lifecycle) NoteOn(note int, d time.Duration, now time.Time) {
	d = clampDuration(d, l.maxDur)
	l.gen++
	if prev, ok := l.active[note]; ok {
		l.log.Debug("lifecycle: replacing active note", "note", pitchName(note), "held_ms", now.Sub(prev.OnTime).Milliseconds())
	}
	l.active[note] = &ActiveNote{Note: note, OnTime: now, gen: l.gen}

	if l.sink != nil {
		if err := l.sink.NoteOn(uint8(note), l.velocity); err != nil {
			l.log.Warn("lifecycle: note on not delivered", "note", pitchName(note), "err", err)
		}
	}
	l.sched.Schedule(now.Add(d), note, l.gen)
	l.log.Info("note on", "note", pitchName(note), "midi_note", note, "duration_ms", d.Milliseconds(), "active", len(l.active))
}

// NoteOff ends note if it is active and reports whether a note-off was sent.
// Calling it for an inactive note is a no-op.
func (l *Lifecycle) NoteOff(note int) bool {
	if _, ok := l.active[note]; !ok {
		return false
	}
	delete(l.active, note)
	if l.sink != nil {
		if err := l.sink.NoteOff(uint8(note)); err != nil {
			l.log.Warn("lifecycle: note off not delivered", "note", pitchName(note), "err", err)
		}
	}
	l.log.Info("note off", "note", pitchName(note), "midi_note", note, "active", len(l.active))
	return true
}

// Flush fires every deferred note-off due at t and returns how many notes
// were actually turned off.  Deferrals belonging to a replaced or already
// swept entry are discarded.
func (l *Lifecycle) Flush(t time.Time) int {
	off := 0
	for _, task := range l.sched.PopDue(t) {
		an, ok := l.active[task.note]
		if !ok || an.gen != task.gen {
			continue
		}
		if l.NoteOff(task.note) {
			off++
		}
	}
	return off
}

// Sweep force-offs every note that has been sounding longer than maxDur
// and returns the notes it released, in ascending order.
func (l *Lifecycle) Sweep(now time.Time) []int {
	var stuck []int
	for note, an := range l.active {
		if now.Sub(an.OnTime) > l.maxDur {
			stuck = append(stuck, note)
		}
	}
	sort.Ints(stuck)
	for _, note := range stuck {
		l.log.Warn("lifecycle: stuck note released by sweep", "note", pitchName(note), "held_ms", now.Sub(l.active[note].OnTime).Milliseconds())
		l.NoteOff(note)
	}
	return stuck
}

// ReleaseAll turns off every active note, e.g. on shutdown.
func (l *Lifecycle) ReleaseAll() int {
	notes := l.ActiveNotes()
	for _, an := range notes {
		l.NoteOff(an.Note)
	}
	if len(notes) > 0 {
		l.log.Info("lifecycle: released all notes", "count", len(notes))
	}
	return len(notes)
}

// IsActive reports whether note is sounding.
func (l *Lifecycle) IsActive(note int) bool {
	_, ok := l.active[note]
	return ok
}

// ActiveNotes returns a snapshot of sounding notes ordered by note number.
func (l *Lifecycle) ActiveNotes() []ActiveNote {
	out := make([]ActiveNote, 0, len(l.active))
	for _, an := range l.active {
		out = append(out, *an)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Note < out[j].Note })
	return out
}

// Pending returns the number of queued note-off deferrals, stale ones
// included.
func (l *Lifecycle) Pending() int { return l.sched.Len() }
