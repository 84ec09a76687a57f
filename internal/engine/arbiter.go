package engine

import "time"

// Decision is the arbiter's verdict on a detected event.
type Decision struct {
	Play     bool
	Note     int
	Duration time.Duration
}

// Arbiter turns detected events into playable notes.  It blocks a note that
// would repeat more than repeatWindow times in a row and resolves the note
// duration from the packet hint.
type Arbiter struct {
	history      *History
	repeatWindow int
	defaultDur   time.Duration
	maxDur       time.Duration
}

// NewArbiter returns an arbiter consulting (and filling) history.
func NewArbiter(history *History, repeatWindow int, defaultDur, maxDur time.Duration) *Arbiter {
	return &Arbiter{
		history:      history,
		repeatWindow: repeatWindow,
		defaultDur:   defaultDur,
		maxDur:       maxDur,
	}
}

// Decide resolves an event carrying the given hints.  A Play decision is
// recorded in the history before returning.
func (a *Arbiter) Decide(noteHint *int, durationHint *float64) Decision {
	if noteHint == nil {
		return Decision{}
	}
	note := *noteHint
	if !a.CanPlay(note) {
		return Decision{Note: note}
	}

	d := a.ResolveDuration(durationHint)
	a.history.Push(note)
	return Decision{Play: true, Note: note, Duration: d}
}

// CanPlay reports whether note may sound now.  It is false only when the
// last repeatWindow history entries all equal note.
func (a *Arbiter) CanPlay(note int) bool {
	if a.repeatWindow <= 0 || a.history.Len() < a.repeatWindow {
		return true
	}
	for _, n := range a.history.Last(a.repeatWindow) {
		if n != note {
			return true
		}
	}
	return false
}

// ResolveDuration converts a hint in seconds to whole milliseconds, falling
// back to the default, and clamps to the maximum.
func (a *Arbiter) ResolveDuration(hint *float64) time.Duration {
	d := a.defaultDur
	if hint != nil {
		millis := *hint * 1000
		if a.maxDur > 0 && millis > float64(a.maxDur.Milliseconds()) {
			return a.maxDur
		}
		d = ms(int(millis))
	}
	return clampDuration(d, a.maxDur)
}

func clampDuration(d, limit time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
