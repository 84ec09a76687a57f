// Package engine converts a stream of biosignal samples into MIDI note
// events.  All state lives in one Engine value driven from a single
// goroutine; none of the types here are safe for concurrent use.
package engine

import (
	"log/slog"
	"time"
)

// -------------------- Tunables --------------------

const (
	DefaultSmoothingWindow = 3
	DefaultThreshold       = 50.0 // µV
	DefaultMinInterval     = 200 * time.Millisecond
	DefaultNoteDuration    = 180 * time.Millisecond
	DefaultMaxDuration     = 4000 * time.Millisecond
	DefaultRepeatWindow    = 3
	DefaultHistorySize     = 10
	DefaultVelocity        = 100
)

// Config holds the engine tunables.  Zero fields take the defaults above.
type Config struct {
	SmoothingWindow int
	Threshold       float64
	MinInterval     time.Duration
	NoteDuration    time.Duration
	MaxDuration     time.Duration
	RepeatWindow    int
	HistorySize     int
	Velocity        uint8
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		SmoothingWindow: DefaultSmoothingWindow,
		Threshold:       DefaultThreshold,
		MinInterval:     DefaultMinInterval,
		NoteDuration:    DefaultNoteDuration,
		MaxDuration:     DefaultMaxDuration,
		RepeatWindow:    DefaultRepeatWindow,
		HistorySize:     DefaultHistorySize,
		Velocity:        DefaultVelocity,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SmoothingWindow <= 0 {
		c.SmoothingWindow = d.SmoothingWindow
	}
	if !validThreshold(c.Threshold) {
		c.Threshold = d.Threshold
	}
	if c.MinInterval <= 0 {
		c.MinInterval = d.MinInterval
	}
	if c.NoteDuration <= 0 {
		c.NoteDuration = d.NoteDuration
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	if c.RepeatWindow <= 0 {
		c.RepeatWindow = d.RepeatWindow
	}
	if c.HistorySize < c.RepeatWindow {
		c.HistorySize = max(d.HistorySize, c.RepeatWindow)
	}
	if c.Velocity == 0 || c.Velocity > 127 {
		c.Velocity = d.Velocity
	}
	return c
}

// -------------------- Engine --------------------

// Result describes what one packet did.
type Result struct {
	Packet   SamplePacket
	Accepted bool // packet carried a usable amplitude
	Smoothed float64
	Event    bool     // threshold crossing detected
	Decision Decision // zero unless Event and MIDI enabled
}

// Engine is the complete signal-to-note state machine.
type Engine struct {
	cfg Config
	log *slog.Logger

	smoother  *Smoother
	detector  *Detector
	history   *History
	arbiter   *Arbiter
	lifecycle *Lifecycle

	midiEnabled bool
	samples     uint64
	events      uint64
	played      uint64
	suppressed  uint64
}

// New builds an engine emitting notes to sink, which may be nil.
func New(cfg Config, sink Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	h := NewHistory(cfg.HistorySize)
	return &Engine{
		cfg:       cfg,
		log:       logger,
		smoother:  NewSmoother(cfg.SmoothingWindow),
		detector:  NewDetector(cfg.Threshold, cfg.MinInterval),
		history:   h,
		arbiter:   NewArbiter(h, cfg.RepeatWindow, cfg.NoteDuration, cfg.MaxDuration),
		lifecycle: NewLifecycle(sink, cfg.Velocity, cfg.MaxDuration, logger),
	}
}

// HandlePacket decodes one datagram and runs it through smoothing,
// detection and arbitration.  Malformed datagrams leave every piece of
// state untouched.
func (e *Engine) HandlePacket(data []byte, now time.Time) Result {
	p, ok := Decode(data)
	if !ok {
		e.log.Debug("engine: packet discarded", "raw", string(data))
		return Result{}
	}
	return e.HandleSample(p, now)
}

// HandleSample runs an already decoded packet through the pipeline.
func (e *Engine) HandleSample(p SamplePacket, now time.Time) Result {
	res := Result{Packet: p, Accepted: true}
	e.samples++

	if p.Threshold != nil && *p.Threshold != e.detector.Threshold() {
		e.log.Info("engine: threshold override", "from", e.detector.Threshold(), "to", *p.Threshold)
	}
	res.Smoothed = e.smoother.Process(p.Amplitude)
	res.Event = e.detector.Evaluate(res.Smoothed, p.Threshold, now)
	if !res.Event {
		return res
	}
	e.events++

	if !e.midiEnabled {
		e.log.Debug("engine: event while midi disabled", "smoothed", res.Smoothed)
		return res
	}
	res.Decision = e.arbiter.Decide(p.Note, p.Duration)
	if !res.Decision.Play {
		if p.Note != nil {
			e.suppressed++
			e.log.Debug("engine: repeat suppressed", "note", pitchName(*p.Note))
		}
		return res
	}
	e.played++
	e.lifecycle.NoteOn(res.Decision.Note, res.Decision.Duration, now)
	return res
}

// Tick fires deferred note-offs that are due.
func (e *Engine) Tick(now time.Time) int { return e.lifecycle.Flush(now) }

// Sweep force-offs stuck notes.
func (e *Engine) Sweep(now time.Time) []int { return e.lifecycle.Sweep(now) }

// ReleaseAll turns off every sounding note.
func (e *Engine) ReleaseAll() int { return e.lifecycle.ReleaseAll() }

// SetMIDIEnabled gates whether events reach the arbiter.  Disabling does not
// cut notes already sounding; they end on schedule.
func (e *Engine) SetMIDIEnabled(on bool) {
	if on != e.midiEnabled {
		e.log.Info("engine: midi output toggled", "enabled", on)
	}
	e.midiEnabled = on
}

// MIDIEnabled reports the gate state.
func (e *Engine) MIDIEnabled() bool { return e.midiEnabled }

// Lifecycle exposes the note lifecycle manager.
func (e *Engine) Lifecycle() *Lifecycle { return e.lifecycle }

// History exposes the played-note ring.
func (e *Engine) History() *History { return e.history }

// Config returns the effective tunables.
func (e *Engine) Config() Config { return e.cfg }

// Stats is a counters snapshot.
type Stats struct {
	Samples     uint64  `json:"samples"`
	Events      uint64  `json:"events"`
	Played      uint64  `json:"played"`
	Suppressed  uint64  `json:"suppressed"`
	Threshold   float64 `json:"threshold"`
	ActiveNotes int     `json:"active_notes"`
	MIDIEnabled bool    `json:"midi_enabled"`
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Samples:     e.samples,
		Events:      e.events,
		Played:      e.played,
		Suppressed:  e.suppressed,
		Threshold:   e.detector.Threshold(),
		ActiveNotes: len(e.lifecycle.active),
		MIDIEnabled: e.midiEnabled,
	}
}
