// Package app wires a packet source, the engine, the MIDI output, the
// recorder and the display buffers into one single-threaded run loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chase3718/sonic-plants/internal/config"
	"github.com/chase3718/sonic-plants/internal/display"
	"github.com/chase3718/sonic-plants/internal/engine"
	"github.com/chase3718/sonic-plants/internal/monitor"
	"github.com/chase3718/sonic-plants/internal/recorder"
	"github.com/chase3718/sonic-plants/internal/source"
)

// ErrStopped is returned by control calls once the loop has exited.
var ErrStopped = errors.New("app: runner stopped")

// Output is a MIDI sink that also needs periodic rescans.
type Output interface {
	engine.Sink
	Tick()
	Connected() (string, bool)
}

// Feed receives display frames.
type Feed interface {
	Publish(monitor.Frame)
}

// Deps are the collaborators of a Runner.  Only Source is required.
type Deps struct {
	Source source.Source
	Output Output
	Feed   Feed
	Logger *slog.Logger
	Clock  func() time.Time
}

// Runner owns every piece of mutable state.  Its Run loop is the only
// goroutine that touches the engine, recorder and display buffers; control
// calls from other goroutines are queued onto it.
type Runner struct {
	cfg  config.Config
	src  source.Source
	out  Output
	feed Feed
	log  *slog.Logger
	now  func() time.Time

	eng  *engine.Engine
	rec  *recorder.Recorder
	disp *display.Buffers

	cmds chan func()
	done chan struct{}
}

// New builds a runner from a validated config.
func New(cfg config.Config, deps Deps) (*Runner, error) {
	if deps.Source == nil {
		return nil, errors.New("app: source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	var sink engine.Sink
	if deps.Output != nil {
		sink = deps.Output
	}
	eng := engine.New(cfg.EngineConfig(), sink, logger)
	eng.SetMIDIEnabled(cfg.MIDI.Enabled)

	return &Runner{
		cfg:  cfg,
		src:  deps.Source,
		out:  deps.Output,
		feed: deps.Feed,
		log:  logger,
		now:  clock,
		eng:  eng,
		rec:  recorder.New(cfg.Record.Dir, logger),
		disp: display.New(cfg.DisplayOptions()),
		cmds: make(chan func()),
		done: make(chan struct{}),
	}, nil
}

// AttachFeed sets the display frame receiver.  Call before Run.
func (r *Runner) AttachFeed(f Feed) { r.feed = f }

// Run processes packets until ctx is cancelled or the source stops.  On the
// way out every sounding note is turned off and any recording is closed.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.shutdown()

	if r.cfg.Record.AutoStart {
		if _, err := r.rec.Start(r.cfg.Record.Path, r.now()); err != nil {
			r.log.Error("recorder: auto start failed", "err", err)
		}
	}

	poll := time.NewTicker(msDur(r.cfg.Engine.PollMs))
	defer poll.Stop()
	sweep := time.NewTicker(msDur(r.cfg.Engine.SweepMs))
	defer sweep.Stop()
	refresh := time.NewTicker(msDur(r.cfg.Display.RefreshMs))
	defer refresh.Stop()
	rescan := time.NewTicker(msDur(r.cfg.MIDI.RescanMs))
	defer rescan.Stop()

	r.log.Info("running", "source", r.src.String(), "midi_enabled", r.eng.MIDIEnabled())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			if !r.poll() {
				err := r.src.Err()
				if errors.Is(err, source.ErrClosed) {
					return nil
				}
				return fmt.Errorf("app: source %s stopped: %w", r.src, err)
			}
		case <-sweep.C:
			r.eng.Sweep(r.now())
		case <-refresh.C:
			r.publish()
		case <-rescan.C:
			if r.out != nil {
				r.out.Tick()
			}
		case fn := <-r.cmds:
			fn()
		}
	}
}

// poll drains every pending datagram, fires due note-offs and flushes the
// recording.  It reports false once the source has stopped.
func (r *Runner) poll() bool {
	n, ok := source.Drain(r.src, r.handle)
	r.eng.Tick(r.now())
	if r.rec.Active() {
		if err := r.rec.Flush(); err != nil {
			r.log.Error("recorder: session invalidated", "err", err)
		}
	}
	if n > 0 {
		r.log.Debug("poll: drained", "packets", n)
	}
	return ok
}

func (r *Runner) handle(data []byte) {
	now := r.now()
	res := r.eng.HandlePacket(data, now)
	if !res.Accepted {
		return
	}
	r.disp.Add(res.Packet.Amplitude)
	if r.rec.Active() {
		if err := r.rec.Append(res.Packet.Amplitude, now); err != nil {
			r.log.Error("recorder: session invalidated", "err", err)
		}
	}
}

func (r *Runner) publish() {
	if r.feed == nil {
		return
	}
	r.feed.Publish(monitor.Frame{
		Time:   r.now(),
		Window: r.disp.Window(),
		Status: r.status(),
	})
}

func (r *Runner) shutdown() {
	if n := r.eng.ReleaseAll(); n > 0 {
		r.log.Info("shutdown: notes released", "count", n)
	}
	if r.rec.Active() {
		if _, err := r.rec.Stop(); err != nil {
			r.log.Error("shutdown: recorder close failed", "err", err)
		}
	}
	r.log.Info("shutdown: complete")
}

func (r *Runner) status() monitor.Status {
	st := monitor.Status{
		Stats:  r.eng.Stats(),
		Source: r.src.String(),
	}
	if r.out != nil {
		st.OutputPort, st.OutputConnected = r.out.Connected()
	}
	if s, ok := r.rec.Current(); ok {
		st.Recording = &s
	}
	if s, ok := r.rec.Last(); ok {
		st.LastRecording = &s
	}
	return st
}

func msDur(n int) time.Duration { return time.Duration(n) * time.Millisecond }
