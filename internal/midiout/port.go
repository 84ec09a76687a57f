// Package midiout owns the MIDI output port the engine plays into.  It is
// driver agnostic; the rtmidi subpackage supplies the system driver.
package midiout

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// -------------------- Hot-swap config --------------------

// DefaultPreferredPatterns match loopback and virtual buses (macOS IAC,
// loopMIDI, virtual "Bus" ports) so notes reach a DAW on the same machine.
var DefaultPreferredPatterns = []string{"IAC", "Bus", "Loop"}

const DefaultRescanInterval = 1000 * time.Millisecond

// ErrNoOutput is returned by the send helpers when no port is open.
var ErrNoOutput = errors.New("midiout: no output port")

// Options selects the output port.
type Options struct {
	// PortName, when set, must match a port name exactly; no fallback applies.
	PortName string
	// Preferred name fragments (case-sensitive).
	Preferred      []string
	RescanInterval time.Duration
	Channel        uint8
	Logger         *slog.Logger
}

// -------------------- Port --------------------

// Port maintains a connection to the preferred MIDI output and survives
// the device appearing and disappearing.  With no device every send is a
// no-op that reports ErrNoOutput.
type Port struct {
	mu           sync.Mutex
	drv          drivers.Driver
	out          drivers.Out
	send         func(midi.Message) error
	connected    bool
	selectedName string
	lastRescanAt time.Time

	opts Options
	log  *slog.Logger
}

// NewWithDriver wraps an already initialised driver.
func NewWithDriver(drv drivers.Driver, opts Options) *Port {
	if opts.Preferred == nil {
		opts.Preferred = DefaultPreferredPatterns
	}
	if opts.RescanInterval <= 0 {
		opts.RescanInterval = DefaultRescanInterval
	}
	if opts.Channel > 15 {
		opts.Channel = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Port{drv: drv, opts: opts, log: logger}
}

// Close shuts down the active output and the driver.
func (p *Port) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeConn()
	if p.drv != nil {
		_ = p.drv.Close()
	}
}

// Tick should be called on a regular interval from the main loop.  It
// connects when a suitable port shows up and drops a port that vanished.
func (p *Port) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if !p.lastRescanAt.IsZero() && now.Sub(p.lastRescanAt) < p.opts.RescanInterval {
		return
	}
	p.lastRescanAt = now

	names := p.listOutputs()

	if p.connected {
		for _, n := range names {
			if n == p.selectedName {
				return
			}
		}
		p.log.Warn("midi: output disappeared", "device", p.selectedName)
		p.closeConn()
		p.lastRescanAt = time.Time{}
		return
	}

	cand, ok := PickPort(names, p.opts.PortName, p.opts.Preferred)
	if !ok {
		return
	}
	if err := p.openByName(cand); err != nil {
		p.log.Error("midi: connect failed", "device", cand, "err", err)
	}
}

// Connected reports whether an output is open and its name.
func (p *Port) Connected() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectedName, p.connected
}

// NoteOn sends [0x90|ch, note, velocity].
func (p *Port) NoteOn(note, velocity uint8) error {
	return p.sendMsg(midi.NoteOn(p.opts.Channel, note, velocity))
}

// NoteOff sends [0x80|ch, note, 0].
func (p *Port) NoteOff(note uint8) error {
	return p.sendMsg(midi.NoteOff(p.opts.Channel, note))
}

// -------------------- internal --------------------

func (p *Port) sendMsg(msg midi.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected || p.send == nil {
		return ErrNoOutput
	}
	if err := p.send(msg); err != nil {
		return fmt.Errorf("midi: send to %q: %w", p.selectedName, err)
	}
	p.log.Debug("midi: sent", "device", p.selectedName, "msg", msg.String())
	return nil
}

func (p *Port) listOutputs() []string {
	outs, err := p.drv.Outs()
	if err != nil {
		p.log.Error("midi: list outputs failed", "err", err)
		return nil
	}
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	p.log.Debug("midi: outputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names
}

func (p *Port) closeConn() {
	if p.out != nil {
		_ = p.out.Close()
		p.out = nil
	}
	p.send = nil
	p.connected = false
	p.selectedName = ""
}

func (p *Port) openByName(name string) error {
	outs, err := p.drv.Outs()
	if err != nil {
		return err
	}
	var found drivers.Out
	for _, out := range outs {
		if out.String() == name {
			found = out
			break
		}
	}
	if found == nil {
		return fmt.Errorf("output %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	send, err := midi.SendTo(found)
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("sender %q: %w", name, err)
	}

	p.out = found
	p.send = send
	p.connected = true
	p.selectedName = name
	p.log.Info("midi: output connected", "device", name)
	return nil
}

// -------------------- selection --------------------

// PickPort chooses an output from names.  An explicit name must match
// exactly.  Otherwise the first listed name containing any preferred
// fragment wins, then the first port listed.
func PickPort(names []string, explicit string, preferred []string) (string, bool) {
	if explicit != "" {
		for _, n := range names {
			if n == explicit {
				return n, true
			}
		}
		return "", false
	}
	for _, name := range names {
		for _, pat := range preferred {
			if strings.Contains(name, pat) {
				return name, true
			}
		}
	}
	if len(names) > 0 {
		return names[0], true
	}
	return "", false
}
