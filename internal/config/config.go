package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chase3718/sonic-plants/internal/display"
	"github.com/chase3718/sonic-plants/internal/engine"
	"github.com/chase3718/sonic-plants/internal/midiout"
	"github.com/chase3718/sonic-plants/internal/recorder"
	"github.com/chase3718/sonic-plants/internal/source"
)

type Config struct {
	Input   Input   `json:"input"`
	MIDI    MIDI    `json:"midi"`
	Engine  Engine  `json:"engine"`
	Display Display `json:"display"`
	Record  Record  `json:"record"`
	Monitor Monitor `json:"monitor"`
}

type Input struct {
	// UDP bind address.  Ignored when SerialDevice is set.
	UDPAddr string `json:"udp_addr"`

	// Optional serial device (e.g. /dev/ttyACM0) carrying one datagram per line.
	SerialDevice string `json:"serial_device"`
	Baud         int    `json:"baud"`
}

type MIDI struct {
	// Start with MIDI output enabled.  Can be toggled at runtime.
	Enabled bool `json:"enabled"`

	// Exact output port name.  Empty means pick by Preferred, then the first port.
	Port      string   `json:"port"`
	Preferred []string `json:"preferred"`
	Channel   int      `json:"channel"`  // 0..15
	Velocity  int      `json:"velocity"` // 1..127
	RescanMs  int      `json:"rescan_ms"`
}

type Engine struct {
	SmoothingWindow int     `json:"smoothing_window"`
	ThresholdUV     float64 `json:"threshold_uv"`
	MinIntervalMs   int     `json:"min_interval_ms"`
	NoteDurationMs  int     `json:"note_duration_ms"`
	MaxDurationMs   int     `json:"max_duration_ms"`
	RepeatWindow    int     `json:"repeat_window"`
	HistorySize     int     `json:"history_size"`
	PollMs          int     `json:"poll_ms"`
	SweepMs         int     `json:"sweep_ms"`
}

type Display struct {
	SampleRate    int     `json:"sample_rate"`
	WindowSeconds int     `json:"window_seconds"`
	HistoryHours  float64 `json:"history_hours"`
	HistoryWidth  int     `json:"history_width"`
	WindowWidth   int     `json:"window_width"`
	RefreshMs     int     `json:"refresh_ms"`
}

type Record struct {
	// Directory for recordings with a relative or empty path.
	Dir string `json:"dir"`

	// Start recording at launch into Path, a file name inside Dir (default
	// name when empty).
	AutoStart bool   `json:"auto_start"`
	Path      string `json:"path"`
}

type Monitor struct {
	// HTTP listen address for the control API and plot feed.  Empty disables it.
	HTTPAddr string `json:"http_addr"`
}

func Default() Config {
	return Config{
		Input: Input{
			UDPAddr: source.DefaultUDPAddr,
			Baud:    source.DefaultBaud,
		},
		MIDI: MIDI{
			Enabled:   false,
			Preferred: append([]string(nil), midiout.DefaultPreferredPatterns...),
			Channel:   0,
			Velocity:  engine.DefaultVelocity,
			RescanMs:  int(midiout.DefaultRescanInterval / time.Millisecond),
		},
		Engine: Engine{
			SmoothingWindow: engine.DefaultSmoothingWindow,
			ThresholdUV:     engine.DefaultThreshold,
			MinIntervalMs:   int(engine.DefaultMinInterval / time.Millisecond),
			NoteDurationMs:  int(engine.DefaultNoteDuration / time.Millisecond),
			MaxDurationMs:   int(engine.DefaultMaxDuration / time.Millisecond),
			RepeatWindow:    engine.DefaultRepeatWindow,
			HistorySize:     engine.DefaultHistorySize,
			PollMs:          20,
			SweepMs:         500,
		},
		Display: Display{
			SampleRate:    display.DefaultSampleRate,
			WindowSeconds: display.DefaultWindowSeconds,
			HistoryHours:  display.DefaultHistoryHours,
			HistoryWidth:  display.DefaultHistoryWidth,
			WindowWidth:   display.DefaultWindowWidth,
			RefreshMs:     100,
		},
		Record: Record{
			Dir: ".",
		},
		Monitor: Monitor{
			HTTPAddr: "127.0.0.1:8750",
		},
	}
}

func (c *Config) Validate() error {
	// Input
	if strings.TrimSpace(c.Input.SerialDevice) == "" {
		if strings.TrimSpace(c.Input.UDPAddr) == "" {
			return errors.New("input.udp_addr is required when input.serial_device is empty")
		}
		if _, _, err := net.SplitHostPort(c.Input.UDPAddr); err != nil {
			return fmt.Errorf("input.udp_addr: %w", err)
		}
	} else if c.Input.Baud <= 0 {
		return errors.New("input.baud must be > 0")
	}

	// MIDI
	if c.MIDI.Channel < 0 || c.MIDI.Channel > 15 {
		return errors.New("midi.channel must be 0..15")
	}
	if c.MIDI.Velocity < 1 || c.MIDI.Velocity > 127 {
		return errors.New("midi.velocity must be 1..127")
	}
	if c.MIDI.RescanMs <= 0 {
		return errors.New("midi.rescan_ms must be > 0")
	}

	// Engine
	e := c.Engine
	if e.SmoothingWindow < 1 {
		return errors.New("engine.smoothing_window must be >= 1")
	}
	if math.IsNaN(e.ThresholdUV) || math.IsInf(e.ThresholdUV, 0) || e.ThresholdUV <= 0 {
		return errors.New("engine.threshold_uv must be a finite value > 0")
	}
	if e.MinIntervalMs <= 0 {
		return errors.New("engine.min_interval_ms must be > 0")
	}
	if e.MaxDurationMs <= 0 {
		return errors.New("engine.max_duration_ms must be > 0")
	}
	if e.NoteDurationMs <= 0 || e.NoteDurationMs > e.MaxDurationMs {
		return errors.New("engine.note_duration_ms must be 1..max_duration_ms")
	}
	if e.RepeatWindow < 1 {
		return errors.New("engine.repeat_window must be >= 1")
	}
	if e.HistorySize < e.RepeatWindow {
		return errors.New("engine.history_size must be >= engine.repeat_window")
	}
	if e.PollMs <= 0 {
		return errors.New("engine.poll_ms must be > 0")
	}
	if e.SweepMs <= 0 {
		return errors.New("engine.sweep_ms must be > 0")
	}

	// Display
	d := c.Display
	if d.SampleRate <= 0 {
		return errors.New("display.sample_rate must be > 0")
	}
	if d.WindowSeconds <= 0 {
		return errors.New("display.window_seconds must be > 0")
	}
	if d.HistoryHours <= 0 {
		return errors.New("display.history_hours must be > 0")
	}
	if d.HistoryWidth < 1 || d.WindowWidth < 1 {
		return errors.New("display widths must be >= 1")
	}
	if d.RefreshMs <= 0 {
		return errors.New("display.refresh_ms must be > 0")
	}

	// Record
	if c.Record.Path != "" && !recorder.ValidName(c.Record.Path) {
		return errors.New("record.path must be a plain file name; use record.dir for the directory")
	}

	// Monitor
	if a := strings.TrimSpace(c.Monitor.HTTPAddr); a != "" {
		if _, _, err := net.SplitHostPort(a); err != nil {
			return fmt.Errorf("monitor.http_addr: %w", err)
		}
	}
	return nil
}

// EngineConfig converts the engine section.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		SmoothingWindow: c.Engine.SmoothingWindow,
		Threshold:       c.Engine.ThresholdUV,
		MinInterval:     msDur(c.Engine.MinIntervalMs),
		NoteDuration:    msDur(c.Engine.NoteDurationMs),
		MaxDuration:     msDur(c.Engine.MaxDurationMs),
		RepeatWindow:    c.Engine.RepeatWindow,
		HistorySize:     c.Engine.HistorySize,
		Velocity:        uint8(c.MIDI.Velocity),
	}
}

// DisplayOptions converts the display section.
func (c *Config) DisplayOptions() display.Options {
	return display.Options{
		SampleRate:    c.Display.SampleRate,
		WindowSeconds: c.Display.WindowSeconds,
		HistoryHours:  c.Display.HistoryHours,
		HistoryWidth:  c.Display.HistoryWidth,
		WindowWidth:   c.Display.WindowWidth,
	}
}

func msDur(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}
