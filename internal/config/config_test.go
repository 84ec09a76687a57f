package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
	ec := cfg.EngineConfig()
	if ec.MinInterval != 200*time.Millisecond || ec.MaxDuration != 4*time.Second || ec.NoteDuration != 180*time.Millisecond {
		t.Fatalf("unexpected engine defaults %+v", ec)
	}
	if ec.Threshold != 50 || ec.SmoothingWindow != 3 || ec.Velocity != 100 {
		t.Fatalf("unexpected engine defaults %+v", ec)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonicplants.json")
	body := "\xEF\xBB\xBF" + `{"input":{"udp_addr":"127.0.0.1:6000"},"engine":{"threshold_uv":12.5}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Input.UDPAddr != "127.0.0.1:6000" || cfg.Engine.ThresholdUV != 12.5 {
		t.Fatalf("expected file values applied, got %+v", cfg)
	}
	if cfg.Engine.SweepMs != 500 || cfg.Display.SampleRate != 200 {
		t.Fatalf("expected defaults kept for missing fields, got %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"engine.threshold_uv":     func(c *Config) { c.Engine.ThresholdUV = 0 },
		"engine.note_duration_ms": func(c *Config) { c.Engine.NoteDurationMs = 5000 },
		"engine.history_size":     func(c *Config) { c.Engine.HistorySize = 2 },
		"midi.velocity":           func(c *Config) { c.MIDI.Velocity = 200 },
		"input.udp_addr":          func(c *Config) { c.Input.UDPAddr = "nope" },
		"monitor.http_addr":       func(c *Config) { c.Monitor.HTTPAddr = "localhost" },
		"record.path":             func(c *Config) { c.Record.Path = "../elsewhere.csv" },
	}
	for field, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), field) {
			t.Fatalf("expected error mentioning %s, got %v", field, err)
		}
	}
}

func TestSerialInputSkipsUDPCheck(t *testing.T) {
	cfg := Default()
	cfg.Input.UDPAddr = ""
	cfg.Input.SerialDevice = "/dev/ttyACM0"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected serial-only config to validate, got %v", err)
	}
}
