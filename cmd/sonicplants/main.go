package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chase3718/sonic-plants/internal/app"
	"github.com/chase3718/sonic-plants/internal/config"
	"github.com/chase3718/sonic-plants/internal/engine"
	"github.com/chase3718/sonic-plants/internal/midiout"
	"github.com/chase3718/sonic-plants/internal/midiout/rtmidi"
	"github.com/chase3718/sonic-plants/internal/monitor"
	"github.com/chase3718/sonic-plants/internal/source"
)

// -------------------- Logger --------------------

// logger is the package-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Main --------------------

func main() {
	cfgPath := flag.String("config", "", "JSON config file (defaults apply when empty)")
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	udpAddr := flag.String("udp", source.DefaultUDPAddr, "UDP listen address for sample datagrams")
	serialDev := flag.String("serial", "", "read datagrams from this serial device instead of UDP")
	baud := flag.Int("baud", source.DefaultBaud, "serial baud rate")
	midiOn := flag.Bool("midi", false, "start with MIDI output enabled")
	midiPort := flag.String("midi-port", "", "exact MIDI output port name")
	threshold := flag.Float64("threshold", engine.DefaultThreshold, "initial detection threshold (uV)")
	httpAddr := flag.String("http", "127.0.0.1:8750", "monitor HTTP address (empty disables)")
	record := flag.String("record", "", "start recording to this CSV file at launch")
	flag.Parse()

	initLogger(*debug)

	cfg := config.Default()
	if *cfgPath != "" {
		c, err := config.Load(*cfgPath)
		if err != nil {
			logger.Error("config: load failed", "path", *cfgPath, "err", err)
			os.Exit(1)
		}
		cfg = c
	}
	// Flags given on the command line win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "udp":
			cfg.Input.UDPAddr = *udpAddr
		case "serial":
			cfg.Input.SerialDevice = *serialDev
		case "baud":
			cfg.Input.Baud = *baud
		case "midi":
			cfg.MIDI.Enabled = *midiOn
		case "midi-port":
			cfg.MIDI.Port = *midiPort
		case "threshold":
			cfg.Engine.ThresholdUV = *threshold
		case "http":
			cfg.Monitor.HTTPAddr = *httpAddr
		case "record":
			// A directory part moves the recording directory.
			cfg.Record.AutoStart = true
			cfg.Record.Path = ""
			if *record != "" {
				cfg.Record.Path = filepath.Base(*record)
				if d := filepath.Dir(*record); d != "." {
					cfg.Record.Dir = d
				}
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Error("config: invalid", "err", err)
		os.Exit(1)
	}

	logger.Info("sonicplants starting",
		"udp", cfg.Input.UDPAddr,
		"serial", cfg.Input.SerialDevice,
		"midi_enabled", cfg.MIDI.Enabled,
		"threshold_uv", cfg.Engine.ThresholdUV,
		"min_interval_ms", cfg.Engine.MinIntervalMs,
		"max_duration_ms", cfg.Engine.MaxDurationMs,
		"http", cfg.Monitor.HTTPAddr,
		"debug", *debug,
	)

	if err := run(cfg); err != nil {
		logger.Error("sonicplants stopped", "err", err)
		os.Exit(1)
	}
}

// run owns every opened resource so they are closed before main exits.
func run(cfg config.Config) error {
	var src source.Source
	if cfg.Input.SerialDevice != "" {
		sp, err := source.OpenSerial(cfg.Input.SerialDevice, cfg.Input.Baud, logger)
		if err != nil {
			return err
		}
		src = sp
	} else {
		u, err := source.ListenUDP(cfg.Input.UDPAddr, logger)
		if err != nil {
			return err
		}
		src = u
	}
	defer src.Close()

	deps := app.Deps{Source: src, Logger: logger}
	port, err := rtmidi.Open(midiout.Options{
		PortName:       cfg.MIDI.Port,
		Preferred:      cfg.MIDI.Preferred,
		RescanInterval: time.Duration(cfg.MIDI.RescanMs) * time.Millisecond,
		Channel:        uint8(cfg.MIDI.Channel),
		Logger:         logger,
	})
	if err != nil {
		// No driver means no sink; notes are still tracked.
		logger.Warn("midi: output unavailable, running without sink", "err", err)
	} else {
		defer port.Close()
		deps.Output = port
	}

	runner, err := app.New(cfg, deps)
	if err != nil {
		return err
	}

	if cfg.Monitor.HTTPAddr != "" {
		mon := monitor.New(runner, logger)
		if err := mon.Start(cfg.Monitor.HTTPAddr); err != nil {
			return err
		}
		runner.AttachFeed(mon)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = mon.Close(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runner.Run(ctx)
}
