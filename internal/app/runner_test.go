package app

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/chase3718/sonic-plants/internal/config"
	"github.com/chase3718/sonic-plants/internal/monitor"
)

type chanSource struct {
	ch  chan []byte
	err error
}

func newChanSource() *chanSource { return &chanSource{ch: make(chan []byte, 64)} }

func (s *chanSource) Packets() <-chan []byte { return s.ch }
func (s *chanSource) Err() error             { return s.err }
func (s *chanSource) Close() error           { return nil }
func (s *chanSource) String() string         { return "chan://test" }

func (s *chanSource) send(pkts ...string) {
	for _, p := range pkts {
		s.ch <- []byte(p)
	}
}

type fakeOutput struct {
	mu    sync.Mutex
	msgs  [][3]byte
	ticks int
}

func (o *fakeOutput) NoteOn(note, vel uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, [3]byte{0x90, note, vel})
	return nil
}

func (o *fakeOutput) NoteOff(note uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, [3]byte{0x80, note, 0})
	return nil
}

func (o *fakeOutput) Tick() {
	o.mu.Lock()
	o.ticks++
	o.mu.Unlock()
}

func (o *fakeOutput) Connected() (string, bool) { return "fake", true }

func (o *fakeOutput) count(status byte) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.msgs {
		if m[0] == status {
			n++
		}
	}
	return n
}

type captureFeed struct {
	mu     sync.Mutex
	frames []monitor.Frame
}

func (f *captureFeed) Publish(fr monitor.Frame) {
	f.mu.Lock()
	f.frames = append(f.frames, fr)
	f.mu.Unlock()
}

func (f *captureFeed) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time        { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.MIDI.Enabled = true
	cfg.Engine.SmoothingWindow = 1
	cfg.Engine.PollMs = 2
	cfg.Engine.SweepMs = 10
	cfg.Display.RefreshMs = 5
	cfg.Display.SampleRate = 10
	cfg.Display.HistoryHours = 0.01
	cfg.Record.Dir = t.TempDir()
	return cfg
}

func TestRunnerPollDrivesEngine(t *testing.T) {
	src := newChanSource()
	out := &fakeOutput{}
	clk := &manualClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	r, err := New(testConfig(t), Deps{Source: src, Output: out, Logger: quiet(), Clock: clk.now})
	if err != nil {
		t.Fatal(err)
	}

	src.send("uV:0;THR:10", "garbage", "uV:50;MIDI:60;DUR:0.1")
	if !r.poll() {
		t.Fatal("expected source still open")
	}
	st := r.status()
	if st.Samples != 2 || st.Played != 1 || st.ActiveNotes != 1 {
		t.Fatalf("unexpected status after first poll %+v", st)
	}
	if r.disp.HistoryLen() != 2 {
		t.Fatalf("expected 2 display samples, got %d", r.disp.HistoryLen())
	}

	clk.advance(100 * time.Millisecond)
	r.poll()
	if out.count(0x80) != 1 {
		t.Fatalf("expected deferred note off on the next poll, got %v", out.msgs)
	}
}

func TestRunnerRecordsAcceptedSamples(t *testing.T) {
	src := newChanSource()
	clk := &manualClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	r, err := New(testConfig(t), Deps{Source: src, Logger: quiet(), Clock: clk.now})
	if err != nil {
		t.Fatal(err)
	}
	sess, err := r.rec.Start("run.csv", clk.now())
	if err != nil {
		t.Fatal(err)
	}
	src.send("uV:1", "THR:4")
	r.poll()
	clk.advance(250 * time.Millisecond)
	src.send("uV:2")
	r.poll()
	if _, err := r.rec.Stop(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(sess.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[1][1] != "1" || rows[2][0] != "0.25" || rows[2][1] != "2" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestRunnerRunControlAndShutdown(t *testing.T) {
	src := newChanSource()
	out := &fakeOutput{}
	feed := &captureFeed{}
	cfg := testConfig(t)
	cfg.MIDI.Enabled = false
	cfg.Engine.MaxDurationMs = 60000
	cfg.Engine.NoteDurationMs = 60000
	r, err := New(cfg, Deps{Source: src, Output: out, Feed: feed, Logger: quiet()})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	st, err := r.SetMIDIEnabled(ctx, true)
	if err != nil || !st.MIDIEnabled {
		t.Fatalf("expected midi enabled, got %+v err=%v", st, err)
	}
	if _, err := r.StartRecording(ctx, "live.csv"); err != nil {
		t.Fatal(err)
	}

	src.send("uV:0;THR:10", "uV:100;MIDI:72")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, _ = r.Status(ctx)
		if st.Samples == 2 && feed.len() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st.Samples != 2 || st.ActiveNotes != 1 || st.Recording == nil {
		t.Fatalf("unexpected live status %+v", st)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not exit")
	}

	if out.count(0x90) != 1 || out.count(0x80) != 1 {
		t.Fatalf("expected the long note released on shutdown, got %v", out.msgs)
	}
	if r.rec.Active() {
		t.Fatal("expected recording closed on shutdown")
	}
	if _, err := r.Status(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after exit, got %v", err)
	}
}

func TestRunnerExitsWhenSourceEnds(t *testing.T) {
	src := newChanSource()
	src.err = io.EOF
	close(src.ch)
	r, err := New(testConfig(t), Deps{Source: src, Logger: quiet()})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not exit")
	}
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New(config.Default(), Deps{}); err == nil {
		t.Fatal("expected error without a source")
	}
}

func TestControlCancelledWhileQueuedReturnsZero(t *testing.T) {
	r, err := New(testConfig(t), Deps{Source: newChanSource(), Logger: quiet()})
	if err != nil {
		t.Fatal(err)
	}
	r.disp.Add(1)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		st  monitor.Status
		h   []float64
		err error
	}
	res := make(chan result, 2)
	go func() {
		st, err := r.Status(ctx)
		res <- result{st: st, err: err}
	}()
	go func() {
		h, err := r.History(ctx)
		res <- result{h: h, err: err}
	}()

	// Stand in for the loop: take both commands, then cancel before running them.
	fns := []func(){<-r.cmds, <-r.cmds}
	cancel()
	got := []result{<-res, <-res}
	for _, fn := range fns {
		fn()
	}
	for _, g := range got {
		if !errors.Is(g.err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", g.err)
		}
		if g.st.Source != "" || g.h != nil {
			t.Fatalf("expected zero values on cancellation, got %+v", g)
		}
	}
}
