package source

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// collect drains src until want datagrams arrived or the deadline passed.
func collect(t *testing.T, src Source, want int) []string {
	t.Helper()
	var got []string
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		_, ok := Drain(src, func(b []byte) { got = append(got, string(b)) })
		if !ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	return got
}

func TestUDPDeliversDatagramsInOrder(t *testing.T) {
	u, err := ListenUDP("127.0.0.1:0", quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	conn, err := net.DialUDP("udp", nil, u.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sent := []string{"uV:1", "uV:2;THR:5", "uV:3;MIDI:60"}
	for _, s := range sent {
		if _, err := conn.Write([]byte(s)); err != nil {
			t.Fatal(err)
		}
	}
	if got := collect(t, u, len(sent)); !reflect.DeepEqual(got, sent) {
		t.Fatalf("expected %v, got %v", sent, got)
	}
}

func TestUDPDrainDoesNotBlockWhenIdle(t *testing.T) {
	u, err := ListenUDP("127.0.0.1:0", quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	start := time.Now()
	n, ok := Drain(u, func([]byte) {})
	if n != 0 || !ok {
		t.Fatalf("expected nothing drained from an idle open source, got n=%d ok=%v", n, ok)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected drain to return immediately")
	}
}

func TestUDPCloseStopsReader(t *testing.T) {
	u, err := ListenUDP("127.0.0.1:0", quiet())
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case _, open := <-u.Packets():
		if open {
			t.Fatal("expected no datagrams after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected packet channel closed after Close")
	}
	if !errors.Is(u.Err(), ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", u.Err())
	}
}

func TestSerialSplitsLines(t *testing.T) {
	in := "uV:10;MIDI:60\r\n\nuV:11\nuV:12;DUR:0.2"
	s := newSerial("test", io.NopCloser(strings.NewReader(in)), quiet())
	got := collect(t, s, 3)
	want := []string{"uV:10;MIDI:60", "uV:11", "uV:12;DUR:0.2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if _, ok := <-s.Packets(); ok {
		t.Fatal("expected channel closed at end of stream")
	}
	if !errors.Is(s.Err(), io.EOF) {
		t.Fatalf("expected io.EOF, got %v", s.Err())
	}
}

func TestSerialDropsOversizedLineAndKeepsReading(t *testing.T) {
	in := strings.Repeat("x", 2000) + "\nuV:10\nuV:11\n" + strings.Repeat("y", 3000)
	s := newSerial("noisy", io.NopCloser(strings.NewReader(in)), quiet())
	got := collect(t, s, 2)
	want := []string{"uV:10", "uV:11"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if _, ok := <-s.Packets(); ok {
		t.Fatal("expected unterminated oversized tail dropped")
	}
	if !errors.Is(s.Err(), io.EOF) {
		t.Fatalf("expected io.EOF, got %v", s.Err())
	}
}

func TestSerialAcceptsFullSizeDatagram(t *testing.T) {
	line := "uV:1;" + strings.Repeat("Z", MaxDatagram-5)
	s := newSerial("full", io.NopCloser(strings.NewReader(line+"\r\nuV:2\n")), quiet())
	got := collect(t, s, 2)
	if len(got) != 2 || got[0] != line || got[1] != "uV:2" {
		t.Fatalf("expected the %d-byte line and uV:2, got %d lines", MaxDatagram, len(got))
	}
}

func TestSerialCloseReportsClosed(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := newSerial("pipe", pr, quiet())
	if _, err := pw.Write([]byte("uV:1\n")); err != nil {
		t.Fatal(err)
	}
	if got := collect(t, s, 1); len(got) != 1 {
		t.Fatalf("expected one line before close, got %v", got)
	}
	s.Close()
	for range s.Packets() {
	}
	if !errors.Is(s.Err(), ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", s.Err())
	}
}
