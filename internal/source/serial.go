package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaud matches the sensor bridge firmware.
const DefaultBaud = 115200

// Serial reads newline-terminated datagrams from a serial device.
type Serial struct {
	name string
	port io.ReadCloser
	ch   chan []byte
	log  *slog.Logger

	mu     sync.Mutex
	err    error
	closed bool
	once   sync.Once
}

// OpenSerial opens the named serial device at the given baud rate.
func OpenSerial(name string, baud int, logger *slog.Logger) (*Serial, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s at %d baud: %w", name, baud, err)
	}
	logger.Info("serial: port opened", "device", name, "baud", baud)
	return newSerial(name, p, logger), nil
}

func newSerial(name string, rc io.ReadCloser, logger *slog.Logger) *Serial {
	s := &Serial{name: name, port: rc, ch: make(chan []byte, DefaultQueueSize), log: logger}
	go s.readLoop()
	return s
}

func (s *Serial) readLoop() {
	defer close(s.ch)
	// Room for a full datagram plus a CRLF terminator.
	r := bufio.NewReaderSize(s.port, MaxDatagram+2)
	var (
		err       error
		oversized bool
	)
	for {
		var line []byte
		line, err = r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if !oversized {
				s.log.Warn("serial: line exceeds datagram size, dropped", "device", s.name, "max", MaxDatagram)
			}
			oversized = true
			continue
		}
		if oversized {
			// Tail of the dropped line.
			oversized = false
		} else if line = bytes.TrimSpace(line); len(line) > 0 {
			s.ch <- append([]byte(nil), line...)
		}
		if err != nil {
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		s.err = ErrClosed
	case errors.Is(err, io.EOF):
		s.err = io.EOF
	default:
		s.log.Error("serial: read error", "device", s.name, "err", err)
		s.err = err
	}
}

// Packets implements Source.
func (s *Serial) Packets() <-chan []byte { return s.ch }

// Err implements Source.
func (s *Serial) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the underlying serial port.
func (s *Serial) Close() error {
	var err error
	s.once.Do(func() {
		s.log.Info("serial: closing port", "device", s.name)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.port.Close()
	})
	return err
}

func (s *Serial) String() string { return "serial://" + s.name }
