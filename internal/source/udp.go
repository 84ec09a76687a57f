package source

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// DefaultUDPAddr is where the sensor bridge sends its datagrams.
const DefaultUDPAddr = "0.0.0.0:5005"

// UDP receives datagrams on a bound socket.
type UDP struct {
	conn *net.UDPConn
	ch   chan []byte
	log  *slog.Logger

	mu   sync.Mutex
	err  error
	once sync.Once
}

// ListenUDP binds addr and starts reading.
func ListenUDP(addr string, logger *slog.Logger) (*UDP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("source: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, fmt.Errorf("source: listen %q: %w", addr, err)
	}
	u := &UDP{conn: conn, ch: make(chan []byte, DefaultQueueSize), log: logger}
	logger.Info("udp: listening", "addr", conn.LocalAddr().String())
	go u.readLoop()
	return u, nil
}

func (u *UDP) readLoop() {
	defer close(u.ch)
	buf := make([]byte, MaxDatagram)
	for {
		n, from, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				u.setErr(ErrClosed)
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			u.log.Error("udp: read failed", "err", err)
			u.setErr(err)
			return
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		u.log.Debug("udp: datagram", "from", from.String(), "bytes", n)
		u.ch <- data
	}
}

func (u *UDP) setErr(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err == nil {
		u.err = err
	}
}

// Packets implements Source.
func (u *UDP) Packets() <-chan []byte { return u.ch }

// Err implements Source.
func (u *UDP) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Addr returns the bound local address.
func (u *UDP) Addr() net.Addr { return u.conn.LocalAddr() }

// Close stops the reader.  Datagrams already queued stay readable.
func (u *UDP) Close() error {
	var err error
	u.once.Do(func() {
		u.log.Info("udp: closing socket")
		err = u.conn.Close()
	})
	return err
}

func (u *UDP) String() string { return "udp://" + u.conn.LocalAddr().String() }
