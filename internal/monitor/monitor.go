// Package monitor serves the control surface and the live plot feed over
// HTTP.  It never touches engine state directly: every request goes through
// a Controller, which the run loop serves one call at a time.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chase3718/sonic-plants/internal/engine"
	"github.com/chase3718/sonic-plants/internal/recorder"
)

// clientBuffer is how many frames may queue for one WebSocket client before
// new frames are dropped for it.
const clientBuffer = 4

// Status is the externally visible state of the running system.
type Status struct {
	engine.Stats
	Source          string            `json:"source"`
	OutputPort      string            `json:"output_port,omitempty"`
	OutputConnected bool              `json:"output_connected"`
	Recording       *recorder.Session `json:"recording,omitempty"`
	LastRecording   *recorder.Session `json:"last_recording,omitempty"`
}

// Frame is pushed to every WebSocket client on each display refresh.
type Frame struct {
	Time   time.Time `json:"time"`
	Window []float64 `json:"window"`
	Status Status    `json:"status"`
}

// Controller performs control actions on behalf of HTTP clients.
type Controller interface {
	Status(ctx context.Context) (Status, error)
	SetMIDIEnabled(ctx context.Context, on bool) (Status, error)
	StartRecording(ctx context.Context, path string) (recorder.Session, error)
	StopRecording(ctx context.Context) (recorder.Session, error)
	History(ctx context.Context) ([]float64, error)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
	// Plot front ends are served from anywhere on the local machine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the HTTP monitor.
type Server struct {
	ctrl Controller
	log  *slog.Logger
	mux  *http.ServeMux

	srv *http.Server
	ln  net.Listener

	subMu sync.Mutex
	subs  map[chan []byte]struct{}
}

// New builds a server; call Start to listen.
func New(ctrl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ctrl: ctrl,
		log:  logger,
		mux:  http.NewServeMux(),
		subs: make(map[chan []byte]struct{}),
	}
	s.routes()
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on addr and serves until Close.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("monitor: listen %s: %w", addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("monitor: serve failed", "err", err)
		}
	}()
	s.log.Info("monitor: listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops the HTTP server and disconnects feed clients.
func (s *Server) Close(ctx context.Context) error {
	s.subMu.Lock()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	s.subMu.Unlock()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Publish fans a frame out to feed clients.  Clients that are behind lose
// the frame; Publish never blocks.
func (s *Server) Publish(f Frame) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		s.log.Error("monitor: encode frame failed", "err", err)
		return
	}
	for ch := range s.subs {
		select {
		case ch <- data:
		default:
			s.log.Debug("monitor: client behind, frame dropped")
		}
	}
}

// Clients returns the number of connected feed clients.
func (s *Server) Clients() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

func (s *Server) subscribe() (chan []byte, func()) {
	ch := make(chan []byte, clientBuffer)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}
