package monitor

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/chase3718/sonic-plants/internal/recorder"
)

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/midi", requireJSON(s.handleMIDI))
	s.mux.HandleFunc("POST /api/record/start", requireJSON(s.handleRecordStart))
	s.mux.HandleFunc("POST /api/record/stop", requireJSON(s.handleRecordStop))
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /ws", s.handleFeed)
}

// requireJSON rejects control requests that are not application/json, so a
// browser cannot issue them as simple cross-origin form posts.
func requireJSON(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctrl.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleMIDI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, `expected {"enabled": true|false}`, http.StatusBadRequest)
		return
	}
	st, err := s.ctrl.SetMIDIEnabled(r.Context(), *req.Enabled)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	// The body is optional.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	sess, err := s.ctrl.StartRecording(r.Context(), req.Path)
	switch {
	case errors.Is(err, recorder.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, recorder.ErrAlreadyRecording), errors.Is(err, fs.ErrExist):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, sess)
	}
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ctrl.StopRecording(r.Context())
	switch {
	case errors.Is(err, recorder.ErrNotRecording):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, sess)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.ctrl.History(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, map[string]any{"samples": len(h), "values": h})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("monitor: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.subscribe()
	defer cancel()
	s.log.Info("monitor: feed client connected", "remote", r.RemoteAddr)

	// Drain incoming messages (ping/pong, close frames) without blocking.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.log.Info("monitor: feed client disconnected", "remote", r.RemoteAddr)
			return
		case data, ok := <-ch:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
