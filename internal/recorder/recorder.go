// Package recorder writes raw samples to CSV while a recording session is
// open.
package recorder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlreadyRecording = errors.New("recorder: already recording")
	ErrNotRecording     = errors.New("recorder: not recording")
	ErrInvalidName      = errors.New("recorder: file name must be a plain name inside the recording directory")
)

// Header is the first CSV row.
var Header = []string{"timestamp", "uV"}

// DefaultFileName returns biosignal_YYYYMMDD_HHMMSS.csv for t.
func DefaultFileName(t time.Time) string {
	return "biosignal_" + t.Format("20060102_150405") + ".csv"
}

// Session describes a recording, running or finished.
type Session struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	Started time.Time `json:"started"`
	Rows    int       `json:"rows"`
	Failed  string    `json:"failed,omitempty"`
}

// Recorder owns at most one open CSV file.
type Recorder struct {
	dir string
	log *slog.Logger

	f       *os.File
	w       *csv.Writer
	session Session
	last    *Session
}

// New returns an idle recorder writing into dir.
func New(dir string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{dir: dir, log: logger}
}

// ValidName reports whether name may be used as a recording file name: a
// single path element, no separators, not "." or "..".
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return false
	}
	return filepath.VolumeName(name) == ""
}

// Start creates name (or a timestamped default name when empty) inside the
// recording directory, writes the header and begins a session.  Existing
// files are never overwritten.
func (r *Recorder) Start(name string, now time.Time) (Session, error) {
	if r.f != nil {
		return r.session, ErrAlreadyRecording
	}
	if name == "" {
		name = DefaultFileName(now)
	}
	if !ValidName(name) {
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	path := name
	if r.dir != "" {
		if err := os.MkdirAll(r.dir, 0o755); err != nil {
			return Session{}, fmt.Errorf("recorder: create dir %s: %w", r.dir, err)
		}
		path = filepath.Join(r.dir, name)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Session{}, fmt.Errorf("recorder: create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return Session{}, fmt.Errorf("recorder: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return Session{}, fmt.Errorf("recorder: write header: %w", err)
	}

	r.f, r.w = f, w
	r.session = Session{ID: uuid.NewString(), Path: path, Started: now}
	r.log.Info("recorder: started", "session", r.session.ID, "path", path)
	return r.session, nil
}

// Append writes one (elapsed seconds, amplitude) row.  Rows are buffered
// until Flush.  A buffered write error ends the session.
func (r *Recorder) Append(amplitude float64, now time.Time) error {
	if r.f == nil {
		return ErrNotRecording
	}
	elapsed := now.Sub(r.session.Started).Seconds()
	row := []string{
		strconv.FormatFloat(elapsed, 'f', -1, 64),
		strconv.FormatFloat(amplitude, 'f', -1, 64),
	}
	if err := r.w.Write(row); err != nil {
		return r.fail(err)
	}
	r.session.Rows++
	return nil
}

// Flush pushes buffered rows to the file.  On failure the session is
// stopped and marked failed; no further rows are accepted.
func (r *Recorder) Flush() error {
	if r.f == nil {
		return nil
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return r.fail(err)
	}
	return nil
}

// Stop flushes and closes the file.
func (r *Recorder) Stop() (Session, error) {
	if r.f == nil {
		return Session{}, ErrNotRecording
	}
	r.w.Flush()
	werr := r.w.Error()
	cerr := r.f.Close()
	s := r.session
	if err := errors.Join(werr, cerr); err != nil {
		s.Failed = err.Error()
		r.reset(s)
		r.log.Error("recorder: stop with error", "session", s.ID, "err", err)
		return s, fmt.Errorf("recorder: close %s: %w", s.Path, err)
	}
	r.reset(s)
	r.log.Info("recorder: stopped", "session", s.ID, "path", s.Path, "rows", s.Rows)
	return s, nil
}

func (r *Recorder) fail(err error) error {
	s := r.session
	s.Failed = err.Error()
	_ = r.f.Close()
	r.reset(s)
	r.log.Error("recorder: write failed, session stopped", "session", s.ID, "path", s.Path, "err", err)
	return fmt.Errorf("recorder: write %s: %w", s.Path, err)
}

func (r *Recorder) reset(last Session) {
	r.f, r.w = nil, nil
	r.session = Session{}
	r.last = &last
}

// Active reports whether a session is open.
func (r *Recorder) Active() bool { return r.f != nil }

// Current returns the open session.
func (r *Recorder) Current() (Session, bool) {
	if r.f == nil {
		return Session{}, false
	}
	return r.session, true
}

// Last returns the most recently finished session.
func (r *Recorder) Last() (Session, bool) {
	if r.last == nil {
		return Session{}, false
	}
	return *r.last, true
}
