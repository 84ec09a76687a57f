// Package display keeps the series a plot front end renders: the full
// sample history (bounded) and a short rolling window.
package display

import (
	"math"
	"time"
)

const (
	DefaultSampleRate    = 200 // Hz
	DefaultWindowSeconds = 10
	DefaultHistoryHours  = 3
	DefaultHistoryWidth  = 5
	DefaultWindowWidth   = 7
)

// Options sizes the buffers.  Zero fields take the defaults.
type Options struct {
	SampleRate    int
	WindowSeconds int
	HistoryHours  float64
	HistoryWidth  int
	WindowWidth   int
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.WindowSeconds <= 0 {
		o.WindowSeconds = DefaultWindowSeconds
	}
	if o.HistoryHours <= 0 {
		o.HistoryHours = DefaultHistoryHours
	}
	if o.HistoryWidth <= 0 {
		o.HistoryWidth = DefaultHistoryWidth
	}
	if o.WindowWidth <= 0 {
		o.WindowWidth = DefaultWindowWidth
	}
	return o
}

// Buffers holds the raw display series.
type Buffers struct {
	opts    Options
	history *Ring
	window  *Ring
}

// New sizes the history for HistoryHours and the window for WindowSeconds
// at SampleRate.  The window starts full of zeros so it always has its
// fixed length.
func New(opts Options) *Buffers {
	opts = opts.withDefaults()
	histCap := int(math.Round(opts.HistoryHours * float64(time.Hour/time.Second) * float64(opts.SampleRate)))
	winCap := opts.WindowSeconds * opts.SampleRate
	w := NewRing(winCap)
	for i := 0; i < winCap; i++ {
		w.Push(0)
	}
	return &Buffers{opts: opts, history: NewRing(histCap), window: w}
}

// Add records one raw sample in both series.
func (b *Buffers) Add(v float64) {
	b.history.Push(v)
	b.window.Push(v)
}

// History returns the display-smoothed full history.
func (b *Buffers) History() []float64 {
	return MovingAverage(b.history.Values(), b.opts.HistoryWidth)
}

// Window returns the display-smoothed rolling window.
func (b *Buffers) Window() []float64 {
	return MovingAverage(b.window.Values(), b.opts.WindowWidth)
}

// HistoryLen is the number of retained history samples.
func (b *Buffers) HistoryLen() int { return b.history.Len() }

// HistoryCap is the retention cap.
func (b *Buffers) HistoryCap() int { return b.history.Cap() }

// WindowLen is the fixed window length.
func (b *Buffers) WindowLen() int { return b.window.Cap() }

// MovingAverage returns the centred w-point mean of x with zero padding at
// both ends, the same length as x.  Inputs shorter than w are returned as a
// copy, unsmoothed.
func MovingAverage(x []float64, w int) []float64 {
	out := make([]float64, len(x))
	if w <= 1 || len(x) < w {
		copy(out, x)
		return out
	}
	// out[i] averages x[i-left .. i+right], the centre slice of the full
	// convolution.
	right := (w - 1) / 2
	left := w - 1 - right
	sum := 0.0
	for k := 0; k <= right && k < len(x); k++ {
		sum += x[k]
	}
	inv := 1 / float64(w)
	for i := range x {
		out[i] = sum * inv
		if j := i + right + 1; j < len(x) {
			sum += x[j]
		}
		if j := i - left; j >= 0 {
			sum -= x[j]
		}
	}
	return out
}
