package engine

// Smoother is a fixed-width moving average over raw amplitudes.
type Smoother struct {
	window int
	buf    []float64
}

// NewSmoother returns a smoother averaging the last window samples.
// A window below 1 is treated as 1.
func NewSmoother(window int) *Smoother {
	if window < 1 {
		window = 1
	}
	return &Smoother{window: window, buf: make([]float64, 0, window)}
}

// Process appends v and returns the mean of the samples currently held,
// which is fewer than window until the buffer fills.
func (s *Smoother) Process(v float64) float64 {
	if len(s.buf) == s.window {
		copy(s.buf, s.buf[1:])
		s.buf = s.buf[:s.window-1]
	}
	s.buf = append(s.buf, v)

	sum := 0.0
	for _, x := range s.buf {
		sum += x
	}
	return sum / float64(len(s.buf))
}

// Len reports how many samples are in the window.
func (s *Smoother) Len() int { return len(s.buf) }
