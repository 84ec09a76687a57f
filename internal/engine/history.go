package engine

// History is a bounded ring of recently played note numbers, oldest first.
type History struct {
	buf   []int
	start int
	n     int
}

// NewHistory returns a ring holding at most capacity notes (minimum 1).
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]int, capacity)}
}

// Push appends note, dropping the oldest entry when full.
func (h *History) Push(note int) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = note
		h.n++
		return
	}
	h.buf[h.start] = note
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored notes.
func (h *History) Len() int { return h.n }

// Cap returns the ring capacity.
func (h *History) Cap() int { return len(h.buf) }

// Last returns up to k most recent notes, oldest first.
func (h *History) Last(k int) []int {
	if k > h.n {
		k = h.n
	}
	if k <= 0 {
		return nil
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = h.buf[(h.start+h.n-k+i)%len(h.buf)]
	}
	return out
}
