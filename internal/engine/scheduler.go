package engine

import (
	"container/heap"
	"time"
)

// noteOffTask is a deferred note-off.  gen ties it to the ActiveNote it was
// scheduled for.
type noteOffTask struct {
	at   time.Time
	seq  uint64
	note int
	gen  uint64
}

// -------------------- Min-Heap --------------------

type taskHeap []noteOffTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(noteOffTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Scheduler is a queue of deferred note-offs ordered by fire time, ties
// broken by insertion order.  It is drained explicitly by the owner's tick.
type Scheduler struct {
	q   taskHeap
	seq uint64
}

// Schedule queues a note-off for note at the given time.
func (s *Scheduler) Schedule(at time.Time, note int, gen uint64) {
	s.seq++
	heap.Push(&s.q, noteOffTask{at: at, seq: s.seq, note: note, gen: gen})
}

// PopDue removes and returns every task due at or before t, earliest first.
func (s *Scheduler) PopDue(t time.Time) []noteOffTask {
	var due []noteOffTask
	for s.q.Len() > 0 && !t.Before(s.q[0].at) {
		due = append(due, heap.Pop(&s.q).(noteOffTask))
	}
	return due
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int { return s.q.Len() }

// Next returns the fire time of the earliest pending task.
func (s *Scheduler) Next() (time.Time, bool) {
	if s.q.Len() == 0 {
		return time.Time{}, false
	}
	return s.q[0].at, true
}
