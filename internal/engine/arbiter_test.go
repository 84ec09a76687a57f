package engine

import (
	"testing"
	"time"
)

func newTestArbiter() (*Arbiter, *History) {
	h := NewHistory(DefaultHistorySize)
	return NewArbiter(h, DefaultRepeatWindow, DefaultNoteDuration, DefaultMaxDuration), h
}

func intp(v int) *int { return &v }

func TestArbiterSuppressesWithoutNote(t *testing.T) {
	a, h := newTestArbiter()
	if d := a.Decide(nil, f64(1)); d.Play {
		t.Fatal("expected no note hint to suppress")
	}
	if h.Len() != 0 {
		t.Fatalf("expected history untouched, got %d entries", h.Len())
	}
}

func TestArbiterAntiRepetition(t *testing.T) {
	a, h := newTestArbiter()
	for n := 0; n < 3; n++ {
		if d := a.Decide(intp(60), nil); !d.Play {
			t.Fatalf("expected play %d of note 60 to be allowed", n+1)
		}
	}
	if d := a.Decide(intp(60), nil); d.Play {
		t.Fatal("expected fourth consecutive 60 to be suppressed")
	}
	if h.Len() != 3 {
		t.Fatalf("expected suppressed note not recorded, history has %d", h.Len())
	}
	if d := a.Decide(intp(61), nil); !d.Play {
		t.Fatal("expected 61 to be allowed after suppressed 60")
	}
	if d := a.Decide(intp(60), nil); !d.Play {
		t.Fatal("expected 60 to be allowed again once the run is broken")
	}
}

func TestArbiterFewerThanWindowAlwaysAllowed(t *testing.T) {
	a, _ := newTestArbiter()
	a.Decide(intp(60), nil)
	if !a.CanPlay(60) {
		t.Fatal("expected single-entry history to allow a repeat")
	}
	a.Decide(intp(60), nil)
	if !a.CanPlay(60) {
		t.Fatal("expected two-entry history to allow a repeat")
	}
}

func TestArbiterDurationResolution(t *testing.T) {
	a, _ := newTestArbiter()
	if d := a.Decide(intp(60), nil); d.Duration != 180*time.Millisecond {
		t.Fatalf("expected default 180ms, got %v", d.Duration)
	}
	if d := a.Decide(intp(61), f64(0.5)); d.Duration != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", d.Duration)
	}
	if d := a.Decide(intp(62), f64(10)); d.Duration != 4000*time.Millisecond {
		t.Fatalf("expected 10s hint clamped to 4000ms, got %v", d.Duration)
	}
	if d := a.Decide(intp(63), f64(1e300)); d.Duration != 4000*time.Millisecond {
		t.Fatalf("expected huge hint clamped to 4000ms, got %v", d.Duration)
	}
	if d := a.Decide(intp(64), f64(0.0019)); d.Duration != time.Millisecond {
		t.Fatalf("expected truncation to whole milliseconds, got %v", d.Duration)
	}
}
