package engine

import (
	"math"
	"time"
)

// Detector fires when the smoothed signal jumps by at least the active
// threshold, no sooner than minInterval after the previous event.
type Detector struct {
	threshold   float64
	minInterval time.Duration

	last      float64
	hasLast   bool
	lastEvent time.Time
	hasEvent  bool
}

// NewDetector returns a detector with the given starting threshold (µV) and
// minimum inter-event interval.
func NewDetector(threshold float64, minInterval time.Duration) *Detector {
	if !validThreshold(threshold) {
		threshold = DefaultThreshold
	}
	if minInterval < 0 {
		minInterval = 0
	}
	return &Detector{threshold: threshold, minInterval: minInterval}
}

// Evaluate feeds one smoothed value.  A non-nil override replaces the active
// threshold before the comparison.  The first call only records a baseline.
func (d *Detector) Evaluate(smoothed float64, override *float64, now time.Time) bool {
	if override != nil && validThreshold(*override) {
		d.threshold = *override
	}
	prev, hadPrev := d.last, d.hasLast
	d.last, d.hasLast = smoothed, true
	if !hadPrev {
		return false
	}

	if math.Abs(smoothed-prev) < d.threshold {
		return false
	}
	// A clock that steps backwards yields a non-positive gap, so lastEvent
	// only ever moves forward.
	if d.hasEvent && now.Sub(d.lastEvent) <= d.minInterval {
		return false
	}
	d.lastEvent, d.hasEvent = now, true
	return true
}

// Threshold returns the active threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// LastEvent returns the time of the last fired event and whether one exists.
func (d *Detector) LastEvent() (time.Time, bool) { return d.lastEvent, d.hasEvent }

func validThreshold(v float64) bool {
	return finite(v) && v > 0
}
