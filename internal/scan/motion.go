package scan

import (
	"math"
	"sync"
)

// StabilityReader exposes the latest stability verdict
type StabilityReader interface {
	IsStable() bool
}

// StabilityTracker turns accelerometer samples into a binary stable flag.
// Observe is fed from the sensor goroutine while IsStable is read from the
// frame goroutine.
type StabilityTracker struct {
	mu        sync.Mutex
	threshold float64
	last      Sample
	hasLast   bool
	stable    bool
}

// NewStabilityTracker creates a tracker that starts out stable
func NewStabilityTracker(threshold float64) *StabilityTracker {
	return &StabilityTracker{
		threshold: threshold,
		stable:    true,
	}
}

// Observe records a sample. The first sample only sets the baseline.
func (t *StabilityTracker) Observe(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasLast {
		movement := math.Abs(s.X-t.last.X) + math.Abs(s.Y-t.last.Y) + math.Abs(s.Z-t.last.Z)
		t.stable = movement < t.threshold
	}
	t.last = s
	t.hasLast = true
}

// IsStable returns the verdict from the most recent pair of samples
func (t *StabilityTracker) IsStable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stable
}
