package scan

import "time"

// FrameGate admits camera frames for analysis.
// Frames are rejected during the warm-up after session start and then
// throttled to at most one per interval. Rejected frames cost nothing.
type FrameGate struct {
	sessionStart time.Time
	initialDelay time.Duration
	interval     time.Duration

	lastAdmitted time.Time
	admitted     bool
}

// NewFrameGate creates a gate for a session started at start
func NewFrameGate(start time.Time, initialDelay, interval time.Duration) *FrameGate {
	return &FrameGate{
		sessionStart: start,
		initialDelay: initialDelay,
		interval:     interval,
	}
}

// Admit reports whether a frame captured at now should be analyzed
func (g *FrameGate) Admit(now time.Time) bool {
	if now.Sub(g.sessionStart) < g.initialDelay {
		return false
	}
	if g.admitted && now.Sub(g.lastAdmitted) < g.interval {
		return false
	}
	g.lastAdmitted = now
	g.admitted = true
	return true
}
