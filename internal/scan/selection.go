package scan

import (
	"time"

	"github.com/google/uuid"
)

// SelectionResolver holds the codes of the last MultipleCodes outcome until
// the user picks one.
type SelectionResolver struct {
	pending []DetectedCode
}

// SetPending replaces the pending set
func (r *SelectionResolver) SetPending(codes []DetectedCode) {
	r.pending = append(r.pending[:0], codes...)
}

// HasPending reports whether a choice is outstanding
func (r *SelectionResolver) HasPending() bool {
	return len(r.pending) > 0
}

// Clear drops the pending set
func (r *SelectionResolver) Clear() {
	r.pending = r.pending[:0]
}

// Pending returns a copy of the pending set
func (r *SelectionResolver) Pending() []DetectedCode {
	out := make([]DetectedCode, len(r.pending))
	copy(out, r.pending)
	return out
}

// Lookup finds a pending code by identity
func (r *SelectionResolver) Lookup(id uuid.UUID) (DetectedCode, error) {
	for _, c := range r.pending {
		if c.ID == id {
			return c, nil
		}
	}
	return DetectedCode{}, ErrSelectionNotPending
}

// Resolve turns the chosen code into a single-code outcome and clears the
// pending set. No debounce is applied to an explicit choice.
func (r *SelectionResolver) Resolve(chosen DetectedCode, now time.Time) Outcome {
	r.Clear()

	if chosen.Kind == KindQR {
		return QRCode(chosen.Payload, now)
	}
	return Barcode(chosen.Payload, now)
}
