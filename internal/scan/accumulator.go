package scan

import "time"

// DecisionState is the state of the accumulator after a frame
type DecisionState int

const (
	// StillAccumulating means the window is empty or not yet closed
	StillAccumulating DecisionState = iota
	// Resolved means the window closed and Outcome must be published
	Resolved
	// Suppressed means the window closed on a debounced barcode
	Suppressed
)

// Decision is returned by Accumulator.Observe
type Decision struct {
	State   DecisionState
	Outcome Outcome
}

// Accumulator merges detections over a short window so that codes found on
// slightly different frames are reported together.
type Accumulator struct {
	window   time.Duration
	debounce *DebounceGuard

	open      bool
	startedAt time.Time
	order     []string
	codes     map[string]DetectedCode
}

// NewAccumulator creates an accumulator closing after window
func NewAccumulator(window time.Duration, debounce *DebounceGuard) *Accumulator {
	return &Accumulator{
		window:   window,
		debounce: debounce,
		codes:    make(map[string]DetectedCode),
	}
}

// Observe folds the codes detected on one admitted frame into the window.
// An empty detection clears any open window.
func (a *Accumulator) Observe(detected []DetectedCode, now time.Time) Decision {
	if len(detected) == 0 {
		a.clear()
		return Decision{State: StillAccumulating}
	}

	if !a.open {
		a.open = true
		a.startedAt = now
	}

	for _, code := range detected {
		if _, seen := a.codes[code.Payload]; !seen {
			a.order = append(a.order, code.Payload)
		}
		a.codes[code.Payload] = code
	}

	if now.Sub(a.startedAt) < a.window {
		return Decision{State: StillAccumulating}
	}

	snapshot := a.snapshot()
	a.clear()

	if len(snapshot) > 1 {
		return Decision{State: Resolved, Outcome: MultipleCodes(snapshot, now)}
	}

	code := snapshot[0]
	if code.Kind == KindQR {
		return Decision{State: Resolved, Outcome: QRCode(code.Payload, now)}
	}

	key := BarcodeKey(code.Payload)
	if a.debounce.ShouldSuppress(key, now) {
		return Decision{State: Suppressed}
	}
	a.debounce.RecordEmission(key, now)
	return Decision{State: Resolved, Outcome: Barcode(code.Payload, now)}
}

// Pending returns the number of distinct payloads in the open window
func (a *Accumulator) Pending() int {
	return len(a.order)
}

func (a *Accumulator) snapshot() []DetectedCode {
	out := make([]DetectedCode, 0, len(a.order))
	for _, payload := range a.order {
		out = append(out, a.codes[payload])
	}
	return out
}

func (a *Accumulator) clear() {
	a.open = false
	a.startedAt = time.Time{}
	a.order = a.order[:0]
	for k := range a.codes {
		delete(a.codes, k)
	}
}
