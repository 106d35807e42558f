package scan

import (
	"image"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Detector finds machine-readable codes in an image
type Detector interface {
	Detect(img image.Image) ([]DetectedCode, error)
}

// Logger is the subset of the structured logger used by the pipeline
type Logger interface {
	Debug(message string, fields ...map[string]interface{})
	Info(message string, fields ...map[string]interface{})
	Error(message string, err error, fields ...map[string]interface{})
}

// Stats counts what the pipeline did with the frames it was given
type Stats struct {
	Received      int64 `json:"received"`
	Admitted      int64 `json:"admitted"`
	WithCodes     int64 `json:"withCodes"`
	DetectErrors  int64 `json:"detectErrors"`
	Suppressed    int64 `json:"suppressed"`
	OCRDispatches int64 `json:"ocrDispatches"`
	Published     int64 `json:"published"`

	Debounce map[string]interface{} `json:"debounce,omitempty"`
}

// Pipeline decides, frame by frame, what the scanner has seen.
// It is not safe for concurrent use; Session serializes access to it.
type Pipeline struct {
	cfg Config

	gate        *FrameGate
	debounce    *DebounceGuard
	accumulator *Accumulator
	ocr         *OCRGate
	selection   SelectionResolver

	detector  Detector
	stability StabilityReader
	sink      Sink
	logger    Logger

	received, admitted, withCodes, detectErrors atomic.Int64
	suppressed, ocrDispatches, published        atomic.Int64
}

// NewPipeline creates a pipeline for a session started at start
func NewPipeline(cfg Config, start time.Time, detector Detector, stability StabilityReader, sink Sink) *Pipeline {
	debounce := NewDebounceGuard(cfg.DebounceInterval)
	return &Pipeline{
		cfg:         cfg,
		gate:        NewFrameGate(start, cfg.InitialDelay, cfg.VisionInterval),
		debounce:    debounce,
		accumulator: NewAccumulator(cfg.AccumulationWindow, debounce),
		ocr:         NewOCRGate(cfg.OCRInterval, cfg.CropWidthRatio, cfg.CropHeightRatio),
		detector:    detector,
		stability:   stability,
		sink:        sink,
	}
}

// SetLogger attaches a logger for debug tracing
func (p *Pipeline) SetLogger(l Logger) {
	p.logger = l
}

// Process runs one camera frame through the pipeline. When the frame leads
// to a decision the outcome is published and returned with true.
func (p *Pipeline) Process(f Frame) (Outcome, bool) {
	p.received.Add(1)
	now := f.CapturedAt

	if !p.gate.Admit(now) {
		return None(), false
	}
	p.admitted.Add(1)

	codes, err := p.detector.Detect(f.Image)
	if err != nil {
		// A failed detection is a miss, never an error for the user
		p.detectErrors.Add(1)
		p.debug("code detection failed", map[string]interface{}{"error": err.Error()})
		codes = nil
	}

	if len(codes) > 0 {
		p.withCodes.Add(1)
		decision := p.accumulator.Observe(codes, now)
		switch decision.State {
		case Resolved:
			if decision.Outcome.Kind == OutcomeMultipleCodes {
				// The codes on screen stay selectable until the user picks one
				if p.selection.HasPending() {
					p.debug("selection pending, multiple codes ignored", nil)
					return None(), false
				}
				p.selection.SetPending(decision.Outcome.Codes)
			} else {
				p.selection.Clear()
			}
			return p.publish(decision.Outcome), true
		case Suppressed:
			p.suppressed.Add(1)
			p.debug("barcode suppressed by debounce", nil)
		}
		return None(), false
	}

	p.accumulator.Observe(nil, now)

	if !p.ocr.ShouldDispatch(now, p.isStable()) {
		return None(), false
	}

	cropped, err := p.ocr.Crop(f)
	if err != nil {
		p.debug("ocr crop failed", map[string]interface{}{"error": err.Error()})
		return None(), false
	}
	p.ocrDispatches.Add(1)
	return p.publish(NeedsRemoteClassification(cropped, now)), true
}

// ResetDebounce lets the same barcode be reported again immediately and
// drops any pending selection
func (p *Pipeline) ResetDebounce() {
	p.debounce.Reset()
	p.selection.Clear()
}

// PendingSelection returns the codes awaiting a user choice
func (p *Pipeline) PendingSelection() []DetectedCode {
	return p.selection.Pending()
}

// ResolveSelection publishes the outcome for the pending code with the given id
func (p *Pipeline) ResolveSelection(id uuid.UUID, now time.Time) (Outcome, error) {
	chosen, err := p.selection.Lookup(id)
	if err != nil {
		return None(), err
	}
	return p.publish(p.selection.Resolve(chosen, now)), nil
}

// Stats returns a snapshot of the pipeline counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:      p.received.Load(),
		Admitted:      p.admitted.Load(),
		WithCodes:     p.withCodes.Load(),
		DetectErrors:  p.detectErrors.Load(),
		Suppressed:    p.suppressed.Load(),
		OCRDispatches: p.ocrDispatches.Load(),
		Published:     p.published.Load(),
		Debounce:      p.debounce.GetStats(),
	}
}

func (p *Pipeline) publish(o Outcome) Outcome {
	p.published.Add(1)
	if p.sink != nil {
		p.sink.Publish(o)
	}
	return o
}

func (p *Pipeline) isStable() bool {
	if p.stability == nil {
		return true
	}
	return p.stability.IsStable()
}

func (p *Pipeline) debug(msg string, fields map[string]interface{}) {
	if p.logger == nil {
		return
	}
	if fields == nil {
		p.logger.Debug(msg)
		return
	}
	p.logger.Debug(msg, fields)
}
