package scan

import (
	"image"
	"time"
)

// OCRGate decides when a code-free frame is worth sending to remote text
// recognition: the device must be still and the previous dispatch must be
// at least one interval old.
type OCRGate struct {
	interval    time.Duration
	widthRatio  float64
	heightRatio float64

	lastDispatch time.Time
	dispatched   bool
}

// NewOCRGate creates a gate; the first eligible frame is dispatched immediately
func NewOCRGate(interval time.Duration, widthRatio, heightRatio float64) *OCRGate {
	return &OCRGate{
		interval:    interval,
		widthRatio:  widthRatio,
		heightRatio: heightRatio,
	}
}

// ShouldDispatch reports whether to dispatch at now and records the dispatch
func (g *OCRGate) ShouldDispatch(now time.Time, stable bool) bool {
	if !stable {
		return false
	}
	if g.dispatched && now.Sub(g.lastDispatch) < g.interval {
		return false
	}
	g.lastDispatch = now
	g.dispatched = true
	return true
}

// Crop prepares the frame image for recognition
func (g *OCRGate) Crop(f Frame) (image.Image, error) {
	return CropForOCR(f, g.widthRatio, g.heightRatio)
}
