package scan

import (
	"fmt"
	"image"
	"time"
)

// Config holds the timing and threshold constants of the pipeline
type Config struct {
	InitialDelay       time.Duration
	VisionInterval     time.Duration
	OCRInterval        time.Duration
	DebounceInterval   time.Duration
	AccumulationWindow time.Duration
	StabilityThreshold float64

	// Fractions of the upright frame kept by the OCR crop
	CropWidthRatio  float64
	CropHeightRatio float64

	// Orientation of camera buffers, stamped on frames by NewFrame
	Rotation Rotation
}

// NewFrame wraps a camera buffer captured at at with the configured rotation
func (c Config) NewFrame(img image.Image, at time.Time) Frame {
	return Frame{Image: img, CapturedAt: at, Rotation: c.Rotation}
}

// DefaultConfig returns the tuned constants of the scanner
func DefaultConfig() Config {
	return Config{
		InitialDelay:       500 * time.Millisecond,
		VisionInterval:     150 * time.Millisecond,
		OCRInterval:        1500 * time.Millisecond,
		DebounceInterval:   3 * time.Second,
		AccumulationWindow: 500 * time.Millisecond,
		StabilityThreshold: 0.4,
		CropWidthRatio:     0.95,
		CropHeightRatio:    0.85,
		Rotation:           Rotate90,
	}
}

// Validate checks the configuration for unusable values
func (c Config) Validate() error {
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial delay must not be negative: %v", c.InitialDelay)
	}
	durations := map[string]time.Duration{
		"vision interval":     c.VisionInterval,
		"ocr interval":        c.OCRInterval,
		"debounce interval":   c.DebounceInterval,
		"accumulation window": c.AccumulationWindow,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive: %v", name, d)
		}
	}
	if c.StabilityThreshold <= 0 {
		return fmt.Errorf("stability threshold must be positive: %v", c.StabilityThreshold)
	}
	if c.CropWidthRatio <= 0 || c.CropWidthRatio > 1 {
		return fmt.Errorf("crop width ratio must be in (0,1]: %v", c.CropWidthRatio)
	}
	if c.CropHeightRatio <= 0 || c.CropHeightRatio > 1 {
		return fmt.Errorf("crop height ratio must be in (0,1]: %v", c.CropHeightRatio)
	}
	if _, err := ParseRotation(int(c.Rotation)); err != nil {
		return err
	}
	return nil
}
