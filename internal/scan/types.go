package scan

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a detected machine-readable code
type Kind int

const (
	KindQR Kind = iota
	KindBarcode
)

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case KindQR:
		return "qr"
	case KindBarcode:
		return "barcode"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its wire name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a wire name written by MarshalText
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "qr":
		*k = KindQR
	case "barcode":
		*k = KindBarcode
	default:
		return fmt.Errorf("unknown code kind %q", text)
	}
	return nil
}

// Rect is a bounding box normalized to [0,1] relative to the frame, origin top-left
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DetectedCode is one code found by the local detector.
// ID is an opaque identity used only to refer to the code during selection.
type DetectedCode struct {
	ID          uuid.UUID `json:"id"`
	Kind        Kind      `json:"kind"`
	Format      string    `json:"format"`
	Payload     string    `json:"payload"`
	BoundingBox Rect      `json:"boundingBox"`
}

// Rotation is the clockwise rotation that brings a sensor buffer upright
type Rotation int

const (
	RotateNone Rotation = 0
	Rotate90   Rotation = 90
	Rotate180  Rotation = 180
	Rotate270  Rotation = 270
)

// ParseRotation converts degrees to a Rotation
func ParseRotation(degrees int) (Rotation, error) {
	switch ((degrees % 360) + 360) % 360 {
	case 0:
		return RotateNone, nil
	case 90:
		return Rotate90, nil
	case 180:
		return Rotate180, nil
	case 270:
		return Rotate270, nil
	default:
		return RotateNone, ErrInvalidRotation
	}
}

// Frame is a single camera image with its capture timestamp
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
	// Rotation applied to Image to obtain the upright picture the user sees
	Rotation Rotation
}

// Sample is one 3-axis accelerometer reading in g units
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Clock abstracts wall time for the session
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time { return time.Now() }

// Common errors
var (
	ErrCameraUnavailable   = errors.New("camera unavailable or permission denied")
	ErrMotionUnavailable   = errors.New("motion sensor unavailable")
	ErrSelectionNotPending = errors.New("code is not part of the pending selection")
	ErrSessionClosed       = errors.New("scan session closed")
	ErrInvalidImage        = errors.New("invalid image")
	ErrInvalidRotation     = errors.New("rotation must be a multiple of 90 degrees")
	ErrNoCodeFound         = errors.New("no code found")
)
