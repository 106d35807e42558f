package scan

import (
	"image"
	"time"
)

// OutcomeKind tags the variant carried by an Outcome
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeQRCode
	OutcomeBarcode
	OutcomeMultipleCodes
	OutcomeNeedsRemoteClassification
)

// String returns the wire name of the outcome kind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeQRCode:
		return "qr_code"
	case OutcomeBarcode:
		return "barcode"
	case OutcomeMultipleCodes:
		return "multiple_codes"
	case OutcomeNeedsRemoteClassification:
		return "needs_remote_classification"
	default:
		return "none"
	}
}

// MarshalText encodes the outcome kind as its wire name
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a wire name; unknown names decode as OutcomeNone
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	for _, candidate := range []OutcomeKind{OutcomeQRCode, OutcomeBarcode, OutcomeMultipleCodes, OutcomeNeedsRemoteClassification} {
		if candidate.String() == string(text) {
			*k = candidate
			return nil
		}
	}
	*k = OutcomeNone
	return nil
}

// Outcome is the result of processing a frame, a tagged union:
//
//	OutcomeQRCode, OutcomeBarcode        Payload is set
//	OutcomeMultipleCodes                 Codes holds two or more codes in discovery order
//	OutcomeNeedsRemoteClassification     Image holds the cropped, upright picture
type Outcome struct {
	Kind    OutcomeKind    `json:"kind"`
	Payload string         `json:"payload,omitempty"`
	Codes   []DetectedCode `json:"codes,omitempty"`
	Image   image.Image    `json:"-"`
	At      time.Time      `json:"at"`
}

// QRCode builds a QR outcome
func QRCode(payload string, at time.Time) Outcome {
	return Outcome{Kind: OutcomeQRCode, Payload: payload, At: at}
}

// Barcode builds a barcode outcome
func Barcode(payload string, at time.Time) Outcome {
	return Outcome{Kind: OutcomeBarcode, Payload: payload, At: at}
}

// MultipleCodes builds an outcome that asks the user to pick one code
func MultipleCodes(codes []DetectedCode, at time.Time) Outcome {
	cp := make([]DetectedCode, len(codes))
	copy(cp, codes)
	return Outcome{Kind: OutcomeMultipleCodes, Codes: cp, At: at}
}

// NeedsRemoteClassification hands a cropped frame over to text recognition
func NeedsRemoteClassification(img image.Image, at time.Time) Outcome {
	return Outcome{Kind: OutcomeNeedsRemoteClassification, Image: img, At: at}
}

// None is the empty outcome
func None() Outcome {
	return Outcome{Kind: OutcomeNone}
}
