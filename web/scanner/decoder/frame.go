package main

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"go-alias-scanner/internal/scan"
)

// ErrInvalidFrameData is returned when the buffer does not match the frame size
var ErrInvalidFrameData = errors.New("invalid frame data: size mismatch")

// rgbaToImage wraps a canvas ImageData buffer without copying it
func rgbaToImage(data []byte, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(data) != width*height*4 {
		return nil, ErrInvalidFrameData
	}
	return &image.RGBA{
		Pix:    data,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// outcomeToJS converts an outcome into values syscall/js can pass to the page.
// The cropped picture of a recognition outcome is returned as base64 JPEG.
func outcomeToJS(o scan.Outcome, jpegQuality int) map[string]interface{} {
	result := map[string]interface{}{
		"kind": o.Kind.String(),
		"at":   o.At.UnixMilli(),
	}

	switch o.Kind {
	case scan.OutcomeQRCode, scan.OutcomeBarcode:
		result["payload"] = o.Payload
	case scan.OutcomeMultipleCodes:
		codes := make([]interface{}, 0, len(o.Codes))
		for _, c := range o.Codes {
			codes = append(codes, map[string]interface{}{
				"id":      c.ID.String(),
				"kind":    c.Kind.String(),
				"format":  c.Format,
				"payload": c.Payload,
				"box": map[string]interface{}{
					"x":      c.BoundingBox.X,
					"y":      c.BoundingBox.Y,
					"width":  c.BoundingBox.Width,
					"height": c.BoundingBox.Height,
				},
			})
		}
		result["codes"] = codes
	case scan.OutcomeNeedsRemoteClassification:
		encoded, err := jpegBase64(o.Image, jpegQuality)
		if err != nil {
			result["error"] = err.Error()
			break
		}
		result["image"] = encoded
	}
	return result
}

func jpegBase64(img image.Image, quality int) (string, error) {
	if img == nil {
		return "", errors.New("no image")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
