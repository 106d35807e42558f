package services

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/skip2/go-qrcode"
)

// Default output sizes in pixels
const (
	DefaultQRSize        = 256
	DefaultBarcodeWidth  = 400
	DefaultBarcodeHeight = 120
	maxCodeSize          = 2048
)

// CodeService renders scannable codes as PNG images
type CodeService struct{}

func NewCodeService() *CodeService {
	return &CodeService{}
}

// QR encodes data as a QR code of size x size pixels
func (s *CodeService) QR(data string, size int) ([]byte, error) {
	if data == "" {
		return nil, fmt.Errorf("qr data cannot be empty")
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	if size > maxCodeSize {
		size = maxCodeSize
	}

	pngBytes, err := qrcode.Encode(data, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	return pngBytes, nil
}

// Barcode encodes data as Code128 scaled to width x height
func (s *CodeService) Barcode(data string, width, height int) ([]byte, error) {
	if data == "" {
		return nil, fmt.Errorf("barcode data cannot be empty")
	}
	if width <= 0 {
		width = DefaultBarcodeWidth
	}
	if height <= 0 {
		height = DefaultBarcodeHeight
	}

	bc, err := code128.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode barcode: %w", err)
	}

	// Scale fails when width is narrower than the encoded modules
	if width < bc.Bounds().Dx() {
		width = bc.Bounds().Dx()
	}
	scaled, err := barcode.Scale(bc, width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to scale barcode: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("failed to encode barcode as PNG: %w", err)
	}

	return buf.Bytes(), nil
}
