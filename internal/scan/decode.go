package scan

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

const (
	// defaultSearchDepth bounds the recursive sub-region search
	defaultSearchDepth = 3
	// minSearchRegion is the smallest sub-region side worth decoding, in pixels
	minSearchRegion = 24
)

// ZXingDetector is the local code detector. It decodes QR codes and the
// common 1D symbologies and looks for further codes in the regions around
// each code it finds.
type ZXingDetector struct {
	mu      sync.Mutex
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
	depth   int
}

// NewZXingDetector creates a detector with all supported readers
func NewZXingDetector() *ZXingDetector {
	readers := []gozxing.Reader{
		// 2D first so that a QR code sharing a region with a barcode is not shadowed
		qrcode.NewQRCodeReader(),

		oned.NewCode128Reader(),
		oned.NewCode39Reader(),
		oned.NewEAN13Reader(),
		oned.NewEAN8Reader(),
		oned.NewUPCAReader(),
		oned.NewUPCEReader(),
		oned.NewITFReader(),
	}

	return &ZXingDetector{
		readers: readers,
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_POSSIBLE_FORMATS: SupportedFormats(),
			gozxing.DecodeHintType_TRY_HARDER:       true,
		},
		depth: defaultSearchDepth,
	}
}

// SupportedFormats lists the symbologies the detector reads
func SupportedFormats() []gozxing.BarcodeFormat {
	return []gozxing.BarcodeFormat{
		gozxing.BarcodeFormat_QR_CODE,
		gozxing.BarcodeFormat_CODE_128,
		gozxing.BarcodeFormat_CODE_39,
		gozxing.BarcodeFormat_EAN_13,
		gozxing.BarcodeFormat_EAN_8,
		gozxing.BarcodeFormat_UPC_A,
		gozxing.BarcodeFormat_UPC_E,
		gozxing.BarcodeFormat_ITF,
	}
}

type foundCode struct {
	text   string
	format gozxing.BarcodeFormat
	box    image.Rectangle
}

// Detect returns every distinct code found in img in discovery order
func (d *ZXingDetector) Detect(img image.Image) ([]DetectedCode, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrInvalidImage
	}

	gray := toGray(img)

	d.mu.Lock()
	var found []foundCode
	d.search(gray, image.Point{}, 0, make(map[string]bool), &found)
	d.mu.Unlock()

	width, height := float64(gray.Bounds().Dx()), float64(gray.Bounds().Dy())
	codes := make([]DetectedCode, 0, len(found))
	for _, f := range found {
		kind := KindBarcode
		if f.format == gozxing.BarcodeFormat_QR_CODE {
			kind = KindQR
		}
		codes = append(codes, DetectedCode{
			ID:      uuid.New(),
			Kind:    kind,
			Format:  FormatName(f.format),
			Payload: f.text,
			BoundingBox: Rect{
				X:      float64(f.box.Min.X) / width,
				Y:      float64(f.box.Min.Y) / height,
				Width:  float64(f.box.Dx()) / width,
				Height: float64(f.box.Dy()) / height,
			},
		})
	}
	return codes, nil
}

// search decodes img and recurses into the regions left, right, above and
// below each new code. Finding an already known payload ends the branch.
func (d *ZXingDetector) search(img *image.Gray, offset image.Point, depth int, seen map[string]bool, out *[]foundCode) {
	result := d.decodeOnce(img)
	if result == nil {
		return
	}

	text := result.GetText()
	if seen[text] {
		return
	}
	seen[text] = true

	box := pointsBox(result.GetResultPoints())
	*out = append(*out, foundCode{
		text:   text,
		format: result.GetBarcodeFormat(),
		box:    box.Add(offset),
	})

	if depth >= d.depth || len(result.GetResultPoints()) == 0 {
		return
	}

	b := img.Bounds()
	regions := []image.Rectangle{
		image.Rect(0, 0, box.Min.X, b.Dy()),
		image.Rect(box.Max.X, 0, b.Dx(), b.Dy()),
		image.Rect(0, 0, b.Dx(), box.Min.Y),
		image.Rect(0, box.Max.Y, b.Dx(), b.Dy()),
	}
	for _, r := range regions {
		if r.Dx() < minSearchRegion || r.Dy() < minSearchRegion {
			continue
		}
		sub := toGray(img.SubImage(r))
		d.search(sub, offset.Add(r.Min), depth+1, seen, out)
	}
}

func (d *ZXingDetector) decodeOnce(img image.Image) *gozxing.Result {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil
	}

	for _, reader := range d.readers {
		result, err := reader.Decode(bmp, d.hints)
		reader.Reset()
		if err == nil && result != nil {
			return result
		}
	}
	return nil
}

// pointsBox returns the integer bounding box of decode result points
func pointsBox(points []gozxing.ResultPoint) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}

// FormatName maps a gozxing format to its wire name
func FormatName(format gozxing.BarcodeFormat) string {
	switch format {
	case gozxing.BarcodeFormat_CODE_128:
		return "CODE_128"
	case gozxing.BarcodeFormat_CODE_39:
		return "CODE_39"
	case gozxing.BarcodeFormat_EAN_13:
		return "EAN_13"
	case gozxing.BarcodeFormat_EAN_8:
		return "EAN_8"
	case gozxing.BarcodeFormat_UPC_A:
		return "UPC_A"
	case gozxing.BarcodeFormat_UPC_E:
		return "UPC_E"
	case gozxing.BarcodeFormat_ITF:
		return "ITF"
	case gozxing.BarcodeFormat_QR_CODE:
		return "QR_CODE"
	default:
		return "UNKNOWN"
	}
}

// DecodeRequest is a one-shot decode of an uploaded image
type DecodeRequest struct {
	ImageData string `json:"imageData" binding:"required"` // base64, optionally a data URL
	ROI       *ROI   `json:"roi,omitempty"`
}

// ROI is a pixel region of interest
type ROI struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DecodeResponse reports the codes found by a one-shot decode
type DecodeResponse struct {
	Success        bool           `json:"success"`
	Codes          []DetectedCode `json:"codes,omitempty"`
	Error          string         `json:"error,omitempty"`
	ProcessingTime int64          `json:"processingTime"` // milliseconds
	Timestamp      int64          `json:"timestamp"`
}

// DecodeUpload runs the detector on a base64 image outside any session
func (d *ZXingDetector) DecodeUpload(req *DecodeRequest) *DecodeResponse {
	startTime := time.Now()
	response := &DecodeResponse{Timestamp: startTime.UnixMilli()}
	fail := func(err error) *DecodeResponse {
		response.Error = err.Error()
		response.ProcessingTime = time.Since(startTime).Milliseconds()
		return response
	}

	img, err := DecodeImageData(req.ImageData)
	if err != nil {
		return fail(err)
	}

	if req.ROI != nil {
		r := image.Rect(req.ROI.X, req.ROI.Y, req.ROI.X+req.ROI.Width, req.ROI.Y+req.ROI.Height).Add(img.Bounds().Min)
		if !r.In(img.Bounds()) || r.Empty() {
			return fail(fmt.Errorf("ROI out of bounds"))
		}
		img, err = copyRegion(img, r)
		if err != nil {
			return fail(err)
		}
	}

	codes, err := d.Detect(img)
	if err != nil {
		return fail(err)
	}
	if len(codes) == 0 {
		return fail(ErrNoCodeFound)
	}

	response.Success = true
	response.Codes = codes
	response.ProcessingTime = time.Since(startTime).Milliseconds()
	return response
}

// DecodeImageData decodes a base64 PNG or JPEG, with or without a data URL prefix
func DecodeImageData(imageData string) (image.Image, error) {
	if strings.HasPrefix(imageData, "data:") {
		if i := strings.Index(imageData, ","); i >= 0 {
			imageData = imageData[i+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(imageData)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}
