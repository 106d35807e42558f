package scan

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	bcx "github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

func qrImage(t *testing.T, payload string) image.Image {
	t.Helper()
	q, err := qrcode.New(payload, qrcode.Medium)
	require.NoError(t, err)
	return q.Image(256)
}

func code128Image(t *testing.T, payload string) image.Image {
	t.Helper()
	bc, err := code128.Encode(payload)
	require.NoError(t, err)
	scaled, err := bcx.Scale(bc, 400, 120)
	require.NoError(t, err)
	return scaled
}

// canvas places images on a white background at the given offsets
func canvas(w, h int, parts map[image.Point]image.Image) *image.RGBA {
	out := solid(w, h, color.White)
	for at, img := range parts {
		r := img.Bounds().Sub(img.Bounds().Min).Add(at)
		draw.Draw(out, r, img, img.Bounds().Min, draw.Src)
	}
	return out
}

func TestZXingDetectorSingleQR(t *testing.T) {
	img := canvas(400, 400, map[image.Point]image.Image{{72, 72}: qrImage(t, "alias.one.two")})

	codes, err := NewZXingDetector().Detect(img)
	require.NoError(t, err)
	require.Len(t, codes, 1)

	code := codes[0]
	assert.Equal(t, KindQR, code.Kind)
	assert.Equal(t, "QR_CODE", code.Format)
	assert.Equal(t, "alias.one.two", code.Payload)
	assert.InDelta(t, 0.5, code.BoundingBox.X+code.BoundingBox.Width/2, 0.1)
	assert.InDelta(t, 0.5, code.BoundingBox.Y+code.BoundingBox.Height/2, 0.1)
}

func TestZXingDetectorSingleBarcode(t *testing.T) {
	img := canvas(600, 300, map[image.Point]image.Image{{100, 90}: code128Image(t, "1234567890128")})

	codes, err := NewZXingDetector().Detect(img)
	require.NoError(t, err)
	require.NotEmpty(t, codes)

	assert.Equal(t, KindBarcode, codes[0].Kind)
	assert.Equal(t, "CODE_128", codes[0].Format)
	assert.Equal(t, "1234567890128", codes[0].Payload)
}

func TestZXingDetectorFindsSeveralCodes(t *testing.T) {
	img := canvas(600, 700, map[image.Point]image.Image{
		{172, 20}:  qrImage(t, "alias.one.two"),
		{100, 480}: code128Image(t, "1234567890128"),
	})

	codes, err := NewZXingDetector().Detect(img)
	require.NoError(t, err)

	payloads := make([]string, 0, len(codes))
	for _, c := range codes {
		payloads = append(payloads, c.Payload)
		assert.NotEqual(t, [16]byte{}, [16]byte(c.ID))
	}
	assert.ElementsMatch(t, []string{"alias.one.two", "1234567890128"}, payloads)
}

func TestZXingDetectorEmptyImage(t *testing.T) {
	codes, err := NewZXingDetector().Detect(solid(200, 200, color.White))
	require.NoError(t, err)
	assert.Empty(t, codes)

	_, err = NewZXingDetector().Detect(nil)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestDecodeUpload(t *testing.T) {
	var buf bytes.Buffer
	img := canvas(400, 400, map[image.Point]image.Image{{72, 72}: qrImage(t, "pay.me.now")})
	require.NoError(t, png.Encode(&buf, img))
	data := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	detector := NewZXingDetector()

	resp := detector.DecodeUpload(&DecodeRequest{ImageData: data})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "pay.me.now", resp.Codes[0].Payload)

	resp = detector.DecodeUpload(&DecodeRequest{ImageData: data, ROI: &ROI{X: 0, Y: 0, Width: 60, Height: 60}})
	assert.False(t, resp.Success)
	assert.Equal(t, ErrNoCodeFound.Error(), resp.Error)

	resp = detector.DecodeUpload(&DecodeRequest{ImageData: data, ROI: &ROI{X: 350, Y: 350, Width: 100, Height: 100}})
	assert.False(t, resp.Success)

	resp = detector.DecodeUpload(&DecodeRequest{ImageData: "not base64!"})
	assert.False(t, resp.Success)
}
