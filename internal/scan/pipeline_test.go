package scan

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDetector returns detections keyed by frame timestamp
type scriptedDetector struct {
	byTime map[time.Time][]DetectedCode
	errAt  map[time.Time]error
	calls  int
	last   time.Time
}

func (d *scriptedDetector) Detect(img image.Image) ([]DetectedCode, error) {
	d.calls++
	if err := d.errAt[d.last]; err != nil {
		return nil, err
	}
	return d.byTime[d.last], nil
}

type recordingSink struct {
	outcomes []Outcome
}

func (s *recordingSink) Publish(o Outcome) {
	s.outcomes = append(s.outcomes, o)
}

type fixedStability bool

func (f fixedStability) IsStable() bool { return bool(f) }

type pipelineHarness struct {
	pipeline *Pipeline
	detector *scriptedDetector
	sink     *recordingSink
	img      image.Image
}

func newHarness(stable bool) *pipelineHarness {
	det := &scriptedDetector{byTime: map[time.Time][]DetectedCode{}, errAt: map[time.Time]error{}}
	sink := &recordingSink{}
	cfg := DefaultConfig()
	// Session starts one second earlier so the warm-up is over at epoch
	p := NewPipeline(cfg, epoch.Add(-time.Second), det, fixedStability(stable), sink)
	return &pipelineHarness{pipeline: p, detector: det, sink: sink, img: solid(64, 48, color.White)}
}

func (h *pipelineHarness) frame(ms int, codes ...DetectedCode) (Outcome, bool) {
	ts := at(ms)
	if len(codes) > 0 {
		h.detector.byTime[ts] = codes
	}
	h.detector.last = ts
	return h.pipeline.Process(Frame{Image: h.img, CapturedAt: ts, Rotation: Rotate90})
}

func TestPipelineWarmUpSkipsDetection(t *testing.T) {
	det := &scriptedDetector{}
	sink := &recordingSink{}
	p := NewPipeline(DefaultConfig(), epoch, det, fixedStability(true), sink)

	for _, ms := range []int{0, 150, 300, 450} {
		_, published := p.Process(Frame{Image: solid(8, 8, color.White), CapturedAt: at(ms)})
		assert.False(t, published)
	}
	assert.Zero(t, det.calls)
	assert.Empty(t, sink.outcomes)
	assert.Equal(t, int64(4), p.Stats().Received)
	assert.Zero(t, p.Stats().Admitted)
}

func TestPipelineSingleQR(t *testing.T) {
	h := newHarness(true)

	_, published := h.frame(0, qr("pay.me.now"))
	assert.False(t, published)

	out, published := h.frame(500, qr("pay.me.now"))
	require.True(t, published)
	assert.Equal(t, QRCode("pay.me.now", at(500)), out)
	assert.Equal(t, []Outcome{out}, h.sink.outcomes)
}

func TestPipelineCodesNeverFallThroughToOCR(t *testing.T) {
	h := newHarness(true)

	for ms := 0; ms < 450; ms += 150 {
		_, published := h.frame(ms, barcode("1234567890128"))
		assert.False(t, published)
	}
	assert.Zero(t, h.pipeline.Stats().OCRDispatches)
}

func TestPipelineOCRFallback(t *testing.T) {
	t.Run("stable device without codes", func(t *testing.T) {
		h := newHarness(true)

		out, published := h.frame(0)
		require.True(t, published)
		assert.Equal(t, OutcomeNeedsRemoteClassification, out.Kind)
		require.NotNil(t, out.Image)
		// 64x48 buffer rotated to 48x64 then cropped
		assert.Equal(t, image.Rect(0, 0, 45, 54), out.Image.Bounds())

		_, published = h.frame(150)
		assert.False(t, published, "ocr interval not elapsed")

		out, published = h.frame(1500)
		assert.True(t, published)
		assert.Equal(t, OutcomeNeedsRemoteClassification, out.Kind)
	})

	t.Run("moving device", func(t *testing.T) {
		h := newHarness(false)
		_, published := h.frame(0)
		assert.False(t, published)
		assert.Empty(t, h.sink.outcomes)
	})

	t.Run("detector error counts as no codes", func(t *testing.T) {
		h := newHarness(true)
		h.detector.errAt[at(0)] = errors.New("decoder crashed")

		out, published := h.frame(0)
		require.True(t, published)
		assert.Equal(t, OutcomeNeedsRemoteClassification, out.Kind)
		assert.Equal(t, int64(1), h.pipeline.Stats().DetectErrors)
	})
}

func TestPipelineDebounceAndReset(t *testing.T) {
	h := newHarness(true)
	code := barcode("1234567890128")

	_, _ = h.frame(0, code)
	out, published := h.frame(600, code)
	require.True(t, published)
	assert.Equal(t, Barcode("1234567890128", at(600)), out)

	_, _ = h.frame(750, code)
	_, published = h.frame(1500, code)
	assert.False(t, published)
	assert.Equal(t, int64(1), h.pipeline.Stats().Suppressed)

	h.pipeline.ResetDebounce()
	_, _ = h.frame(1650, code)
	_, published = h.frame(2250, code)
	assert.True(t, published)
}

func TestPipelineSelection(t *testing.T) {
	h := newHarness(true)
	first, second := qr("alias.one.two"), barcode("1234567890128")

	_, _ = h.frame(0, first, second)
	out, published := h.frame(600, first, second)
	require.True(t, published)
	require.Equal(t, OutcomeMultipleCodes, out.Kind)
	assert.Len(t, h.pipeline.PendingSelection(), 2)

	_, err := h.pipeline.ResolveSelection(uuid.New(), at(700))
	assert.ErrorIs(t, err, ErrSelectionNotPending)

	resolved, err := h.pipeline.ResolveSelection(second.ID, at(700))
	require.NoError(t, err)
	assert.Equal(t, Barcode("1234567890128", at(700)), resolved)
	assert.Empty(t, h.pipeline.PendingSelection())
	assert.Len(t, h.sink.outcomes, 2)
}

func TestSelectionResolverMapsKind(t *testing.T) {
	var r SelectionResolver
	code := qr("pay.me.now")
	r.SetPending([]DetectedCode{code, barcode("42")})

	got, err := r.Lookup(code.ID)
	require.NoError(t, err)
	assert.Equal(t, QRCode("pay.me.now", at(0)), r.Resolve(got, at(0)))
	assert.Empty(t, r.Pending())
}

func TestPipelineSelectionSurvivesRedetection(t *testing.T) {
	h := newHarness(true)

	_, _ = h.frame(0, qr("alias.one.two"), barcode("1234567890128"))
	shown, published := h.frame(500, qr("alias.one.two"), barcode("1234567890128"))
	require.True(t, published)
	require.Equal(t, OutcomeMultipleCodes, shown.Kind)

	// The camera keeps seeing both codes, each detection with new identities
	_, _ = h.frame(650, qr("alias.one.two"), barcode("1234567890128"))
	_, published = h.frame(1150, qr("alias.one.two"), barcode("1234567890128"))
	assert.False(t, published)
	assert.Equal(t, shown.Codes, h.pipeline.PendingSelection())

	resolved, err := h.pipeline.ResolveSelection(shown.Codes[0].ID, at(1200))
	require.NoError(t, err)
	assert.Equal(t, QRCode("alias.one.two", at(1200)), resolved)
	assert.Empty(t, h.pipeline.PendingSelection())
}

func TestPipelinePendingSelectionLifetime(t *testing.T) {
	pending := func(t *testing.T) (*pipelineHarness, Outcome) {
		h := newHarness(true)
		_, _ = h.frame(0, qr("alias.one.two"), barcode("1234567890128"))
		shown, published := h.frame(500, qr("alias.one.two"), barcode("1234567890128"))
		require.True(t, published)
		require.Len(t, h.pipeline.PendingSelection(), 2)
		return h, shown
	}

	t.Run("single code clears the choice", func(t *testing.T) {
		h, shown := pending(t)

		_, _ = h.frame(650, qr("pay.me.now"))
		out, published := h.frame(1150, qr("pay.me.now"))
		require.True(t, published)
		assert.Equal(t, QRCode("pay.me.now", at(1150)), out)
		assert.Empty(t, h.pipeline.PendingSelection())

		_, err := h.pipeline.ResolveSelection(shown.Codes[0].ID, at(1200))
		assert.ErrorIs(t, err, ErrSelectionNotPending)
	})

	t.Run("reset clears the choice", func(t *testing.T) {
		h, shown := pending(t)

		h.pipeline.ResetDebounce()
		assert.Empty(t, h.pipeline.PendingSelection())
		_, err := h.pipeline.ResolveSelection(shown.Codes[1].ID, at(600))
		assert.ErrorIs(t, err, ErrSelectionNotPending)

		_, _ = h.frame(650, qr("alias.one.two"), barcode("1234567890128"))
		out, published := h.frame(1150, qr("alias.one.two"), barcode("1234567890128"))
		require.True(t, published)
		assert.Equal(t, out.Codes, h.pipeline.PendingSelection())
	})
}

func TestPipelineStampsConfiguredRotation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rotation = Rotate90
	p := NewPipeline(cfg, epoch.Add(-time.Second), &scriptedDetector{}, fixedStability(true), &recordingSink{})

	out, published := p.Process(cfg.NewFrame(solid(640, 480, color.White), at(0)))
	require.True(t, published)
	require.Equal(t, OutcomeNeedsRemoteClassification, out.Kind)
	// 640x480 buffer rotated upright to 480x640, then cropped
	assert.Equal(t, image.Rect(0, 0, 456, 544), out.Image.Bounds())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.OCRDispatches)
	assert.Equal(t, int64(3000), stats.Debounce["cooldownMs"])
}
