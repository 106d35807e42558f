package scan

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qr(payload string) DetectedCode {
	return DetectedCode{ID: uuid.New(), Kind: KindQR, Format: "QR_CODE", Payload: payload}
}

func barcode(payload string) DetectedCode {
	return DetectedCode{ID: uuid.New(), Kind: KindBarcode, Format: "EAN_13", Payload: payload}
}

func newTestAccumulator() *Accumulator {
	return NewAccumulator(500*time.Millisecond, NewDebounceGuard(3*time.Second))
}

func TestAccumulatorSingleQR(t *testing.T) {
	acc := newTestAccumulator()

	d := acc.Observe([]DetectedCode{qr("pay.me.now")}, at(0))
	assert.Equal(t, StillAccumulating, d.State)

	d = acc.Observe([]DetectedCode{qr("pay.me.now")}, at(500))
	require.Equal(t, Resolved, d.State)
	assert.Equal(t, OutcomeQRCode, d.Outcome.Kind)
	assert.Equal(t, "pay.me.now", d.Outcome.Payload)

	t.Run("repeated window is not debounced", func(t *testing.T) {
		acc.Observe([]DetectedCode{qr("pay.me.now")}, at(650))
		d := acc.Observe([]DetectedCode{qr("pay.me.now")}, at(1150))
		require.Equal(t, Resolved, d.State)
		assert.Equal(t, QRCode("pay.me.now", at(1150)), d.Outcome)
	})
}

func TestAccumulatorMultipleCodes(t *testing.T) {
	acc := newTestAccumulator()

	frames := [][]DetectedCode{
		{qr("alias.one.two"), barcode("1234567890128")},
		{barcode("1234567890128"), qr("alias.one.two")},
		{qr("alias.one.two"), barcode("1234567890128")},
	}

	var d Decision
	for i, codes := range frames {
		d = acc.Observe(codes, at(i*250))
	}

	require.Equal(t, Resolved, d.State)
	require.Equal(t, OutcomeMultipleCodes, d.Outcome.Kind)
	require.Len(t, d.Outcome.Codes, 2)
	assert.Equal(t, "alias.one.two", d.Outcome.Codes[0].Payload)
	assert.Equal(t, "1234567890128", d.Outcome.Codes[1].Payload)
	assert.Equal(t, 0, acc.Pending())
}

func TestAccumulatorLastSeenWins(t *testing.T) {
	acc := newTestAccumulator()

	first := barcode("1234567890128")
	second := barcode("1234567890128")
	second.BoundingBox = Rect{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.1}

	acc.Observe([]DetectedCode{first, qr("other.code")}, at(0))
	d := acc.Observe([]DetectedCode{second}, at(500))

	require.Equal(t, OutcomeMultipleCodes, d.Outcome.Kind)
	assert.Equal(t, second, d.Outcome.Codes[0])
}

func TestAccumulatorEmptyFrameResetsWindow(t *testing.T) {
	acc := newTestAccumulator()

	acc.Observe([]DetectedCode{qr("pay.me.now")}, at(0))
	d := acc.Observe(nil, at(300))
	assert.Equal(t, StillAccumulating, d.State)
	assert.Equal(t, 0, acc.Pending())

	// A new code starts a fresh window instead of closing the discarded one
	d = acc.Observe([]DetectedCode{qr("pay.me.now")}, at(600))
	assert.Equal(t, StillAccumulating, d.State)

	d = acc.Observe([]DetectedCode{qr("pay.me.now")}, at(1100))
	assert.Equal(t, Resolved, d.State)
}

func TestAccumulatorBarcodeDebounce(t *testing.T) {
	guard := NewDebounceGuard(3 * time.Second)
	acc := NewAccumulator(500*time.Millisecond, guard)

	window := func(startMs int) Decision {
		acc.Observe([]DetectedCode{barcode("1234567890128")}, at(startMs))
		return acc.Observe([]DetectedCode{barcode("1234567890128")}, at(startMs+500))
	}

	d := window(0)
	require.Equal(t, Resolved, d.State)
	assert.Equal(t, Barcode("1234567890128", at(500)), d.Outcome)

	d = window(1000)
	assert.Equal(t, Suppressed, d.State)

	guard.Reset()
	d = window(2000)
	assert.Equal(t, Resolved, d.State)

	t.Run("cooldown expires", func(t *testing.T) {
		d := window(2500 + 3000)
		assert.Equal(t, Resolved, d.State)
	})
}
