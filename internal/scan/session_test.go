package scan

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanCamera struct {
	frames chan Frame
	err    error
}

func (c *chanCamera) Frames(ctx context.Context) (<-chan Frame, error) {
	return c.frames, c.err
}

type chanMotion struct {
	samples chan Sample
	err     error
}

func (m *chanMotion) Samples(ctx context.Context) (<-chan Sample, error) {
	return m.samples, m.err
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

// imageDetector returns the codes registered for an image
type imageDetector map[image.Image][]DetectedCode

func (d imageDetector) Detect(img image.Image) ([]DetectedCode, error) {
	return d[img], nil
}

// mintingDetector finds the registered codes with new identities on every call
type mintingDetector map[image.Image][]DetectedCode

func (d mintingDetector) Detect(img image.Image) ([]DetectedCode, error) {
	codes := make([]DetectedCode, 0, len(d[img]))
	for _, c := range d[img] {
		c.ID = uuid.New()
		codes = append(codes, c)
	}
	return codes, nil
}

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return None()
	}
}

func TestSessionStartFailures(t *testing.T) {
	t.Run("camera", func(t *testing.T) {
		s := NewSession(DefaultConfig(), imageDetector{}, &chanCamera{err: errors.New("permission denied")}, nil)
		err := s.Run(context.Background())
		assert.ErrorIs(t, err, ErrCameraUnavailable)
	})

	t.Run("motion", func(t *testing.T) {
		camera := &chanCamera{frames: make(chan Frame)}
		motion := &chanMotion{err: errors.New("no accelerometer")}
		s := NewSession(DefaultConfig(), imageDetector{}, camera, nil, WithMotion(motion))
		err := s.Run(context.Background())
		assert.ErrorIs(t, err, ErrMotionUnavailable)
	})

	t.Run("commands before start", func(t *testing.T) {
		s := NewSession(DefaultConfig(), imageDetector{}, &chanCamera{}, nil)
		assert.ErrorIs(t, s.ResetDebounce(context.Background()), ErrSessionClosed)
	})
}

func TestSessionDeliversOutcomesAndCommands(t *testing.T) {
	multi := solid(32, 32, color.White)
	single := solid(32, 32, color.Black)
	first, second := qr("alias.one.two"), barcode("1234567890128")
	detector := imageDetector{
		multi:  {first, second},
		single: {second},
	}

	camera := &chanCamera{frames: make(chan Frame)}
	motion := &chanMotion{samples: make(chan Sample)}
	outcomes := make(chan Outcome, 8)
	observer := ObserverFunc(func(o Outcome) { outcomes <- o })

	start := epoch.Add(-time.Second)
	s := NewSession(DefaultConfig(), detector, camera, observer, WithMotion(motion), WithClock(fixedClock(start)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	send := func(img image.Image, ms int) {
		select {
		case camera.frames <- Frame{Image: img, CapturedAt: at(ms)}:
		case <-time.After(2 * time.Second):
			t.Fatal("session did not accept frame")
		}
	}

	send(multi, 0)
	send(multi, 600)
	o := waitOutcome(t, outcomes)
	require.Equal(t, OutcomeMultipleCodes, o.Kind)

	resolved, err := s.ResolveSelection(ctx, o.Codes[1].ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBarcode, resolved.Kind)
	assert.Equal(t, resolved, waitOutcome(t, outcomes))

	// Barcode emitted, then suppressed until the debounce is reset
	send(single, 800)
	send(single, 1400)
	assert.Equal(t, Barcode("1234567890128", at(1400)), waitOutcome(t, outcomes))

	send(single, 1600)
	send(single, 2200)
	require.NoError(t, s.ResetDebounce(ctx))
	send(single, 2400)
	send(single, 3000)
	assert.Equal(t, Barcode("1234567890128", at(3000)), waitOutcome(t, outcomes))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Suppressed)

	motion.samples <- Sample{0, 0, -1}
	motion.samples <- Sample{1, 1, 0}
	assert.Eventually(t, func() bool { return !s.Stability().IsStable() }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.ErrorIs(t, s.ResetDebounce(context.Background()), ErrSessionClosed)
}

func TestSessionSelectionAfterRedetection(t *testing.T) {
	multi := solid(32, 32, color.White)
	detector := mintingDetector{multi: {qr("alias.one.two"), barcode("1234567890128")}}

	camera := &chanCamera{frames: make(chan Frame)}
	outcomes := make(chan Outcome, 8)
	observer := ObserverFunc(func(o Outcome) { outcomes <- o })
	s := NewSession(DefaultConfig(), detector, camera, observer, WithClock(fixedClock(epoch.Add(-time.Second))))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	send := func(ms int) {
		select {
		case camera.frames <- Frame{Image: multi, CapturedAt: at(ms)}:
		case <-time.After(2 * time.Second):
			t.Fatal("session did not accept frame")
		}
	}

	send(0)
	send(500)
	shown := waitOutcome(t, outcomes)
	require.Equal(t, OutcomeMultipleCodes, shown.Kind)

	send(650)
	send(1150)
	_, err := s.Stats(ctx)
	require.NoError(t, err)

	resolved, err := s.ResolveSelection(ctx, shown.Codes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQRCode, resolved.Kind)
	assert.Equal(t, "alias.one.two", resolved.Payload)
	assert.Equal(t, resolved, waitOutcome(t, outcomes))
}

func TestSessionStopsWhenCameraCloses(t *testing.T) {
	camera := &chanCamera{frames: make(chan Frame)}
	s := NewSession(DefaultConfig(), imageDetector{}, camera, nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	close(camera.frames)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.ErrorIs(t, s.Run(context.Background()), errSessionStarted)
}

func TestLoopDispatcherPreservesOrder(t *testing.T) {
	d := NewLoopDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	got := make(chan int, 100)
	for i := 0; i < 100; i++ {
		i := i
		d.Dispatch(func() { got <- i })
	}
	for i := 0; i < 100; i++ {
		select {
		case v := <-got:
			assert.Equal(t, i, v)
		case <-time.After(2 * time.Second):
			t.Fatal("dispatcher stalled")
		}
	}
}
