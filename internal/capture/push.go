package capture

import (
	"context"
	"errors"
	"sync"

	"go-alias-scanner/internal/scan"
)

// ErrSourceStarted is returned when a push source is started twice
var ErrSourceStarted = errors.New("source already started")

// PushSource is a camera fed from outside the process, e.g. HTTP uploads.
// Submit never blocks: when the queue is full the frame is dropped, the
// same way a camera discards late frames.
type PushSource struct {
	frames  chan scan.Frame
	mu      sync.Mutex
	started bool
}

// NewPushSource creates a source queueing up to capacity frames
func NewPushSource(capacity int) *PushSource {
	if capacity <= 0 {
		capacity = 1
	}
	return &PushSource{frames: make(chan scan.Frame, capacity)}
}

// Frames hands out the queue; it can be taken once
func (p *PushSource) Frames(ctx context.Context) (<-chan scan.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil, ErrSourceStarted
	}
	p.started = true
	return p.frames, nil
}

// Submit queues a frame and reports whether it was accepted
func (p *PushSource) Submit(f scan.Frame) bool {
	select {
	case p.frames <- f:
		return true
	default:
		return false
	}
}

// PushMotion is a motion sensor fed from outside the process
type PushMotion struct {
	samples chan scan.Sample
	mu      sync.Mutex
	started bool
}

// NewPushMotion creates a motion source queueing up to capacity samples
func NewPushMotion(capacity int) *PushMotion {
	if capacity <= 0 {
		capacity = 1
	}
	return &PushMotion{samples: make(chan scan.Sample, capacity)}
}

// Samples hands out the queue; it can be taken once
func (p *PushMotion) Samples(ctx context.Context) (<-chan scan.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil, ErrSourceStarted
	}
	p.started = true
	return p.samples, nil
}

// Submit queues a sample and reports whether it was accepted
func (p *PushMotion) Submit(s scan.Sample) bool {
	select {
	case p.samples <- s:
		return true
	default:
		return false
	}
}
