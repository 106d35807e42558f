package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// FrameSource delivers camera frames until its channel is closed
type FrameSource interface {
	Frames(ctx context.Context) (<-chan Frame, error)
}

// MotionSource delivers accelerometer samples at a fixed rate
type MotionSource interface {
	Samples(ctx context.Context) (<-chan Sample, error)
}

var errSessionStarted = errors.New("scan session already started")

// Session is one camera session. Frames and user commands are handled on a
// single goroutine; motion samples are consumed on their own goroutine and
// outcomes are delivered through the dispatcher.
type Session struct {
	cfg      Config
	detector Detector
	camera   FrameSource
	motion   MotionSource
	observer Observer
	clock    Clock
	logger   Logger

	dispatcher Dispatcher
	loop       *LoopDispatcher
	tracker    *StabilityTracker

	commands chan func(*Pipeline)
	done     chan struct{}
	started  atomic.Bool
	running  atomic.Bool
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithMotion attaches a motion sensor; without one the device counts as stable
func WithMotion(m MotionSource) SessionOption {
	return func(s *Session) { s.motion = m }
}

// WithClock replaces the system clock
func WithClock(c Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// WithLogger attaches a logger
func WithLogger(l Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithDispatcher delivers outcomes through d instead of the session's own loop
func WithDispatcher(d Dispatcher) SessionOption {
	return func(s *Session) { s.dispatcher = d }
}

// NewSession creates a session; nothing runs until Run is called
func NewSession(cfg Config, detector Detector, camera FrameSource, observer Observer, opts ...SessionOption) *Session {
	s := &Session{
		cfg:      cfg,
		detector: detector,
		camera:   camera,
		observer: observer,
		clock:    SystemClock{},
		tracker:  NewStabilityTracker(cfg.StabilityThreshold),
		commands: make(chan func(*Pipeline)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.loop = NewLoopDispatcher()
		s.dispatcher = s.loop
	}
	return s
}

// Stability exposes the session's motion tracker
func (s *Session) Stability() StabilityReader {
	return s.tracker
}

// Run starts the camera and the motion sensor and processes frames until ctx
// is cancelled or the camera stops. A session can run only once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errSessionStarted
	}
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, err := s.camera.Frames(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	var samples <-chan Sample
	if s.motion != nil {
		samples, err = s.motion.Samples(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMotionUnavailable, err)
		}
	}

	pipeline := NewPipeline(s.cfg, s.clock.Now(), s.detector, s.tracker, NewPublisher(s.observer, s.dispatcher))
	if s.logger != nil {
		pipeline.SetLogger(s.logger)
		s.logger.Info("scan session started", map[string]interface{}{"motion": s.motion != nil})
	}

	var wg sync.WaitGroup
	if s.loop != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop.Run(ctx)
		}()
	}
	if samples != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.consumeSamples(ctx, samples)
		}()
	}

	s.running.Store(true)
	defer func() {
		s.running.Store(false)
		cancel()
		wg.Wait()
		if s.logger != nil {
			s.logger.Info("scan session stopped", map[string]interface{}{"stats": pipeline.Stats()})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			pipeline.Process(f)
		case cmd := <-s.commands:
			cmd(pipeline)
		}
	}
}

func (s *Session) consumeSamples(ctx context.Context, samples <-chan Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			s.tracker.Observe(sample)
		}
	}
}

// do runs fn on the session goroutine
func (s *Session) do(ctx context.Context, fn func(*Pipeline)) error {
	if !s.running.Load() {
		return ErrSessionClosed
	}
	select {
	case s.commands <- fn:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetDebounce clears the barcode debounce state
func (s *Session) ResetDebounce(ctx context.Context) error {
	return s.do(ctx, func(p *Pipeline) { p.ResetDebounce() })
}

// ResolveSelection publishes the outcome for the chosen pending code
func (s *Session) ResolveSelection(ctx context.Context, id uuid.UUID) (Outcome, error) {
	type result struct {
		outcome Outcome
		err     error
	}
	ch := make(chan result, 1)
	err := s.do(ctx, func(p *Pipeline) {
		o, err := p.ResolveSelection(id, s.clock.Now())
		ch <- result{o, err}
	})
	if err != nil {
		return None(), err
	}

	select {
	case r := <-ch:
		return r.outcome, r.err
	case <-ctx.Done():
		return None(), ctx.Err()
	}
}

// Stats returns the pipeline counters
func (s *Session) Stats(ctx context.Context) (Stats, error) {
	ch := make(chan Stats, 1)
	if err := s.do(ctx, func(p *Pipeline) { ch <- p.Stats() }); err != nil {
		return Stats{}, err
	}
	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}
