package scan

import (
	"context"
	"sync"
)

// Observer receives scan outcomes on the delivery goroutine
type Observer interface {
	OnScanOutcome(Outcome)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Outcome)

// OnScanOutcome calls f
func (f ObserverFunc) OnScanOutcome(o Outcome) { f(o) }

// Dispatcher runs functions on the consumer's scheduling context
type Dispatcher interface {
	Dispatch(fn func())
}

// LoopDispatcher runs dispatched functions one at a time, in order, on the
// goroutine that calls Run. Dispatch never blocks.
type LoopDispatcher struct {
	mu     sync.Mutex
	queue  []func()
	signal chan struct{}
}

// NewLoopDispatcher creates an idle dispatcher
func NewLoopDispatcher() *LoopDispatcher {
	return &LoopDispatcher{signal: make(chan struct{}, 1)}
}

// Dispatch enqueues fn
func (d *LoopDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Run executes queued functions until ctx is done
func (d *LoopDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.signal:
		}

		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()

			fn()
		}
	}
}

// Sink accepts outcomes decided by the pipeline
type Sink interface {
	Publish(Outcome)
}

// Publisher delivers each outcome exactly once to the observer through the dispatcher
type Publisher struct {
	observer   Observer
	dispatcher Dispatcher
}

// NewPublisher creates a publisher
func NewPublisher(observer Observer, dispatcher Dispatcher) *Publisher {
	return &Publisher{observer: observer, dispatcher: dispatcher}
}

// Publish marshals the outcome to the observer's context
func (p *Publisher) Publish(o Outcome) {
	if p.observer == nil {
		return
	}
	p.dispatcher.Dispatch(func() {
		p.observer.OnScanOutcome(o)
	})
}
