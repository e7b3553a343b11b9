package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// drainTimeout bounds how long Close waits on the sink while flushing the
// remaining buffer.
const drainTimeout = 5 * time.Second

// Dispatcher relays events to a sink from a single background goroutine, so
// emitters never pay the sink's latency. Overflow behavior is chosen at
// construction: dropping keeps hot paths non-blocking, blocking guarantees
// delivery order under pressure.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	events  chan Event
	quit    chan struct{}
	stopped sync.Once
	drained chan struct{}

	dropped atomic.Uint64
	closing atomic.Bool
}

// NewDispatcher starts the relay goroutine. Returns nil when enabled is
// false; a nil dispatcher silently discards all calls.
func NewDispatcher(enabled bool, bufferSize int, dropIfFull bool, sink Sink) *Dispatcher {
	if !enabled {
		return nil
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: dropIfFull,
		events:     make(chan Event, bufferSize),
		quit:       make(chan struct{}),
		drained:    make(chan struct{}),
	}
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer close(d.drained)

	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.flush()
			return
		}
	}
}

// flush delivers whatever is buffered at shutdown, bounded by drainTimeout
// so a stuck sink cannot wedge Close.
func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case event := <-d.events:
			d.sink.Emit(ctx, event)
			if ctx.Err() != nil {
				return
			}
		default:
			return
		}
	}
}

// Emit queues an event for delivery. Nil-safe. After Close, or when the
// buffer is full in drop mode, the event is counted as dropped instead of
// blocking the caller.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.quit:
	}
}

// Close stops intake, flushes the buffer, and waits for the relay goroutine
// to exit. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopped.Do(func() {
		d.closing.Store(true)
		close(d.quit)
		<-d.drained
	})
}

// Dropped reports how many events were discarded because the buffer was
// full or the emitter's context expired.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
