package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Options tune the dispatcher queue.
type Options struct {
	// Buffer is the queue capacity. Values below one mean one.
	Buffer int
	// Block makes Emit wait for queue space until ctx ends. Otherwise a
	// full queue drops the event.
	Block bool
}

// Dispatcher hands events to a Sink from a single background goroutine.
// A nil *Dispatcher accepts and discards everything.
type Dispatcher struct {
	sink  Sink
	block bool

	mu     sync.RWMutex
	queue  chan Event
	closed bool
	idle   chan struct{}

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// New starts a dispatcher feeding sink. Callers must Close it.
func New(opts Options, sink Sink) *Dispatcher {
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:  sink,
		block: opts.Block,
		queue: make(chan Event, max(opts.Buffer, 1)),
		idle:  make(chan struct{}),
	}
	go d.drain()
	return d
}

func (d *Dispatcher) drain() {
	defer close(d.idle)
	ctx := context.Background()
	for ev := range d.queue {
		d.sink.Emit(ctx, ev)
		d.delivered.Add(1)
	}
}

// Emit queues ev, filling in ID and Timestamp when unset. Events emitted
// after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if !d.block || ctx == nil {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops intake and returns once every queued event reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.idle
}

// Dropped counts events lost to a full queue or a cancelled context.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered counts events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
