package logauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher keeps sink latency off the request path. Emit hands the
// event to a buffered queue serviced by a single worker goroutine; a nil
// dispatcher (audit disabled) swallows everything.
type auditDispatcher struct {
	sink    AuditSink
	queue   chan AuditEvent
	quit    chan struct{}
	done    chan struct{}
	block   bool
	dropped atomic.Uint64
	stop    sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:  sink,
		queue: make(chan AuditEvent, size),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		block: !cfg.DropIfFull,
	}
	go d.work()
	return d
}

// work delivers queued events in order. Once quit closes it flushes whatever
// is still buffered, so Close never discards accepted events.
func (d *auditDispatcher) work() {
	defer close(d.done)
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			for len(d.queue) > 0 {
				d.sink.Emit(context.Background(), <-d.queue)
			}
			return
		}
	}
}

// Emit queues the event for delivery. A full queue discards the event and
// counts it, unless the dispatcher was built without DropIfFull, in which
// case Emit waits for room, for ctx, or for shutdown.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	select {
	case <-d.quit:
		return
	default:
	}

	if !d.block {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops intake and returns once the worker has flushed the queue.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stop.Do(func() { close(d.quit) })
	<-d.done
}

// Dropped reports how many events a full queue has discarded.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
