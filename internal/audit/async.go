package audit

import (
	"context"
	"sync"
)

type asyncItem struct {
	ctx    context.Context
	action string
	detail map[string]any
}

// AsyncRecorder decouples event production from the sink: Record enqueues and
// returns immediately, a single worker goroutine drains the queue. When the
// buffer is full the event is dropped and noted on stderr rather than making
// the caller wait.
type AsyncRecorder struct {
	sink Recorder

	mu     sync.Mutex
	queue  chan asyncItem
	closed bool
	done   chan struct{}
}

// NewAsyncRecorder wraps sink with a buffered queue of the given size.
func NewAsyncRecorder(sink Recorder, buffer int) *AsyncRecorder {
	if buffer <= 0 {
		buffer = 64
	}
	r := &AsyncRecorder{
		sink:  sink,
		queue: make(chan asyncItem, buffer),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *AsyncRecorder) drain() {
	defer close(r.done)
	for item := range r.queue {
		r.sink.Record(item.ctx, item.action, item.detail)
	}
}

func (r *AsyncRecorder) Record(ctx context.Context, action string, detail map[string]any) {
	// Detach the event from the request lifetime: the values we need are
	// copied out here, the queue item must not observe a cancelled context.
	item := asyncItem{
		ctx:    contextSnapshot(ctx),
		action: action,
		detail: detail,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		fallback(action, "recorder closed")
		return
	}
	select {
	case r.queue <- item:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		fallback(action, "queue full, event dropped")
	}
}

// Close stops accepting events and waits for the queue to drain.
func (r *AsyncRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

// contextSnapshot carries the audit enrichment values forward on a background
// context so the worker is immune to request cancellation.
func contextSnapshot(ctx context.Context) context.Context {
	out := context.Background()
	if rid := requestIDFromContext(ctx); rid != "" {
		out = WithRequestID(out, rid)
	}
	if actor := actorFromContext(ctx); actor != "" {
		out = WithActor(out, actor)
	}
	return out
}
