package engine

import (
	"sync"

	"github.com/roach88/dirsync/internal/model"
)

// eventQueue is a thread-safe FIFO queue of host change events.
//
// The queue is unbounded so that delivery from HTTP handlers never blocks
// while the Run loop is busy dispatching a cascade.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type eventQueue struct {
	mu     sync.Mutex
	events []model.Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]model.Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e model.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (model.Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (model.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return model.Event{}, false
	}

	e := q.events[0]
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
