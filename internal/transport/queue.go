package transport

import (
	"sync"

	"github.com/roach88/pmsync/internal/pm"
)

// Envelope is one command in flight.
type Envelope struct {
	Seq  int64
	From pm.Side
	Data []byte // canonical JSON of the command
}

// queue is a thread-safe unbounded FIFO of envelopes.
//
// Enqueue never blocks: senders call it while holding their engine's domain
// lock. The buffered signal channel lets a receiver wait with a context.
type queue struct {
	mu     sync.Mutex
	items  []Envelope
	closed bool
	signal chan struct{} // buffered, size 1
}

func newQueue() *queue {
	return &queue{
		items:  make([]Envelope, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an envelope to the back of the queue.
// Returns false if the queue is closed.
func (q *queue) Enqueue(env Envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, env)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes and returns the front envelope without blocking.
func (q *queue) TryDequeue() (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Envelope{}, false
	}
	env := q.items[0]

	// Release the payload for GC.
	q.items[0] = Envelope{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return env, true
}

// Wait returns a channel that signals when envelopes may be available.
// It is closed when the queue is closed.
func (q *queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more envelopes will be enqueued and wakes waiters.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
