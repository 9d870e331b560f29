// Package fabric is the fan-out execution layer: a shared work queue, pools
// of workers each owning their own store, and a rolling failure tracker.
// Worker groups are goroutine pools; cooperative tasks inside a worker share
// its store the way a thread's tasks share one pool.
package fabric

import (
	"sync"
	"time"
)

// DefaultGetTimeout is the queue read timeout that doubles as the worker
// exit condition: a read that comes back empty means the queue is drained.
const DefaultGetTimeout = time.Second

// Queue is a bounded MPMC queue. Every item is consumed by exactly one
// reader. Close unblocks all readers; closed queues still drain.
type Queue[V any] struct {
	mu     sync.Mutex
	notify chan struct{}
	items  []V
	cap    int
	closed bool
}

// NewQueue creates a queue bounded at capacity items; zero or negative means
// unbounded.
func NewQueue[V any](capacity int) *Queue[V] {
	return &Queue[V]{notify: make(chan struct{}), cap: capacity}
}

// Put appends an item, reporting false when the queue is full or closed.
func (q *Queue[V]) Put(v V) bool {
	q.mu.Lock()
	if q.closed || (q.cap > 0 && len(q.items) >= q.cap) {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	notify := q.notify
	q.notify = make(chan struct{})
	q.mu.Unlock()
	close(notify)
	return true
}

// Get pops the oldest item, waiting up to timeout for one to arrive. ok is
// false on timeout or when the queue is closed and drained.
func (q *Queue[V]) Get(timeout time.Duration) (v V, ok bool) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v, ok = q.items[0], true
			q.items = q.items[1:]
			q.mu.Unlock()
			return
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		wait := q.notify
		q.mu.Unlock()
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		timer := time.NewTimer(remaining)
		select {
		case <-wait:
			timer.Stop()
		case <-timer.C:
			return
		}
	}
}

// Len reports how many items are waiting.
func (q *Queue[V]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue finished. Waiting readers wake and drain what is
// left; further Puts are refused.
func (q *Queue[V]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	notify := q.notify
	q.notify = make(chan struct{})
	q.mu.Unlock()
	close(notify)
}
