// Package notify delivers state snapshots to subscribers in the order the
// state changed, without holding the owner's lock while callbacks run.
package notify

import "sync"

// Queue is an ordered, reentrant-safe callback dispatcher. Owners call
// Enqueue while holding their own lock (so enqueue order matches mutation
// order) and Drain after releasing it. A callback that triggers another
// state change only enqueues; the goroutine already draining delivers it.
type Queue[T any] struct {
	mu      sync.Mutex
	pending []T
	busy    bool
	subs    []func(T)
}

// Subscribe registers fn for every subsequent value.
func (q *Queue[T]) Subscribe(fn func(T)) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subs = append(q.subs, fn)
}

// Enqueue records v for delivery.
func (q *Queue[T]) Enqueue(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.subs) == 0 {
		return
	}
	q.pending = append(q.pending, v)
}

// Drain delivers queued values unless another goroutine is already doing so.
func (q *Queue[T]) Drain() {
	q.mu.Lock()
	if q.busy {
		q.mu.Unlock()
		return
	}
	q.busy = true
	for len(q.pending) > 0 {
		v := q.pending[0]
		q.pending = q.pending[1:]
		subs := q.subs
		q.mu.Unlock()
		for _, fn := range subs {
			fn(v)
		}
		q.mu.Lock()
	}
	q.busy = false
	q.mu.Unlock()
}

// Reset drops subscribers and anything not yet delivered.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subs = nil
	q.pending = nil
}
