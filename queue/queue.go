package queue

import (
	"errors"
	"sync"
)

// ErrFull is returned by Push when a bounded queue is at capacity.
var ErrFull = errors.New("queue: queue is full")

// compactThreshold is the number of consumed head slots tolerated before the
// backing slice is compacted.
const compactThreshold = 64

// Queue is an ordered, mutex-guarded FIFO.
//
// Every push and pop happens under the queue's own lock. Callers that need to
// change the state of an item atomically with its insertion or removal pass a
// hook, which runs while the lock is held. Hooks must be short: they must not
// block and must not touch the same queue.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int
	capacity int
}

// New returns an unbounded queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// NewBounded returns a queue that holds at most capacity items.
// A capacity of zero or less means unbounded.
func NewBounded[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{capacity: capacity}
}

// Push appends v to the tail.
//
// If admit is non-nil it runs with the lock held before v is appended; a
// non-nil error from admit leaves the queue unchanged and is returned as is.
// ErrFull is returned when a bounded queue has no room, before admit runs.
func (q *Queue[T]) Push(v T, admit func(T) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && q.lenLocked() >= q.capacity {
		return ErrFull
	}

	if admit != nil {
		if err := admit(v); err != nil {
			return err
		}
	}

	q.items = append(q.items, v)
	return nil
}

// PopFront removes and returns the head. The boolean is false when the queue
// is empty, which is a normal condition and not an error.
//
// If claim is non-nil it runs on the removed item with the lock held.
func (q *Queue[T]) PopFront(claim func(T)) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.lenLocked() == 0 {
		return zero, false
	}

	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	q.compactLocked()

	if claim != nil {
		claim(v)
	}

	return v, true
}

// Peek returns copies of up to limit items from the head in order without
// removing them. A limit of zero or less returns everything.
func (q *Queue[T]) Peek(limit int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.lenLocked()
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	copy(out, q.items[q.head:q.head+n])
	return out
}

// Discard removes up to n items from the head and returns how many were
// removed. Paired with Peek, it lets a single consumer drop items only once
// it is done with them.
func (q *Queue[T]) Discard(n int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if l := q.lenLocked(); n > l {
		n = l
	}
	if n <= 0 {
		return 0
	}

	var zero T
	for i := q.head; i < q.head+n; i++ {
		q.items[i] = zero
	}
	q.head += n
	q.compactLocked()

	return n
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Cap returns the configured capacity, zero meaning unbounded.
func (q *Queue[T]) Cap() int { return q.capacity }

func (q *Queue[T]) lenLocked() int { return len(q.items) - q.head }

func (q *Queue[T]) compactLocked() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}

	if q.head < compactThreshold || q.head < len(q.items)/2 {
		return
	}

	n := copy(q.items, q.items[q.head:])
	var zero T
	for i := n; i < len(q.items); i++ {
		q.items[i] = zero
	}
	q.items = q.items[:n]
	q.head = 0
}
