package router

import (
	"sync"

	"github.com/gammazero/deque"
)

// Queue is a thread-safe FIFO that grows as needed. A positive limit caps
// the number of queued items; Send drops items beyond it.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  deque.Deque[T]
	limit  int
	closed bool

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
	highWater     int
}

// NewQueue creates a queue. limit <= 0 means unbounded.
func NewQueue[T any](limit int) *Queue[T] {
	q := &Queue[T]{limit: limit}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send appends an item. Returns false if the queue is closed or full.
func (q *Queue[T]) Send(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.limit > 0 && q.items.Len() >= q.limit {
		q.dropped++
		return false
	}

	q.items.PushBack(item)
	q.totalReceived++
	if n := q.items.Len(); n > q.highWater {
		q.highWater = n
	}

	// Signal waiting receivers
	q.cond.Signal()
	return true
}

// Receive removes and returns the oldest item.
// Blocks until an item is available or the queue is closed.
// Returns the zero value and false once closed and empty.
func (q *Queue[T]) Receive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.items.Len() == 0 {
		var zero T
		return zero, false
	}

	q.totalSent++
	return q.items.PopFront(), true
}

// TryReceive attempts to receive without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		var zero T
		return zero, false
	}

	q.totalSent++
	return q.items.PopFront(), true
}

// DrainTo removes up to max items (all when max <= 0) without blocking.
func (q *Queue[T]) DrainTo(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.items.Len()
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := range result {
		result[i] = q.items.PopFront()
	}
	q.totalSent += int64(n)

	return result
}

// Close closes the queue. After closing, Send returns false.
// Receivers get the remaining items, then the closed signal.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast() // Wake all waiters
}

// Len returns the current number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:         q.items.Len(),
		HighWater:     q.highWater,
		TotalReceived: q.totalReceived,
		TotalSent:     q.totalSent,
		Dropped:       q.dropped,
	}
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Count         int
	HighWater     int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
}
