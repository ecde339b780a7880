package task

import (
	"sync"

	"github.com/aerovision/detect-worker/internal/errors"
)

// Queue is a bounded in-process FIFO of task ids. Enqueue never blocks: a
// full queue is an immediate, caller-visible error so clients can back off.
// Dequeue blocks until an id is available or the queue is closed. Entries
// can be removed out of order to honor cancellation of queued tasks.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []string
	capacity int
	closed   bool
}

// NewQueue creates a queue holding at most capacity ids.
func NewQueue(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends id, or fails immediately when the queue is full or closed.
func (q *Queue) Enqueue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.NewQueueFullError(q.capacity)
	}
	if len(q.items) >= q.capacity {
		return errors.NewQueueFullError(q.capacity)
	}
	q.items = append(q.items, id)
	q.notEmpty.Signal()
	return nil
}

// Dequeue removes and returns the oldest id, blocking while the queue is
// empty. Returns ok=false once the queue is closed and drained.
func (q *Queue) Dequeue() (id string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return "", false
		}
		q.notEmpty.Wait()
	}

	id = q.items[0]
	q.items = q.items[1:]
	return id, true
}

// Remove deletes id from the queue if it is still waiting. Reports whether
// an entry was removed.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of waiting ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes all blocked Dequeue callers. Already-queued ids are still
// drained; new Enqueue calls fail.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
}
