package engine

import "sync"

// Queue is an unbounded FIFO of delivery events. It is the sole
// synchronization boundary between the background sync activities and the
// consumer: the poll loop and the history loader push concurrently, one
// consumer drains on its own cadence. No operation blocks.
type Queue struct {
	mu     sync.Mutex
	events []Event
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends events in the given order.
func (q *Queue) Push(events ...Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	q.events = append(q.events, events...)
	q.mu.Unlock()
}

// Drain removes and returns all queued events in FIFO order. It returns
// immediately with an empty slice when the queue is empty.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return []Event{}
	}
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of currently queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
