// Package queue provides the bounded FIFO mailbox used for all inter-task
// communication. Each task owns exactly one queue; every cross-task effect is
// a message moved into another task's queue, never a shared pointer.
package queue

import "time"

// DefaultCapacity is the queue depth used when no explicit capacity is given.
const DefaultCapacity = 8

// Queue is a bounded FIFO channel of messages for one task. Delivery order
// equals send order. Senders never block: TrySend reports overflow instead.
type Queue[M any] struct {
	ch chan M
}

// New creates a queue with the given capacity, or DefaultCapacity if
// capacity is not positive.
func New[M any](capacity int) *Queue[M] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[M]{ch: make(chan M, capacity)}
}

// TrySend enqueues msg without blocking. It returns false when the queue is
// full; the caller decides how to surface the overflow.
func (q *Queue[M]) TrySend(msg M) bool {
	select {
	case q.ch <- msg:
		return true
	default:
		return false
	}
}

// TryRecv dequeues the oldest message without blocking. The second return
// value is false when the queue is empty.
func (q *Queue[M]) TryRecv() (M, bool) {
	select {
	case m := <-q.ch:
		return m, true
	default:
		var zero M
		return zero, false
	}
}

// Recv dequeues the oldest message, waiting up to maxWait for one to arrive.
// A non-positive maxWait behaves like TryRecv. This is a task's single
// suspension point.
func (q *Queue[M]) Recv(maxWait time.Duration) (M, bool) {
	if maxWait <= 0 {
		return q.TryRecv()
	}
	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case m := <-q.ch:
		return m, true
	case <-timer.C:
		var zero M
		return zero, false
	}
}

// Len returns the number of queued messages.
func (q *Queue[M]) Len() int {
	return len(q.ch)
}

// HasMessage reports whether at least one message is waiting.
func (q *Queue[M]) HasMessage() bool {
	return len(q.ch) > 0
}
