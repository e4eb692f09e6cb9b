package judge

import (
	"context"
	"time"
)

const memQueueCapacity = 1024

// memQueue is a per-OJ in-process FIFO. The handler that created it is the
// only producer of record (a submitter may push back its own re-tries), and
// exactly one worker drains it. Backed by a buffered channel, so ordering is
// first-in first-out and a push to a full queue blocks rather than drops.
type memQueue[T any] struct {
	ch chan T
}

func newMemQueue[T any]() *memQueue[T] {
	return &memQueue[T]{ch: make(chan T, memQueueCapacity)}
}

// push appends v to the tail; returns false if ctx ended first.
func (q *memQueue[T]) push(ctx context.Context, v T) bool {
	select {
	case q.ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// pop waits up to timeout for the head element. ok=false means the timeout
// elapsed or ctx ended.
func (q *memQueue[T]) pop(ctx context.Context, timeout time.Duration) (T, bool) {
	var zero T
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case v := <-q.ch:
		return v, true
	case <-t.C:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// len reports the number of queued elements (approximate under concurrency).
func (q *memQueue[T]) len() int { return len(q.ch) }
