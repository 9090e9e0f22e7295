// Package memory provides the bounded in-process candidate queue that
// connects the search producer to the fetch workers.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/brandsignal/harvester/internal/collector"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory candidate queue with context-aware
// operations. A full queue blocks the producer, which is the
// backpressure that keeps search pagination from racing ahead of the
// fetch workers.
type Queue struct {
	ch      chan collector.Candidate
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan collector.Candidate, capacity),
	}
}

// Enqueue pushes a candidate or returns when the context ends.
func (q *Queue) Enqueue(ctx context.Context, c collector.Candidate) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- c:
		return nil
	}
}

// Dequeue pops the next candidate. After Close, remaining buffered
// candidates are still delivered; ErrClosed follows once drained.
func (q *Queue) Dequeue(ctx context.Context) (collector.Candidate, error) {
	select {
	case <-ctx.Done():
		return collector.Candidate{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case c, ok := <-q.ch:
		if !ok {
			return collector.Candidate{}, ErrClosed
		}
		return c, nil
	}
}

// Close marks the end of production. Safe to call more than once; only
// the producer may call it.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
