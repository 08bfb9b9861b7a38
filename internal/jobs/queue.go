package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrQueueClosed is returned by Dequeue once the queue is closed and drained.
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueFull is returned by TryEnqueue when no capacity is left.
	ErrQueueFull = errors.New("queue full")
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan Request
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan Request, capacity),
	}
}

// Enqueue pushes a request into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, req Request) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- req:
		return nil
	}
}

// TryEnqueue pushes a request without waiting for capacity.
func (q *Queue) TryEnqueue(req Request) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next request, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (Request, error) {
	select {
	case <-ctx.Done():
		return Request{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req, ok := <-q.ch:
		if !ok {
			return Request{}, ErrQueueClosed
		}
		return req, nil
	}
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
