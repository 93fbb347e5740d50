// Package queue is the broker boundary between submission and execution.
// Delivery is at-least-once: a handle may be delivered to more than one
// worker, and consumers rely on the store's compare-and-set transition to
// make re-delivery a no-op.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrUnavailable indicates the broker cannot accept work right now
var ErrUnavailable = errors.New("queue unavailable")

// Queue is the job queue contract. Payloads are job handles only; workers
// re-read job state from the store.
type Queue interface {
	// Enqueue submits a job handle for execution. Fails with
	// ErrUnavailable when the broker is full or closed.
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue blocks until a handle is available or ctx is done
	Dequeue(ctx context.Context) (string, error)

	// Close stops the queue; pending handles are discarded
	Close() error
}

// Memory is an in-process broker backed by a buffered channel
type Memory struct {
	ch     chan string
	mu     sync.Mutex
	closed bool
}

// NewMemory creates a broker with the given capacity
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1
	}
	return &Memory{ch: make(chan string, size)}
}

// Enqueue submits a job handle without blocking
func (q *Memory) Enqueue(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrUnavailable
	}
	select {
	case q.ch <- jobID:
		return nil
	default:
		return ErrUnavailable
	}
}

// Dequeue blocks until a handle is available or ctx is done
func (q *Memory) Dequeue(ctx context.Context) (string, error) {
	select {
	case jobID, ok := <-q.ch:
		if !ok {
			return "", ErrUnavailable
		}
		return jobID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the queue
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
