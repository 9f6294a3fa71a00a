// Package queue is the handoff between producer goroutines (HTTP handlers,
// the sensor poller) and the single engine thread.
package queue

import (
	"context"
	"sync"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an input to the queue.
	// Returns false if the queue is full or closed and the input was dropped.
	Enqueue(ctx context.Context, in model.Input) bool

	// Dequeue returns a channel that receives inputs in arrival order.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan model.Input

	// Len returns the current number of queued inputs.
	Len(ctx context.Context) int

	// Close stops accepting inputs.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	inputs   chan model.Input
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.inputs = make(chan model.Input, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds an input to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, in model.Input) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.inputs <- in:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.inputs))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive inputs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Input {
	out := make(chan model.Input)
	go func() {
		defer close(out)
		for in := range q.inputs {
			select {
			case out <- in:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.inputs))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued inputs.
func (q *InMemoryQueue) Len(context.Context) int {
	size := len(q.inputs)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting inputs. Queued inputs are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.inputs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
