package webhook

import (
	"context"
	"sync"

	"github.com/routepay/routepay/pkg/errors"
)

// Queue carries verified webhook event ids to the processing workers.
// Ordering is FIFO per queue; no ordering is guaranteed across different
// transactions. Implementations must be safe for concurrent use.
type Queue interface {
	// Enqueue appends an event id for processing.
	Enqueue(ctx context.Context, eventID string) error
	// Dequeue blocks until an event id is available, the context is
	// cancelled, or the queue is closed. A closed, drained queue returns
	// ErrQueueClosed.
	Dequeue(ctx context.Context) (string, error)
	// Ack marks an event id as consumed. In-process queues need no ack.
	Ack(ctx context.Context, eventID string) error
	// Close stops the queue; pending ids may still be dequeued.
	Close() error
}

// ChannelQueue is the default in-process Queue backed by a buffered channel,
// giving explicit backpressure when the buffer fills. The data channel is
// never closed; shutdown is signalled through a separate done channel so a
// concurrent Enqueue can never send on a closed channel.
type ChannelQueue struct {
	ch        chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannelQueue creates a queue with the given buffer size.
func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 1024
	}
	return &ChannelQueue{
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
}

// Enqueue implements Queue. It blocks when the buffer is full.
func (q *ChannelQueue) Enqueue(ctx context.Context, eventID string) error {
	select {
	case <-q.done:
		return errors.ErrQueueClosed
	default:
	}
	select {
	case q.ch <- eventID:
		return nil
	case <-q.done:
		return errors.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue implements Queue. Buffered ids win over shutdown so a closed
// queue still drains before reporting ErrQueueClosed.
func (q *ChannelQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	default:
	}
	select {
	case id := <-q.ch:
		return id, nil
	case <-q.done:
		select {
		case id := <-q.ch:
			return id, nil
		default:
			return "", errors.ErrQueueClosed
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Ack implements Queue as a no-op.
func (q *ChannelQueue) Ack(context.Context, string) error { return nil }

// Close implements Queue.
func (q *ChannelQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
