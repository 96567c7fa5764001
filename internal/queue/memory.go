package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/notifyhub/notification-relay/internal/domain"
)

// MemoryBroker keeps one buffered channel per queue.
//
// Publish is non-blocking: if the target buffer is full ErrQueueFull is
// returned immediately rather than blocking the caller. Nacked messages are
// dropped, matching the no-requeue contract of the AMQP client.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	buffer int

	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	acks  atomic.Int64
	nacks atomic.Int64
}

func NewMemoryBroker(buffer int, queues ...string) *MemoryBroker {
	b := &MemoryBroker{
		queues: make(map[string]chan []byte),
		buffer: buffer,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
	for _, q := range queues {
		b.queue(q)
	}
	close(b.ready)
	return b
}

func (b *MemoryBroker) queue(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, b.buffer)
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) Publish(_ context.Context, queue string, body []byte) error {
	select {
	case <-b.closed:
		return domain.ErrChannelUnavailable
	default:
	}

	msg := make([]byte, len(body))
	copy(msg, body)

	select {
	case b.queue(queue) <- msg:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Consume blocks until ctx is cancelled or the broker is closed.
func (b *MemoryBroker) Consume(ctx context.Context, queue string, h Handler) error {
	q := b.queue(queue)
	for {
		select {
		case body := <-q:
			h(ctx, NewDelivery(queue, body,
				func() error { b.acks.Add(1); return nil },
				func() error { b.nacks.Add(1); return nil },
			))
		case <-ctx.Done():
			return nil
		case <-b.closed:
			return nil
		}
	}
}

// Receive takes one message from queue without a handler, for observers
// and tests. ok is false when ctx ends first.
func (b *MemoryBroker) Receive(ctx context.Context, queue string) (body []byte, ok bool) {
	select {
	case body = <-b.queue(queue):
		return body, true
	case <-ctx.Done():
		return nil, false
	}
}

func (b *MemoryBroker) State() State {
	select {
	case <-b.closed:
		return StateDisconnected
	default:
		return StateReady
	}
}

func (b *MemoryBroker) Ready() <-chan struct{} { return b.ready }

// Depth returns the number of messages waiting on queue.
func (b *MemoryBroker) Depth(queue string) int {
	return len(b.queue(queue))
}

// Settled returns how many deliveries were acked and nacked so far.
func (b *MemoryBroker) Settled() (acks, nacks int64) {
	return b.acks.Load(), b.nacks.Load()
}

func (b *MemoryBroker) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

var _ Broker = (*MemoryBroker)(nil)
