// Package queue wraps the durable broker behind publish/consume with explicit
// ack and nack. AMQPClient talks to RabbitMQ; MemoryBroker is an in-process
// stand-in with the same contract.
package queue

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrAlreadySettled is returned when a delivery is acked or nacked twice.
var ErrAlreadySettled = errors.New("delivery already acknowledged")

// State is the lifecycle of a broker connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// Delivery is one consumed message. The handler must settle it exactly once.
type Delivery struct {
	Queue string
	Body  []byte

	ack     func() error
	nack    func() error
	settled atomic.Bool
}

func NewDelivery(queue string, body []byte, ack, nack func() error) *Delivery {
	return &Delivery{Queue: queue, Body: body, ack: ack, nack: nack}
}

// Ack marks the message as fully processed.
func (d *Delivery) Ack() error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return d.ack()
}

// Nack rejects the message without requeue: it is never redelivered.
func (d *Delivery) Nack() error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return d.nack()
}

// Handler processes a single delivery.
type Handler func(ctx context.Context, d *Delivery)

// Publisher enqueues a persistent message. A nil error means the broker
// accepted the message; it says nothing about consumer delivery.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Consumer invokes h for each message on queue until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, queue string, h Handler) error
}

// Broker is the connection handle injected into the intake service and workers.
type Broker interface {
	Publisher
	Consumer
	State() State
	// Ready is closed once the broker can publish and consume.
	Ready() <-chan struct{}
	Close() error
}
