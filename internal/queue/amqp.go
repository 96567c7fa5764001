package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/notifyhub/notification-relay/internal/domain"
)

const (
	dialTimeout = 5 * time.Second
	heartbeat   = 10 * time.Second
)

var errClientClosed = errors.New("amqp client closed")

// AMQPOptions configures an AMQPClient.
type AMQPOptions struct {
	URL string
	// Queues are declared durable on every (re)connect.
	Queues         []string
	ReconnectDelay time.Duration
	Prefetch       int
	// OnStateChange is optional (nil = no-op).
	OnStateChange func(State)
}

// AMQPClient owns a single RabbitMQ connection and channel.
//
// The connection moves Disconnected -> Connecting -> Ready. A supervisor
// started by Start keeps it Ready, retrying every ReconnectDelay. Connect
// attempts are collapsed through a singleflight group so at most one is
// in flight no matter how many publishers observe a missing channel.
type AMQPClient struct {
	opts   AMQPOptions
	logger *zap.Logger

	mu    sync.RWMutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	ready chan struct{} // closed while Ready, replaced on disconnect
	lost  chan struct{} // closed when the current connection drops

	state  atomic.Int32
	pubMu  sync.Mutex
	group  singleflight.Group
	closed chan struct{}
	once   sync.Once
}

func NewAMQPClient(opts AMQPOptions, logger *zap.Logger) *AMQPClient {
	if opts.OnStateChange == nil {
		opts.OnStateChange = func(State) {}
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	c := &AMQPClient{
		opts:   opts,
		logger: logger.With(zap.String("component", "amqp")),
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
	c.setState(StateDisconnected)
	return c
}

// Start launches the reconnect supervisor. It returns immediately; use
// Ready to wait for the first successful connection.
func (c *AMQPClient) Start(ctx context.Context) {
	go c.supervise(ctx)
}

func (c *AMQPClient) supervise(ctx context.Context) {
	for {
		if err := c.Reconnect(ctx); err != nil {
			if errors.Is(err, errClientClosed) || ctx.Err() != nil {
				return
			}
			c.logger.Warn("failed to connect to broker, retrying",
				zap.Error(err), zap.Duration("retry_in", c.opts.ReconnectDelay))

			select {
			case <-time.After(c.opts.ReconnectDelay):
				continue
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			}
		}

		c.mu.RLock()
		lost := c.lost
		c.mu.RUnlock()
		if lost == nil {
			continue
		}

		select {
		case <-lost:
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// Reconnect connects if the client is not Ready. Concurrent callers share
// one attempt.
func (c *AMQPClient) Reconnect(ctx context.Context) error {
	if c.isClosed() {
		return errClientClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.State() == StateReady {
		return nil
	}

	_, err, _ := c.group.Do("connect", func() (any, error) {
		if c.State() == StateReady {
			return nil, nil
		}
		return nil, c.connect()
	})
	return err
}

func (c *AMQPClient) connect() error {
	c.setState(StateConnecting)
	c.logger.Info("connecting to broker", zap.String("url", redact(c.opts.URL)))

	conn, ch, err := c.open()
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		_ = ch.Close()
		_ = conn.Close()
		return errClientClosed
	}
	c.conn, c.ch = conn, ch
	c.lost = make(chan struct{})
	ready := c.ready
	c.mu.Unlock()

	c.setState(StateReady)
	close(ready)
	go c.watch(conn, connClosed, chClosed)

	c.logger.Info("connected to broker", zap.Strings("queues", c.opts.Queues))
	return nil
}

func (c *AMQPClient) open() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(c.opts.URL, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	setup := func() error {
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("enable publisher confirms: %w", err)
		}
		if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch: %w", err)
		}
		for _, q := range c.opts.Queues {
			if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare queue %s: %w", q, err)
			}
		}
		return nil
	}
	if err := setup(); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// watch waits for the connection or channel to close and drops it so the
// supervisor reconnects.
func (c *AMQPClient) watch(conn *amqp.Connection, connClosed, chClosed <-chan *amqp.Error) {
	var reason *amqp.Error
	select {
	case reason = <-connClosed:
	case reason = <-chClosed:
	}
	if reason != nil {
		c.logger.Warn("broker connection lost", zap.String("reason", reason.Error()))
	}
	c.drop(conn)
}

func (c *AMQPClient) drop(conn *amqp.Connection) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn, c.ch = nil, nil
	c.ready = make(chan struct{})
	lost := c.lost
	c.lost = nil
	c.mu.Unlock()

	c.setState(StateDisconnected)
	_ = conn.Close()
	if lost != nil {
		close(lost)
	}
}

// Publish sends body to queue as a persistent message and waits for the
// broker's confirm. When no channel is available it makes one reconnect
// attempt before failing with domain.ErrChannelUnavailable.
func (c *AMQPClient) Publish(ctx context.Context, queue string, body []byte) error {
	ch := c.channel()
	if ch == nil {
		c.logger.Info("channel not ready, attempting to reconnect")
		if err := c.Reconnect(ctx); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrChannelUnavailable, err)
		}
		if ch = c.channel(); ch == nil {
			return domain.ErrChannelUnavailable
		}
	}

	c.pubMu.Lock()
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	c.pubMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPublish, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: await confirm: %w", domain.ErrPublish, err)
	}
	if !acked {
		return fmt.Errorf("%w: broker rejected message", domain.ErrPublish)
	}
	return nil
}

// Consume waits for readiness, subscribes to queue with manual acks and
// hands each delivery to h. After a connection loss it waits for the
// supervisor to reconnect and subscribes again. It returns nil once ctx is
// cancelled or the client is closed.
func (c *AMQPClient) Consume(ctx context.Context, queue string, h Handler) error {
	tag := "relay-" + uuid.NewString()
	log := c.logger.With(zap.String("queue", queue), zap.String("consumer_tag", tag))

	for {
		select {
		case <-c.Ready():
		case <-ctx.Done():
			return nil
		case <-c.closed:
			return nil
		}

		ch := c.channel()
		if ch == nil {
			continue
		}

		deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
		if err != nil {
			log.Warn("failed to start consumer", zap.Error(err))
			select {
			case <-time.After(c.opts.ReconnectDelay):
				continue
			case <-ctx.Done():
				return nil
			case <-c.closed:
				return nil
			}
		}
		log.Info("consumer started")

		if stopped := c.dispatch(ctx, ch, queue, tag, deliveries, h); stopped {
			log.Info("consumer stopped")
			return nil
		}
		log.Warn("delivery stream closed, waiting for reconnect")
	}
}

// dispatch returns true when consumption should stop for good and false
// when the delivery stream ended because the connection dropped.
func (c *AMQPClient) dispatch(
	ctx context.Context,
	ch *amqp.Channel,
	queue, tag string,
	deliveries <-chan amqp.Delivery,
	h Handler,
) bool {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return false
			}
			h(ctx, NewDelivery(queue, d.Body,
				func() error { return d.Ack(false) },
				func() error { return d.Nack(false, false) },
			))
		case <-ctx.Done():
			_ = ch.Cancel(tag, false)
			return true
		case <-c.closed:
			return true
		}
	}
}

func (c *AMQPClient) State() State {
	return State(c.state.Load())
}

func (c *AMQPClient) Ready() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Close closes the channel, then the connection. Errors are collected and
// returned for logging; teardown always runs to completion.
func (c *AMQPClient) Close() error {
	var result *multierror.Error

	c.once.Do(func() {
		c.mu.Lock()
		close(c.closed)
		conn, ch := c.conn, c.ch
		c.conn, c.ch = nil, nil
		c.mu.Unlock()

		c.setState(StateDisconnected)

		if ch != nil {
			if err := ch.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close channel: %w", err))
			}
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close connection: %w", err))
			}
		}
	})

	return result.ErrorOrNil()
}

func (c *AMQPClient) channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ch
}

func (c *AMQPClient) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		c.opts.OnStateChange(s)
	}
}

func (c *AMQPClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func redact(raw string) string {
	uri, err := amqp.ParseURI(raw)
	if err != nil {
		return "<invalid>"
	}
	uri.Password = "xxxxx"
	return uri.String()
}

var _ Broker = (*AMQPClient)(nil)
