package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-relay/internal/domain"
	"github.com/notifyhub/notification-relay/internal/queue"
	"github.com/notifyhub/notification-relay/internal/ratelimiter"
	"github.com/notifyhub/notification-relay/internal/repository"
)

const maxLoggedBody = 256

// Options configures the processing behaviour shared by every worker.
type Options struct {
	InboundQueue   string
	StatusQueue    string
	Decide         Decider
	Delay          func() time.Duration
	PublishTimeout time.Duration
}

// MetricHooks carries the metric callbacks injected by main (nil = no-op).
type MetricHooks struct {
	OnProcessed  func(status domain.Status, latency time.Duration)
	OnDropped    func()
	OnStoreError func()
	// OnRedelivered fires for a message whose record already holds a final
	// status.
	OnRedelivered func()
}

// Worker consumes the inbound queue. Each delivery goes
// RECEIVED -> PROCESSING -> ACKED, or RECEIVED -> NACKED when the payload
// cannot be decoded.
type Worker struct {
	id      int
	broker  queue.Broker
	store   repository.StatusStore
	limiter *ratelimiter.Limiter
	opts    Options
	logger  *zap.Logger

	sleep func(time.Duration)
	now   func() time.Time

	onProcessed   func(domain.Status, time.Duration)
	onDropped     func()
	onStoreError  func()
	onRedelivered func()
}

func NewWorker(
	id int,
	broker queue.Broker,
	store repository.StatusStore,
	limiter *ratelimiter.Limiter,
	opts Options,
	logger *zap.Logger,
	hooks MetricHooks,
) *Worker {
	if opts.Decide == nil {
		opts.Decide = RandomDecider(2)
	}
	if opts.Delay == nil {
		opts.Delay = func() time.Duration { return 0 }
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if limiter == nil {
		limiter = ratelimiter.New(0)
	}
	if hooks.OnProcessed == nil {
		hooks.OnProcessed = func(domain.Status, time.Duration) {}
	}
	if hooks.OnDropped == nil {
		hooks.OnDropped = func() {}
	}
	if hooks.OnStoreError == nil {
		hooks.OnStoreError = func() {}
	}
	if hooks.OnRedelivered == nil {
		hooks.OnRedelivered = func() {}
	}
	return &Worker{
		id: id, broker: broker, store: store, limiter: limiter,
		opts: opts, logger: logger,
		sleep:        time.Sleep,
		now:          func() time.Time { return time.Now().UTC() },
		onProcessed:   hooks.OnProcessed,
		onDropped:     hooks.OnDropped,
		onStoreError:  hooks.OnStoreError,
		onRedelivered: hooks.OnRedelivered,
	}
}

// Run blocks until ctx is cancelled. It does not subscribe before the
// broker signals readiness.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker waiting for broker", zap.Int("id", w.id))
	select {
	case <-w.broker.Ready():
	case <-ctx.Done():
		return
	}

	w.logger.Info("worker started", zap.Int("id", w.id), zap.String("queue", w.opts.InboundQueue))
	if err := w.broker.Consume(ctx, w.opts.InboundQueue, w.Handle); err != nil {
		w.logger.Error("consumer exited", zap.Int("id", w.id), zap.Error(err))
	}
	w.logger.Info("worker stopping", zap.Int("id", w.id))
}

// Handle processes a single delivery. Exported so the pipeline can be
// driven directly without a broker loop.
func (w *Worker) Handle(ctx context.Context, d *queue.Delivery) {
	start := time.Now()

	msg, err := decode(d.Body)
	if err != nil {
		w.logger.Warn("dropping malformed message",
			zap.Error(err), zap.ByteString("body", truncate(d.Body)))
		if err := d.Nack(); err != nil {
			w.logger.Error("failed to nack malformed message", zap.Error(err))
		}
		w.onDropped()
		return
	}

	log := w.logger.With(zap.String("mensagem_id", msg.ID))
	if msg.CorrelationID != "" {
		log = log.With(zap.String("correlation_id", msg.CorrelationID))
	}
	log.Debug("notification received")

	// Left unsettled on shutdown: no decision was made, so the broker may
	// redeliver it.
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	w.sleep(w.opts.Delay())
	status := w.opts.Decide()

	// A decision exists from here on; finish the message even if ctx is
	// cancelled meanwhile.
	finishCtx := context.WithoutCancel(ctx)
	at := w.now()

	publishEvent := true
	switch err := w.store.Transition(finishCtx, msg.ID, status, at); {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTransition):
		// Already terminal, typically a redelivery: keep the first outcome.
		publishEvent = false
		w.onRedelivered()
		log.Info("notification already finished, keeping first outcome", zap.Error(err))
	default:
		w.onStoreError()
		log.Warn("status store update failed, acking anyway",
			zap.String("status", string(status)), zap.Error(err))
	}

	if publishEvent {
		w.publishStatus(finishCtx, log, domain.StatusEvent{
			ID:            msg.ID,
			Status:        status,
			Timestamp:     at,
			CorrelationID: msg.CorrelationID,
		})
	}

	if err := d.Ack(); err != nil {
		log.Error("failed to ack message", zap.Error(err))
	}

	elapsed := time.Since(start)
	w.onProcessed(status, elapsed)
	log.Info("notification processed", zap.String("status", string(status)), zap.Duration("latency", elapsed))
}

func (w *Worker) publishStatus(ctx context.Context, log *zap.Logger, event domain.StatusEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Error("failed to encode status event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.PublishTimeout)
	defer cancel()
	if err := w.broker.Publish(ctx, w.opts.StatusQueue, body); err != nil {
		log.Warn("failed to publish status event", zap.Error(err))
	}
}

func decode(body []byte) (domain.QueueMessage, error) {
	var msg domain.QueueMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", domain.ErrMalformedMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return msg, fmt.Errorf("%w: %w", domain.ErrMalformedMessage, err)
	}
	return msg, nil
}

func truncate(b []byte) []byte {
	if len(b) > maxLoggedBody {
		return b[:maxLoggedBody]
	}
	return b
}
