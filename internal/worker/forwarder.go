package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-relay/internal/domain"
	"github.com/notifyhub/notification-relay/internal/provider"
	"github.com/notifyhub/notification-relay/internal/queue"
)

// StatusForwarder drains the status queue and hands each event to a
// provider. Events the provider rejects are nacked and dropped; there is no
// retry queue behind the status queue.
type StatusForwarder struct {
	broker   queue.Broker
	queue    string
	provider provider.Provider
	logger   *zap.Logger
	onResult func(ok bool)
}

func NewStatusForwarder(
	broker queue.Broker,
	statusQueue string,
	p provider.Provider,
	logger *zap.Logger,
	onResult func(ok bool),
) *StatusForwarder {
	if onResult == nil {
		onResult = func(bool) {}
	}
	return &StatusForwarder{
		broker:   broker,
		queue:    statusQueue,
		provider: p,
		logger:   logger,
		onResult: onResult,
	}
}

// Run blocks until ctx is cancelled.
func (f *StatusForwarder) Run(ctx context.Context) {
	select {
	case <-f.broker.Ready():
	case <-ctx.Done():
		return
	}

	f.logger.Info("status forwarder started", zap.String("queue", f.queue))
	if err := f.broker.Consume(ctx, f.queue, f.Handle); err != nil {
		f.logger.Error("status forwarder exited", zap.Error(err))
	}
	f.logger.Info("status forwarder stopping")
}

func (f *StatusForwarder) Handle(ctx context.Context, d *queue.Delivery) {
	var event domain.StatusEvent
	if err := json.Unmarshal(d.Body, &event); err != nil || event.ID == "" {
		if err == nil {
			err = fmt.Errorf("%w: missing mensagemId", domain.ErrMalformedMessage)
		}
		f.logger.Warn("dropping malformed status event",
			zap.Error(err), zap.ByteString("body", truncate(d.Body)))
		f.settle(d, false)
		return
	}

	if err := f.provider.Deliver(ctx, event); err != nil {
		f.logger.Warn("status event delivery failed",
			zap.String("mensagem_id", event.ID), zap.Error(err))
		f.settle(d, false)
		return
	}

	f.logger.Debug("status event delivered",
		zap.String("mensagem_id", event.ID), zap.String("status", string(event.Status)))
	f.settle(d, true)
}

func (f *StatusForwarder) settle(d *queue.Delivery, ok bool) {
	var err error
	if ok {
		err = d.Ack()
	} else {
		err = d.Nack()
	}
	if err != nil {
		f.logger.Error("failed to settle status event", zap.Error(err))
	}
	f.onResult(ok)
}
