package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-relay/internal/domain"
	"github.com/notifyhub/notification-relay/internal/queue"
	"github.com/notifyhub/notification-relay/internal/repository"
)

// Options configures intake.
type Options struct {
	InboundQueue string
	// PublishTimeout bounds the publish, including the broker confirm.
	PublishTimeout time.Duration
}

// MetricHooks carries the metric callbacks injected by main (nil = no-op).
type MetricHooks struct {
	OnSubmitted func()
	OnRejected  func(reason string)
}

// NotificationService is the intake and query side of the relay: it
// validates submissions, publishes them to the inbound queue and answers
// status lookups from the status store. It never reads the status queue.
type NotificationService struct {
	store     repository.StatusStore
	publisher queue.Publisher
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	onSubmitted func()
	onRejected  func(string)
}

func NewNotificationService(
	store repository.StatusStore,
	publisher queue.Publisher,
	opts Options,
	logger *zap.Logger,
	hooks MetricHooks,
) *NotificationService {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if hooks.OnSubmitted == nil {
		hooks.OnSubmitted = func() {}
	}
	if hooks.OnRejected == nil {
		hooks.OnRejected = func(string) {}
	}
	return &NotificationService{
		store:       store,
		publisher:   publisher,
		opts:        opts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		onSubmitted: hooks.OnSubmitted,
		onRejected:  hooks.OnRejected,
	}
}

// Submit validates the request, publishes it to the inbound queue and
// returns the PENDING record.
//
// The PENDING record is written before publishing so a fast worker can never
// look the id up before it exists. If the publish fails the write is undone,
// but only while the record is still the one this call wrote: a worker
// decision or a concurrent re-submission made meanwhile is kept.
func (s *NotificationService) Submit(ctx context.Context, id, content string) (*domain.Notification, error) {
	req := domain.CreateNotificationRequest{ID: id, Content: content}
	if err := req.Validate(); err != nil {
		s.onRejected("validation")
		return nil, err
	}

	correlationID := domain.CorrelationID(ctx)
	log := s.logger.With(zap.String("mensagem_id", id))
	if correlationID != "" {
		log = log.With(zap.String("correlation_id", correlationID))
	}

	now := s.now()
	body, err := json.Marshal(domain.QueueMessage{
		ID:            id,
		Content:       content,
		Timestamp:     now,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode queue message: %w", err)
	}

	previous, err := s.store.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup existing notification: %w", err)
	}

	n := &domain.Notification{
		ID:        id,
		Content:   content,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	if err := s.publish(ctx, body); err != nil {
		s.rollback(context.WithoutCancel(ctx), log, n, previous)
		s.onRejected("publish")
		return nil, fmt.Errorf("publish notification %s: %w", id, err)
	}

	s.onSubmitted()
	log.Info("notification accepted")
	return n, nil
}

func (s *NotificationService) publish(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	defer cancel()
	return s.publisher.Publish(ctx, s.opts.InboundQueue, body)
}

func (s *NotificationService) rollback(ctx context.Context, log *zap.Logger, saved, previous *domain.Notification) {
	reverted, err := s.store.Revert(ctx, saved, previous)
	if err != nil {
		log.Error("failed to roll back notification after publish error", zap.Error(err))
		return
	}
	if !reverted {
		log.Info("notification changed after a failed publish, keeping current record")
	}
}

// GetStatus returns the current status for id, or domain.StatusNotFound for
// ids never submitted or already cleared.
func (s *NotificationService) GetStatus(ctx context.Context, id string) (domain.Status, error) {
	n, err := s.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StatusNotFound, nil
	}
	if err != nil {
		return "", err
	}
	return n.Status, nil
}

func (s *NotificationService) Get(ctx context.Context, id string) (*domain.Notification, error) {
	return s.store.Get(ctx, id)
}

// List returns every record, most recently created first.
func (s *NotificationService) List(ctx context.Context) ([]*domain.Notification, error) {
	return s.store.List(ctx)
}

// Clear removes a record; later lookups report NOT_FOUND.
func (s *NotificationService) Clear(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("notification cleared", zap.String("mensagem_id", id))
	return nil
}

func (s *NotificationService) Stats(ctx context.Context) (domain.Stats, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	stats := domain.Stats{Total: len(all)}
	for _, n := range all {
		switch n.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusSuccess:
			stats.Success++
		case domain.StatusFailure:
			stats.Failure++
		}
	}
	return stats, nil
}
