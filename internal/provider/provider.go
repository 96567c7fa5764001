package provider

import (
	"context"

	"github.com/notifyhub/notification-relay/internal/domain"
)

// Provider delivers status events to an external observer.
// Mocking this interface in tests gives full control over delivery
// behaviour without making real HTTP calls.
type Provider interface {
	Deliver(ctx context.Context, event domain.StatusEvent) error
}
