package repository

import (
	"context"
	"time"

	"github.com/notifyhub/notification-relay/internal/domain"
)

// StatusStore holds exactly one record per notification id.
// The in-memory implementation is in memory_status_store.go; the optional
// PostgreSQL one in pg_status_store.go.
type StatusStore interface {
	// Save inserts n, overwriting any record with the same id.
	Save(ctx context.Context, n *domain.Notification) error
	// Get returns domain.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*domain.Notification, error)
	// Transition moves a PENDING record to a terminal status. It returns
	// domain.ErrNotFound for unknown ids and domain.ErrInvalidTransition
	// when the record is already terminal.
	Transition(ctx context.Context, id string, to domain.Status, at time.Time) error
	// Revert undoes the Save of saved: the record is put back to previous,
	// or removed when previous is nil. Nothing changes, and reverted is
	// false, unless the stored record is still saved and still PENDING.
	Revert(ctx context.Context, saved, previous *domain.Notification) (reverted bool, err error)
	// List returns every record, most recently created first.
	List(ctx context.Context) ([]*domain.Notification, error)
	// Delete clears a record. Returns domain.ErrNotFound for unknown ids.
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// unchanged reports whether current is still the PENDING record saved wrote.
func unchanged(current, saved *domain.Notification) bool {
	return current.Status == domain.StatusPending &&
		current.Content == saved.Content &&
		current.CreatedAt.Equal(saved.CreatedAt) &&
		current.UpdatedAt.Equal(saved.UpdatedAt)
}
