package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-relay/internal/domain"
)

type pgStatusStore struct {
	pool *pgxpool.Pool
}

// NewPgStatusStore returns a StatusStore backed by PostgreSQL.
func NewPgStatusStore(pool *pgxpool.Pool) StatusStore {
	return &pgStatusStore{pool: pool}
}

func (r *pgStatusStore) Save(ctx context.Context, n *domain.Notification) error {
	if !n.Status.IsStorable() {
		return fmt.Errorf("save %s: status %q cannot be stored", n.ID, n.Status)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, content, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    status = EXCLUDED.status,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at`,
		n.ID, n.Content, n.Status, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert notification: %w", err)
	}
	return nil
}

func (r *pgStatusStore) Get(ctx context.Context, id string) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, content, status, created_at, updated_at
		FROM notifications WHERE id = $1`, id)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// Transition relies on the status guard in the WHERE clause so two racing
// updates cannot both succeed.
func (r *pgStatusStore) Transition(ctx context.Context, id string, to domain.Status, at time.Time) error {
	if !to.IsTerminal() {
		return fmt.Errorf("%w: target %s is not terminal", domain.ErrInvalidTransition, to)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`, to, at, id, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s, wanted %s", domain.ErrInvalidTransition, id, current.Status, to)
}

// Revert matches saved in the WHERE clause, so a worker decision or another
// Save that landed in between is left alone.
func (r *pgStatusStore) Revert(ctx context.Context, saved, previous *domain.Notification) (bool, error) {
	const guard = `id = $1 AND status = $2 AND content = $3 AND created_at = $4 AND updated_at = $5`
	args := []any{saved.ID, domain.StatusPending, saved.Content, saved.CreatedAt, saved.UpdatedAt}

	var (
		tag pgconn.CommandTag
		err error
	)
	if previous == nil {
		tag, err = r.pool.Exec(ctx, `DELETE FROM notifications WHERE `+guard, args...)
	} else {
		tag, err = r.pool.Exec(ctx, `
			UPDATE notifications
			SET content = $6, status = $7, created_at = $8, updated_at = $9
			WHERE `+guard,
			append(args, previous.Content, previous.Status, previous.CreatedAt, previous.UpdatedAt)...)
	}
	if err != nil {
		return false, fmt.Errorf("revert notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgStatusStore) List(ctx context.Context) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, content, status, created_at, updated_at
		FROM notifications
		ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *pgStatusStore) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgStatusStore) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return total, nil
}

// ---- helpers ----

// scanNotification reads a single notification row from any pgx row type.
func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(&n.ID, &n.Content, &n.Status, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotifications(rows pgx.Rows) ([]*domain.Notification, error) {
	result := []*domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
