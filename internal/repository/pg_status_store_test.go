package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notification-relay/internal/config"
	"github.com/notifyhub/notification-relay/internal/db"
	"github.com/notifyhub/notification-relay/internal/domain"
	"github.com/notifyhub/notification-relay/internal/repository"
)

// newPgStore connects to DATABASE_URL, applies the migrations and empties the
// table. Tests using it are skipped when DATABASE_URL is unset.
func newPgStore(t *testing.T) repository.StatusStore {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, config.Store{DatabaseURL: url, DBMaxConns: 4, DBMinConns: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate("file://../../migrations", url))
	_, err = pool.Exec(ctx, `TRUNCATE notifications`)
	require.NoError(t, err)

	return repository.NewPgStatusStore(pool)
}

func TestPgStatusStore_SaveAndGet(t *testing.T) {
	store := newPgStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, pending("a1", t0)))

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "content of a1", got.Content)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, got.CreatedAt.Equal(t0))

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPgStatusStore_SaveResetsToPending(t *testing.T) {
	store := newPgStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, pending("a1", t0)))
	require.NoError(t, store.Transition(ctx, "a1", domain.StatusFailure, t0.Add(time.Second)))

	again := pending("a1", t0.Add(time.Minute))
	again.Content = "second"
	require.NoError(t, store.Save(ctx, again))

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, "second", got.Content)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPgStatusStore_Transition(t *testing.T) {
	store := newPgStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, pending("a1", t0)))

	at := t0.Add(2 * time.Second)
	require.NoError(t, store.Transition(ctx, "a1", domain.StatusSuccess, at))

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)
	assert.True(t, got.UpdatedAt.Equal(at))

	// terminal is final
	err = store.Transition(ctx, "a1", domain.StatusFailure, at.Add(time.Second))
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	got, err = store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)

	require.ErrorIs(t, store.Transition(ctx, "missing", domain.StatusSuccess, at), domain.ErrNotFound)
	require.ErrorIs(t, store.Transition(ctx, "a1", domain.StatusPending, at), domain.ErrInvalidTransition)
}

func TestPgStatusStore_ListNewestFirst(t *testing.T) {
	store := newPgStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, pending("old", t0)))
	require.NoError(t, store.Save(ctx, pending("new", t0.Add(time.Hour))))
	require.NoError(t, store.Save(ctx, pending("mid", t0.Add(time.Minute))))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func TestPgStatusStore_Delete(t *testing.T) {
	store := newPgStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, pending("a1", t0)))

	require.NoError(t, store.Delete(ctx, "a1"))
	require.ErrorIs(t, store.Delete(ctx, "a1"), domain.ErrNotFound)

	_, err := store.Get(ctx, "a1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPgStatusStore_Revert(t *testing.T) {
	store := newPgStore(t)
	ctx := context.Background()

	previous := pending("a1", t0)
	previous.Status = domain.StatusSuccess
	require.NoError(t, store.Save(ctx, previous))

	saved := pending("a1", t0.Add(time.Minute))
	saved.Content = "second"
	require.NoError(t, store.Save(ctx, saved))

	reverted, err := store.Revert(ctx, saved, previous)
	require.NoError(t, err)
	assert.True(t, reverted)
	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)
	assert.Equal(t, "content of a1", got.Content)

	// a decision made after the save is never undone
	require.NoError(t, store.Save(ctx, saved))
	require.NoError(t, store.Transition(ctx, "a1", domain.StatusFailure, t0.Add(2*time.Minute)))
	reverted, err = store.Revert(ctx, saved, previous)
	require.NoError(t, err)
	assert.False(t, reverted)
	got, err = store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailure, got.Status)

	// without a previous record the fresh save is deleted
	fresh := pending("b1", t0)
	require.NoError(t, store.Save(ctx, fresh))
	reverted, err = store.Revert(ctx, fresh, nil)
	require.NoError(t, err)
	assert.True(t, reverted)
	_, err = store.Get(ctx, "b1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
