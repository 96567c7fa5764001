package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/notifyhub/notification-relay/internal/domain"
)

// MemoryStatusStore keeps records in process memory. go-cache provides the
// optional expiry; mu makes Transition's read-modify-write atomic with
// respect to concurrent Save and Delete calls.
type MemoryStatusStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStatusStore returns a store whose records expire ttl after their
// last write. ttl <= 0 keeps records until they are deleted.
func NewMemoryStatusStore(ttl, cleanupInterval time.Duration) *MemoryStatusStore {
	if ttl <= 0 {
		return &MemoryStatusStore{cache: cache.New(cache.NoExpiration, 0)}
	}
	return &MemoryStatusStore{cache: cache.New(ttl, cleanupInterval)}
}

func (s *MemoryStatusStore) Save(_ context.Context, n *domain.Notification) error {
	if !n.Status.IsStorable() {
		return fmt.Errorf("save %s: status %q cannot be stored", n.ID, n.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(n.ID, *n, cache.DefaultExpiration)
	return nil
}

func (s *MemoryStatusStore) Get(_ context.Context, id string) (*domain.Notification, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	n := v.(domain.Notification)
	return &n, nil
}

func (s *MemoryStatusStore) Transition(_ context.Context, id string, to domain.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.cache.Get(id)
	if !ok {
		return domain.ErrNotFound
	}
	n := v.(domain.Notification)
	if !n.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s is %s, wanted %s", domain.ErrInvalidTransition, id, n.Status, to)
	}
	n.Status = to
	n.UpdatedAt = at
	s.cache.Set(id, n, cache.DefaultExpiration)
	return nil
}

func (s *MemoryStatusStore) Revert(_ context.Context, saved, previous *domain.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.cache.Get(saved.ID)
	if !ok {
		return false, nil
	}
	current := v.(domain.Notification)
	if !unchanged(&current, saved) {
		return false, nil
	}
	if previous == nil {
		s.cache.Delete(saved.ID)
	} else {
		s.cache.Set(saved.ID, *previous, cache.DefaultExpiration)
	}
	return true, nil
}

func (s *MemoryStatusStore) List(_ context.Context) ([]*domain.Notification, error) {
	items := s.cache.Items()
	result := make([]*domain.Notification, 0, len(items))
	for _, item := range items {
		n := item.Object.(domain.Notification)
		result = append(result, &n)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStatusStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache.Get(id); !ok {
		return domain.ErrNotFound
	}
	s.cache.Delete(id)
	return nil
}

func (s *MemoryStatusStore) Count(_ context.Context) (int, error) {
	return len(s.cache.Items()), nil
}

var _ StatusStore = (*MemoryStatusStore)(nil)
