package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slok/taskbroker/internal/kv"
	"github.com/slok/taskbroker/internal/model"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store is an in-process kv.Store. Expired keys are removed lazily.
type Store struct {
	entries map[string]entry
	now     func() time.Time
	mu      sync.Mutex
}

var _ kv.Store = &Store{}

// NewStore returns a new memory store. now can be nil.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		entries: map[string]entry{},
		now:     now,
	}
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.get(key); ok {
		return false, nil
	}

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e

	return true, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	if !ok {
		return "", fmt.Errorf("key %s: %w", key, model.ErrNotFound)
	}
	return e.value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *Store) get(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}
