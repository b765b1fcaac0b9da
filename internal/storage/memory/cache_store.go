package memory

import (
	"context"
	"sync"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/storage"
)

// CacheStore is an in-memory implementation of storage.CacheStore.
type CacheStore struct {
	mu          sync.RWMutex
	entries     map[string]*domain.CacheEntry // keyed by cache key
	invalidated map[string]int64              // latest invalidation mark per key
}

// NewCacheStore creates a new in-memory cache store.
func NewCacheStore() *CacheStore {
	return &CacheStore{
		entries:     make(map[string]*domain.CacheEntry),
		invalidated: make(map[string]int64),
	}
}

// Load retrieves the entry for key. Returns ErrNotFound if not exists.
func (s *CacheStore) Load(_ context.Context, key string) (*domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[key]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyEntry(e), nil
}

// Save inserts or replaces the entry for e.Key.
func (s *CacheStore) Save(_ context.Context, e *domain.CacheEntry) error {
	if e == nil || e.Key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.Key] = copyEntry(e)
	return nil
}

// Delete removes the entry for key.
func (s *CacheStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// MarkInvalidated records an invalidation of key. The mark never moves backwards.
func (s *CacheStore) MarkInvalidated(_ context.Context, key string, atMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if atMs > s.invalidated[key] {
		s.invalidated[key] = atMs
	}
	return nil
}

// InvalidatedAt returns the latest invalidation mark of key, or 0.
func (s *CacheStore) InvalidatedAt(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.invalidated[key], nil
}

// Len returns the number of stored entries.
func (s *CacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func copyEntry(e *domain.CacheEntry) *domain.CacheEntry {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	return &c
}

var _ storage.CacheStore = (*CacheStore)(nil)
