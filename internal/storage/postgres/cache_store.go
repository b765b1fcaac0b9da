package postgres

import (
	"context"
	"fmt"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/storage"
)

// CacheStore implements storage.CacheStore using PostgreSQL.
type CacheStore struct {
	pool *Pool
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(pool *Pool) *CacheStore {
	return &CacheStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CacheStore = (*CacheStore)(nil)

// Load retrieves the entry for key. Returns ErrNotFound if not exists.
func (s *CacheStore) Load(ctx context.Context, key string) (*domain.CacheEntry, error) {
	query := `
		SELECT key, kind, payload, computed_at_ms, source_fingerprint
		FROM cache_entries
		WHERE key = $1
	`

	var (
		e    domain.CacheEntry
		kind string
	)
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&e.Key,
		&kind,
		&e.Payload,
		&e.ComputedAtMs,
		&e.SourceFingerprint,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load cache entry: %w", err)
	}
	e.Kind = domain.CacheKind(kind)
	return &e, nil
}

// Save inserts or replaces the entry for e.Key.
func (s *CacheStore) Save(ctx context.Context, e *domain.CacheEntry) error {
	if e == nil || e.Key == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO cache_entries (
			key, kind, payload, computed_at_ms, source_fingerprint
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			kind = EXCLUDED.kind,
			payload = EXCLUDED.payload,
			computed_at_ms = EXCLUDED.computed_at_ms,
			source_fingerprint = EXCLUDED.source_fingerprint,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		e.Key,
		string(e.Kind),
		e.Payload,
		e.ComputedAtMs,
		e.SourceFingerprint,
	)
	if err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// MarkInvalidated records an invalidation of key. The mark never moves backwards.
func (s *CacheStore) MarkInvalidated(ctx context.Context, key string, atMs int64) error {
	query := `
		INSERT INTO cache_invalidations (key, invalidated_at_ms)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET
			invalidated_at_ms = GREATEST(cache_invalidations.invalidated_at_ms, EXCLUDED.invalidated_at_ms)
	`

	if _, err := s.pool.Exec(ctx, query, key, atMs); err != nil {
		return fmt.Errorf("mark cache key invalidated: %w", err)
	}
	return nil
}

// InvalidatedAt returns the latest invalidation mark of key, or 0.
func (s *CacheStore) InvalidatedAt(ctx context.Context, key string) (int64, error) {
	var at int64
	err := s.pool.QueryRow(ctx,
		`SELECT invalidated_at_ms FROM cache_invalidations WHERE key = $1`, key,
	).Scan(&at)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get cache invalidation mark: %w", err)
	}
	return at, nil
}
