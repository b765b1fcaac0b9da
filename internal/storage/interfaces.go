package storage

import (
	"context"

	"onchain-analytics/internal/domain"
)

// CacheStore persists computed results and per-key invalidation marks.
// Implementations only store; freshness and staleness decisions belong to the cache layer.
type CacheStore interface {
	// Load retrieves the entry for key. Returns ErrNotFound if not exists.
	Load(ctx context.Context, key string) (*domain.CacheEntry, error)

	// Save inserts or replaces the entry for e.Key.
	Save(ctx context.Context, e *domain.CacheEntry) error

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// MarkInvalidated records an invalidation of key at atMs.
	// The stored mark never moves backwards.
	MarkInvalidated(ctx context.Context, key string, atMs int64) error

	// InvalidatedAt returns the latest invalidation mark of key, or 0 if never invalidated.
	InvalidatedAt(ctx context.Context, key string) (int64, error)
}

// TradeEventStore provides access to the trade event history.
type TradeEventStore interface {
	// InsertBulk appends events computed for a wallet at computedAtMs.
	// Re-inserting an event (same idhash.EventID) replaces the earlier row.
	InsertBulk(ctx context.Context, wallet string, computedAtMs int64, events []domain.TradeEvent) error

	// GetByWallet retrieves the latest known events of a wallet, ordered by timestamp ASC.
	GetByWallet(ctx context.Context, wallet string) ([]domain.TradeEvent, error)
}

// CensusSnapshotStore provides access to historical holder censuses.
type CensusSnapshotStore interface {
	// Insert appends a census snapshot.
	Insert(ctx context.Context, c *domain.Census) error

	// GetLatest retrieves the most recent snapshot of a mint. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, mint string) (*domain.Census, error)

	// GetByTimeRange retrieves snapshots computed within [start, end] (inclusive), ordered ASC.
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.Census, error)
}
