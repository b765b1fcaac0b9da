// Package cache implements the result cache: per-kind freshness windows over a
// storage.CacheStore, with explicit invalidation that always wins over freshness.
//
// A computation calls Begin before fetching and Put with the returned Token when done.
// Put discards the result if the key was invalidated in between, and Get ignores any
// entry whose fingerprint does not match the key's current invalidation mark, so a
// write that slips past the check in Put is never served either.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/idhash"
	"onchain-analytics/internal/observability"
	"onchain-analytics/internal/storage"
)

// Default freshness windows.
const (
	DefaultTradesFreshness = 6 * time.Hour
	DefaultCensusFreshness = 2 * time.Minute
	DefaultBuyersFreshness = 10 * time.Minute
)

// Lookup results, used as metric labels.
const (
	resultHit         = "hit"
	resultMiss        = "miss"
	resultStale       = "stale"
	resultInvalidated = "invalidated"
	resultError       = "error"
)

// Options configures a Cache.
type Options struct {
	// Freshness maps a kind to its window. Kinds not listed use the defaults.
	Freshness map[domain.CacheKind]time.Duration
	Logger    *zap.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Cache is safe for concurrent use. Keys need no cross-key coordination.
type Cache struct {
	store     storage.CacheStore
	freshness map[domain.CacheKind]time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Cache over store.
func New(store storage.CacheStore, opts Options) *Cache {
	freshness := map[domain.CacheKind]time.Duration{
		domain.CacheKindTrades: DefaultTradesFreshness,
		domain.CacheKindCensus: DefaultCensusFreshness,
		domain.CacheKindBuyers: DefaultBuyersFreshness,
	}
	for kind, window := range opts.Freshness {
		if window > 0 {
			freshness[kind] = window
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		store:     store,
		freshness: freshness,
		logger:    logger.With(zap.String("component", "cache")),
		now:       now,
	}
}

// Freshness returns the window of kind.
func (c *Cache) Freshness(kind domain.CacheKind) time.Duration {
	return c.freshness[kind]
}

// Token ties a computation to the invalidation mark observed when it started.
type Token struct {
	Key         string
	Kind        domain.CacheKind
	StartedAtMs int64

	invalidatedAt int64
}

// Begin starts a computation for subject. The token must be passed to Put.
func (c *Cache) Begin(ctx context.Context, kind domain.CacheKind, subject string) (Token, error) {
	key := kind.Key(subject)
	mark, err := c.store.InvalidatedAt(ctx, key)
	if err != nil {
		return Token{}, fmt.Errorf("begin %s: %w", key, err)
	}
	return Token{
		Key:           key,
		Kind:          kind,
		StartedAtMs:   c.now().UnixMilli(),
		invalidatedAt: mark,
	}, nil
}

// Get returns the entry of subject if it is fresh and has not been invalidated.
// Store failures are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, kind domain.CacheKind, subject string) (*domain.CacheEntry, bool) {
	key := kind.Key(subject)

	entry, err := c.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			observability.RecordCacheLookup(string(kind), resultMiss)
			return nil, false
		}
		c.lookupFailed(kind, key, err)
		return nil, false
	}

	mark, err := c.store.InvalidatedAt(ctx, key)
	if err != nil {
		c.lookupFailed(kind, key, err)
		return nil, false
	}
	if entry.SourceFingerprint != idhash.CacheFingerprint(key, mark) {
		observability.RecordCacheLookup(string(kind), resultInvalidated)
		return nil, false
	}

	age := c.now().UnixMilli() - entry.ComputedAtMs
	if age > c.freshness[kind].Milliseconds() {
		observability.RecordCacheLookup(string(kind), resultStale)
		return nil, false
	}

	observability.RecordCacheLookup(string(kind), resultHit)
	return entry, true
}

func (c *Cache) lookupFailed(kind domain.CacheKind, key string, err error) {
	observability.RecordCacheLookup(string(kind), resultError)
	c.logger.Warn("cache lookup failed, treating as miss",
		zap.String("key", key),
		zap.Error(err),
	)
}

// Put stores payload as the result of the computation started by tok.
// Returns ErrStaleWrite if the key was invalidated since Begin.
func (c *Cache) Put(ctx context.Context, tok Token, payload any) error {
	if tok.Key == "" {
		return fmt.Errorf("put: %w: empty token", storage.ErrInvalidInput)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", tok.Key, err)
	}

	mark, err := c.store.InvalidatedAt(ctx, tok.Key)
	if err != nil {
		return fmt.Errorf("put %s: %w", tok.Key, err)
	}
	if mark != tok.invalidatedAt {
		observability.RecordStaleWrite(string(tok.Kind))
		c.logger.Info("discarding result computed before invalidation",
			zap.String("key", tok.Key),
			zap.Int64("started_at_ms", tok.StartedAtMs),
			zap.Int64("invalidated_at_ms", mark),
		)
		return fmt.Errorf("put %s: %w", tok.Key, domain.ErrStaleWrite)
	}

	entry := &domain.CacheEntry{
		Key:               tok.Key,
		Kind:              tok.Kind,
		Payload:           data,
		ComputedAtMs:      tok.StartedAtMs,
		SourceFingerprint: idhash.CacheFingerprint(tok.Key, tok.invalidatedAt),
	}
	if err := c.store.Save(ctx, entry); err != nil {
		return fmt.Errorf("put %s: %w", tok.Key, err)
	}
	return nil
}

// Invalidate discards the entry of subject and fences off computations already in flight.
func (c *Cache) Invalidate(ctx context.Context, kind domain.CacheKind, subject string) error {
	key := kind.Key(subject)

	prev, err := c.store.InvalidatedAt(ctx, key)
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	// Two invalidations within one millisecond must still produce distinct marks.
	at := max(c.now().UnixMilli(), prev+1)
	if err := c.store.MarkInvalidated(ctx, key, at); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}

	observability.RecordInvalidation(string(kind))
	c.logger.Debug("cache key invalidated", zap.String("key", key), zap.Int64("at_ms", at))
	return nil
}

// Lookup returns the decoded result of subject on a hit.
// An entry that cannot be decoded counts as a miss.
func Lookup[T any](ctx context.Context, c *Cache, kind domain.CacheKind, subject string) (T, bool) {
	var zero T
	entry, ok := c.Get(ctx, kind, subject)
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(entry.Payload, &v); err != nil {
		c.logger.Warn("cache entry undecodable, treating as miss",
			zap.String("key", entry.Key),
			zap.Error(err),
		)
		return zero, false
	}
	return v, true
}
