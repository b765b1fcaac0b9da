package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/storage"
)

// Key prefixes.
const (
	entryPrefix = "analytics:cache:"
	markPrefix  = "analytics:invalidated:"
)

// DefaultMarkTTL bounds how long an invalidation mark is kept.
// It only has to outlive the longest computation that could race with it.
const DefaultMarkTTL = 24 * time.Hour

// markScript raises the stored mark to ARGV[1] if it is higher and refreshes its TTL.
var markScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local at = tonumber(ARGV[1])
if at > cur then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// storedEntry is the JSON form of a cache entry.
type storedEntry struct {
	Kind              string          `json:"kind"`
	Payload           json.RawMessage `json:"payload"`
	ComputedAtMs      int64           `json:"computedAtMs"`
	SourceFingerprint string          `json:"sourceFingerprint"`
}

// CacheStore implements storage.CacheStore using Redis.
// Entries expire after entryTTL; the cache layer still applies per-kind freshness.
type CacheStore struct {
	client   *Client
	entryTTL time.Duration
	markTTL  time.Duration
}

// NewCacheStore creates a new CacheStore. A zero entryTTL keeps entries until deleted.
func NewCacheStore(client *Client, entryTTL time.Duration) *CacheStore {
	return &CacheStore{client: client, entryTTL: entryTTL, markTTL: DefaultMarkTTL}
}

// Compile-time interface check.
var _ storage.CacheStore = (*CacheStore)(nil)

// Load retrieves the entry for key. Returns ErrNotFound if not exists.
func (s *CacheStore) Load(ctx context.Context, key string) (*domain.CacheEntry, error) {
	data, err := s.client.Get(ctx, entryPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load cache entry: %w", err)
	}

	var stored storedEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &domain.CacheEntry{
		Key:               key,
		Kind:              domain.CacheKind(stored.Kind),
		Payload:           []byte(stored.Payload),
		ComputedAtMs:      stored.ComputedAtMs,
		SourceFingerprint: stored.SourceFingerprint,
	}, nil
}

// Save inserts or replaces the entry for e.Key.
func (s *CacheStore) Save(ctx context.Context, e *domain.CacheEntry) error {
	if e == nil || e.Key == "" {
		return storage.ErrInvalidInput
	}

	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}
	data, err := json.Marshal(storedEntry{
		Kind:              string(e.Kind),
		Payload:           payload,
		ComputedAtMs:      e.ComputedAtMs,
		SourceFingerprint: e.SourceFingerprint,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", e.Key, err)
	}

	if err := s.client.Set(ctx, entryPrefix+e.Key, data, s.entryTTL).Err(); err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, entryPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// MarkInvalidated records an invalidation of key. The mark never moves backwards.
func (s *CacheStore) MarkInvalidated(ctx context.Context, key string, atMs int64) error {
	err := markScript.Run(ctx, s.client, []string{markPrefix + key}, atMs, s.markTTL.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("mark cache key invalidated: %w", err)
	}
	return nil
}

// InvalidatedAt returns the latest invalidation mark of key, or 0.
func (s *CacheStore) InvalidatedAt(ctx context.Context, key string) (int64, error) {
	at, err := s.client.Get(ctx, markPrefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get cache invalidation mark: %w", err)
	}
	return at, nil
}
