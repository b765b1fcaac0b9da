package memory

import (
	"context"
	"sort"
	"sync"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/storage"
)

// CensusSnapshotStore is an in-memory implementation of storage.CensusSnapshotStore.
type CensusSnapshotStore struct {
	mu     sync.RWMutex
	byMint map[string][]*domain.Census // ordered by ComputedAtMs ASC
}

// NewCensusSnapshotStore creates a new in-memory census snapshot store.
func NewCensusSnapshotStore() *CensusSnapshotStore {
	return &CensusSnapshotStore{
		byMint: make(map[string][]*domain.Census),
	}
}

// Insert appends a census snapshot.
func (s *CensusSnapshotStore) Insert(_ context.Context, c *domain.Census) error {
	if c == nil || c.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snaps := append(s.byMint[c.Mint], copyCensus(c))
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].ComputedAtMs < snaps[j].ComputedAtMs
	})
	s.byMint[c.Mint] = snaps
	return nil
}

// GetLatest retrieves the most recent snapshot of a mint. Returns ErrNotFound if none.
func (s *CensusSnapshotStore) GetLatest(_ context.Context, mint string) (*domain.Census, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.byMint[mint]
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return copyCensus(snaps[len(snaps)-1]), nil
}

// GetByTimeRange retrieves snapshots computed within [start, end] (inclusive).
func (s *CensusSnapshotStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.Census, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Census
	for _, c := range s.byMint[mint] {
		if c.ComputedAtMs >= start && c.ComputedAtMs <= end {
			result = append(result, copyCensus(c))
		}
	}
	return result, nil
}

func copyCensus(c *domain.Census) *domain.Census {
	cp := *c
	cp.Holders = append([]domain.HolderRecord(nil), c.Holders...)
	return &cp
}

var _ storage.CensusSnapshotStore = (*CensusSnapshotStore)(nil)
