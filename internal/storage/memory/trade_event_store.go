package memory

import (
	"context"
	"sort"
	"sync"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/idhash"
	"onchain-analytics/internal/storage"
)

// TradeEventStore is an in-memory implementation of storage.TradeEventStore.
type TradeEventStore struct {
	mu       sync.RWMutex
	byWallet map[string]map[string]domain.TradeEvent // wallet -> event id -> event
}

// NewTradeEventStore creates a new in-memory trade event store.
func NewTradeEventStore() *TradeEventStore {
	return &TradeEventStore{
		byWallet: make(map[string]map[string]domain.TradeEvent),
	}
}

// InsertBulk appends events for wallet. An event with a known id replaces the earlier one.
func (s *TradeEventStore) InsertBulk(_ context.Context, wallet string, _ int64, events []domain.TradeEvent) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byWallet[wallet]
	if !ok {
		m = make(map[string]domain.TradeEvent)
		s.byWallet[wallet] = m
	}
	for _, e := range events {
		m[idhash.EventID(e)] = copyEvent(e)
	}
	return nil
}

// GetByWallet retrieves all events of a wallet, ordered by timestamp ASC.
func (s *TradeEventStore) GetByWallet(_ context.Context, wallet string) ([]domain.TradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.byWallet[wallet]
	result := make([]domain.TradeEvent, 0, len(m))
	for _, e := range m {
		result = append(result, copyEvent(e))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TimestampMs != result[j].TimestampMs {
			return result[i].TimestampMs < result[j].TimestampMs
		}
		return result[i].Signature < result[j].Signature
	})
	return result, nil
}

func copyEvent(e domain.TradeEvent) domain.TradeEvent {
	if e.PricePerToken != nil {
		p := *e.PricePerToken
		e.PricePerToken = &p
	}
	return e
}

var _ storage.TradeEventStore = (*TradeEventStore)(nil)
