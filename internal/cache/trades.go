package cache

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"onchain-analytics/internal/domain"
)

// TradeCache is the wallet trade history view of a Cache.
type TradeCache struct {
	view   View[*domain.TradeHistory]
	logger *zap.Logger
}

// NewTradeCache wraps c.
func NewTradeCache(c *Cache) *TradeCache {
	return &TradeCache{view: NewView[*domain.TradeHistory](c, domain.CacheKindTrades), logger: c.logger}
}

// LoadCachedTrades returns the cached trade history of wallet, if fresh.
func (t *TradeCache) LoadCachedTrades(ctx context.Context, wallet string) (*domain.TradeHistory, bool) {
	return t.view.Load(ctx, wallet)
}

// BeginTrades starts a trade computation for wallet.
func (t *TradeCache) BeginTrades(ctx context.Context, wallet string) (Token, error) {
	return t.view.Begin(ctx, wallet)
}

// SaveTrades stores a history computed under tok.
// A write that lost the race with ClearCachedTrades is dropped silently.
func (t *TradeCache) SaveTrades(ctx context.Context, tok Token, h *domain.TradeHistory) error {
	if h.Events == nil {
		h.Events = []domain.TradeEvent{}
	}
	err := t.view.Save(ctx, tok, h)
	if errors.Is(err, domain.ErrStaleWrite) {
		return nil
	}
	if err != nil {
		t.logger.Warn("saving trades failed", zap.String("key", tok.Key), zap.Error(err))
	}
	return err
}

// ClearCachedTrades invalidates the trade history of wallet.
func (t *TradeCache) ClearCachedTrades(ctx context.Context, wallet string) error {
	return t.view.Clear(ctx, wallet)
}
