// Package analytics composes the providers, the result cache and the pure
// computations into wallet and token reports.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"onchain-analytics/internal/buyers"
	"onchain-analytics/internal/cache"
	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/holders"
	"onchain-analytics/internal/ingestion"
	"onchain-analytics/internal/normalization"
	"onchain-analytics/internal/providers"
	"onchain-analytics/internal/storage"
	"onchain-analytics/internal/storage/memory"
)

// DefaultComputeTimeout bounds a shared computation once it is detached from its first caller.
const DefaultComputeTimeout = 2 * time.Minute

// HistoryProvider returns the mapped transaction history of a wallet or a mint.
type HistoryProvider interface {
	WalletHistory(ctx context.Context, wallet string) (*ingestion.Batch, error)
	MintHistory(ctx context.Context, mint string) (*ingestion.Batch, error)
}

// OwnershipProvider returns the complete token-account census input of a mint.
type OwnershipProvider interface {
	Holdings(ctx context.Context, mint string) (*providers.Holdings, error)
}

// PriceProvider returns current prices. A mint missing from the price map has
// an entry in the failure map.
type PriceProvider interface {
	PriceAll(ctx context.Context, mints []string) (map[string]float64, map[string]*domain.SourceFailure)
}

// LaunchProvider returns the launch time of a mint in milliseconds.
// exhaustive is false when only part of the history was searched.
type LaunchProvider interface {
	LaunchTimestamp(ctx context.Context, mint string) (ms int64, exhaustive bool, err error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	History   HistoryProvider
	Ownership OwnershipProvider
	Prices    PriceProvider
	Launch    LaunchProvider

	// Cache defaults to an in-memory store with default freshness windows.
	Cache *cache.Cache

	// TradeSink and CensusSink receive every freshly computed result. Both are optional.
	TradeSink  storage.TradeEventStore
	CensusSink storage.CensusSnapshotStore

	Normalizer *normalization.Normalizer
	Aggregator *holders.Aggregator
	Classifier *buyers.Classifier

	ComputeTimeout time.Duration
	Logger         *zap.Logger
	Now            func() time.Time
}

// Engine produces analytics reports. It is safe for concurrent use.
type Engine struct {
	history   HistoryProvider
	ownership OwnershipProvider
	prices    PriceProvider
	launch    LaunchProvider

	cache    *cache.Cache
	trades   cache.View[*domain.TradeHistory]
	censuses cache.View[*domain.Census]
	buyers   cache.View[*domain.BuyerCensus]
	// tradeCache is the persistence view rescans clear trades through.
	tradeCache *cache.TradeCache

	tradeSink  storage.TradeEventStore
	censusSink storage.CensusSnapshotStore

	normalizer *normalization.Normalizer
	aggregator *holders.Aggregator
	classifier *buyers.Classifier

	// flight holds at most one computation per cache key.
	flight         singleflight.Group
	computeTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// New creates an Engine. Every provider is required.
func New(deps Deps) (*Engine, error) {
	var errs []error
	if deps.History == nil {
		errs = append(errs, fmt.Errorf("%w: history provider missing", domain.ErrConfiguration))
	}
	if deps.Ownership == nil {
		errs = append(errs, fmt.Errorf("%w: ownership provider missing", domain.ErrConfiguration))
	}
	if deps.Prices == nil {
		errs = append(errs, fmt.Errorf("%w: price provider missing", domain.ErrConfiguration))
	}
	if deps.Launch == nil {
		errs = append(errs, fmt.Errorf("%w: launch provider missing", domain.ErrConfiguration))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	c := deps.Cache
	if c == nil {
		c = cache.New(memory.NewCacheStore(), cache.Options{Logger: logger, Now: now})
	}
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = normalization.New(normalization.Options{Logger: logger})
	}
	aggregator := deps.Aggregator
	if aggregator == nil {
		aggregator = holders.New(holders.Options{Logger: logger, Now: now})
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = buyers.New(buyers.Options{})
	}
	timeout := deps.ComputeTimeout
	if timeout <= 0 {
		timeout = DefaultComputeTimeout
	}

	return &Engine{
		history:        deps.History,
		ownership:      deps.Ownership,
		prices:         deps.Prices,
		launch:         deps.Launch,
		cache:          c,
		trades:         cache.NewView[*domain.TradeHistory](c, domain.CacheKindTrades),
		censuses:       cache.NewView[*domain.Census](c, domain.CacheKindCensus),
		buyers:         cache.NewView[*domain.BuyerCensus](c, domain.CacheKindBuyers),
		tradeCache:     cache.NewTradeCache(c),
		tradeSink:      deps.TradeSink,
		censusSink:     deps.CensusSink,
		normalizer:     normalizer,
		aggregator:     aggregator,
		classifier:     classifier,
		computeTimeout: timeout,
		logger:         logger.With(zap.String("component", "engine")),
		now:            now,
	}, nil
}
