package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"onchain-analytics/internal/analytics"
	"onchain-analytics/internal/buyers"
	"onchain-analytics/internal/cache"
	"onchain-analytics/internal/config"
	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/helius"
	"onchain-analytics/internal/holders"
	"onchain-analytics/internal/logger"
	"onchain-analytics/internal/normalization"
	"onchain-analytics/internal/orchestrator"
	"onchain-analytics/internal/price"
	"onchain-analytics/internal/providers"
	"onchain-analytics/internal/solana"
	"onchain-analytics/internal/storage"
	chstore "onchain-analytics/internal/storage/clickhouse"
	"onchain-analytics/internal/storage/memory"
	pgstore "onchain-analytics/internal/storage/postgres"
	redisstore "onchain-analytics/internal/storage/redis"
)

// app holds the wired engine and the resources to release on exit.
type app struct {
	engine  *analytics.Engine
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires the engine from configuration.
func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{}

	store, err := a.cacheStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	resultCache := cache.New(store, cache.Options{
		Freshness: map[domain.CacheKind]time.Duration{
			domain.CacheKindTrades: cfg.Cache.TradesFreshness,
			domain.CacheKindCensus: cfg.Cache.CensusFreshness,
			domain.CacheKindBuyers: cfg.Cache.BuyersFreshness,
		},
		Logger: logger.WithComponent(log, "cache"),
	})

	var (
		tradeSink  storage.TradeEventStore
		censusSink storage.CensusSnapshotStore
	)
	if cfg.ClickHouse.Enabled {
		conn, err := chstore.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		tradeSink = chstore.NewTradeEventStore(conn)
		censusSink = chstore.NewCensusSnapshotStore(conn)
	}

	orch := newOrchestrator(cfg, log)
	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint)

	engine, err := analytics.New(analytics.Deps{
		History: providers.NewHistory(
			helius.NewClient(cfg.Helius.APIKey, cfg.Helius.BaseURL, nil),
			orch,
			providers.HistoryOptions{PageSize: cfg.Helius.PageSize, MaxPages: cfg.Helius.MaxPages},
		),
		Ownership: providers.NewOwnership(rpc, orch, providers.OwnershipOptions{
			PageSize: cfg.Solana.AccountsPageSize,
			MaxPages: cfg.Solana.AccountsMaxPages,
		}),
		Prices:     providers.NewPrices(price.NewClient(cfg.Price.BaseURL, cfg.Price.VsMint, nil), orch),
		Launch:     providers.NewLaunch(rpc, orch, cfg.Solana.LaunchMaxPages),
		Cache:      resultCache,
		TradeSink:  tradeSink,
		CensusSink: censusSink,
		Normalizer: normalization.New(normalization.Options{
			SanityCeiling: cfg.Normalizer.SanityCeiling,
			Logger:        logger.WithComponent(log, "normalizer"),
		}),
		Aggregator: holders.New(holders.Options{
			DustThreshold:       cfg.Census.DustThreshold,
			ExcludeProgramOwned: cfg.Census.ExcludeProgramOwned,
			Logger:              logger.WithComponent(log, "holders"),
		}),
		Classifier: buyers.New(buyers.Options{
			SniperRankCeiling: cfg.Classifier.SniperRankCeiling,
			SniperWindow:      cfg.Classifier.SniperWindow,
			EarlyWindow:       cfg.Classifier.EarlyWindow,
		}),
		Logger: log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine
	return a, nil
}

// cacheStore opens the configured cache backend.
func (a *app) cacheStore(ctx context.Context, cfg *config.Config) (storage.CacheStore, error) {
	switch cfg.Cache.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		return pgstore.NewCacheStore(pool), nil
	case config.BackendRedis:
		client, err := redisstore.NewClient(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return redisstore.NewCacheStore(client, max(cfg.Cache.TradesFreshness, cfg.Cache.CensusFreshness, cfg.Cache.BuyersFreshness)), nil
	default:
		return memory.NewCacheStore(), nil
	}
}

func newOrchestrator(cfg *config.Config, log *zap.Logger) *orchestrator.Orchestrator {
	limits := make(map[string]rate.Limit)
	if cfg.Fetch.RatePerSecond > 0 {
		for _, source := range []string{providers.SourceHelius, providers.SourceRPC, providers.SourcePrice} {
			limits[source] = rate.Limit(cfg.Fetch.RatePerSecond)
		}
	}
	return orchestrator.New(orchestrator.Options{
		MaxInFlight:    cfg.Fetch.MaxInFlight,
		Timeout:        cfg.Fetch.Timeout,
		AttemptTimeout: cfg.Fetch.AttemptTimeout,
		Retry: orchestrator.RetryPolicy{
			MaxAttempts: cfg.Fetch.MaxAttempts,
			BaseDelay:   cfg.Fetch.BaseDelay,
			MaxDelay:    cfg.Fetch.MaxDelay,
			Multiplier:  2,
		},
		RateLimits:     limits,
		Burst:          cfg.Fetch.Burst,
		Logger:         log,
	})
}
