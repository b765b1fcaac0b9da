package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/observability"
)

// Analyze computes every metric of q. Metrics are computed concurrently and
// a failing source only removes the metrics that depend on it.
// The returned error is non-nil only for an invalid query, in which case nothing is fetched.
func (e *Engine) Analyze(ctx context.Context, q Query) (*Report, error) {
	start := time.Now()
	if err := q.Validate(); err != nil {
		observability.RecordReport(StatusInvalid, time.Since(start))
		return nil, err
	}

	r := &Report{Wallet: q.Wallet, Mint: q.Mint}
	var (
		wg             sync.WaitGroup
		walletFailures []MetricFailure
		censusFailures []MetricFailure
		buyerFailures  []MetricFailure
	)
	if q.Wallet != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			walletFailures = e.walletMetrics(ctx, q.Wallet, r)
		}()
	}
	if q.Mint != "" {
		wg.Add(2)
		go func() {
			defer wg.Done()
			censusFailures = e.censusMetric(ctx, q.Mint, r)
		}()
		go func() {
			defer wg.Done()
			buyerFailures = e.buyerMetric(ctx, q.Mint, r)
		}()
	}
	wg.Wait()

	r.Failures = make([]MetricFailure, 0, len(walletFailures)+len(censusFailures)+len(buyerFailures))
	r.Failures = append(r.Failures, walletFailures...)
	r.Failures = append(r.Failures, censusFailures...)
	r.Failures = append(r.Failures, buyerFailures...)
	sortFailures(r.Failures)
	r.GeneratedAtMs = e.now().UnixMilli()

	for _, f := range r.Failures {
		observability.RecordMetricFailure(metricLabel(f.Metric), string(f.Kind))
	}
	status := r.Status()
	observability.RecordReport(status, time.Since(start))
	e.logger.Info("report generated",
		zap.String("wallet", q.Wallet),
		zap.String("mint", q.Mint),
		zap.String("status", status),
		zap.Int("failures", len(r.Failures)),
		zap.Duration("duration", time.Since(start)),
	)
	return r, nil
}

// WalletReport computes trades, positions and unrealized P&L of wallet.
func (e *Engine) WalletReport(ctx context.Context, wallet string) (*Report, error) {
	return e.Analyze(ctx, Query{Wallet: wallet})
}

// TokenReport computes the holder census and buyer classification of mint.
func (e *Engine) TokenReport(ctx context.Context, mint string) (*Report, error) {
	return e.Analyze(ctx, Query{Mint: mint})
}

// Rescan invalidates every cached result of wallet and mint. Either may be empty.
// Computations already in flight for those keys are left to finish but their
// results are neither stored nor shared with later callers.
func (e *Engine) Rescan(ctx context.Context, wallet, mint, origin string) error {
	q := Query{Wallet: wallet, Mint: mint}
	if err := q.Validate(); err != nil {
		return err
	}

	var errs []error
	if wallet != "" {
		if err := e.tradeCache.ClearCachedTrades(ctx, wallet); err != nil {
			errs = append(errs, err)
		}
		e.flight.Forget(domain.CacheKindTrades.Key(wallet))
	}
	if mint != "" {
		if err := e.censuses.Clear(ctx, mint); err != nil {
			errs = append(errs, err)
		}
		e.flight.Forget(domain.CacheKindCensus.Key(mint))
		if err := e.buyers.Clear(ctx, mint); err != nil {
			errs = append(errs, err)
		}
		e.flight.Forget(domain.CacheKindBuyers.Key(mint))
	}

	observability.RecordRescan(origin)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("rescan: %w", err)
	}
	e.logger.Info("rescan requested",
		zap.String("wallet", wallet),
		zap.String("mint", mint),
		zap.String("origin", origin),
	)
	return nil
}

// InvalidateCensus drops the cached holder census of mint.
// Used when live activity shows balances moved.
func (e *Engine) InvalidateCensus(ctx context.Context, mint string) error {
	if err := e.censuses.Clear(ctx, mint); err != nil {
		return err
	}
	e.flight.Forget(domain.CacheKindCensus.Key(mint))
	return nil
}
