package analytics

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"onchain-analytics/internal/buyers"
	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/ingestion"
	"onchain-analytics/internal/observability"
)

// censusMetric fills the holder census of r.
func (e *Engine) censusMetric(ctx context.Context, mint string, r *Report) []MetricFailure {
	census, err := load(ctx, e, e.censuses, mint, func(ctx context.Context) (*domain.Census, error) {
		return e.computeCensus(ctx, mint)
	})
	if err != nil {
		return []MetricFailure{failureOf(MetricHolders, err)}
	}
	r.Census = census
	return nil
}

// buyerMetric fills the buyer classification of r.
func (e *Engine) buyerMetric(ctx context.Context, mint string, r *Report) []MetricFailure {
	census, err := load(ctx, e, e.buyers, mint, func(ctx context.Context) (*domain.BuyerCensus, error) {
		return e.computeBuyers(ctx, mint)
	})
	if err != nil {
		return []MetricFailure{failureOf(MetricBuyers, err)}
	}
	r.Buyers = census
	return nil
}

func (e *Engine) computeCensus(ctx context.Context, mint string) (*domain.Census, error) {
	holdings, err := e.ownership.Holdings(ctx, mint)
	if err != nil {
		return nil, err
	}
	recordNormalization(holdings.Drops, 0, nil)

	census := e.aggregator.Census(mint, holdings.Records, holdings.TotalSupply)
	census.MalformedDropped += holdings.Drops.Malformed

	if e.censusSink != nil {
		err := e.censusSink.Insert(ctx, census)
		observability.RecordHistoryWrite(tableCensusSnapshots, err)
		if err != nil {
			e.logger.Warn("census snapshot write failed", zap.String("mint", mint), zap.Error(err))
		}
	}
	return census, nil
}

// computeBuyers fetches the mint history and the launch time concurrently.
// Without an exact launch time the earliest observed buy stands in for it.
func (e *Engine) computeBuyers(ctx context.Context, mint string) (*domain.BuyerCensus, error) {
	var (
		wg         sync.WaitGroup
		batch      *ingestion.Batch
		historyErr error
		launchMs   int64
		exhaustive bool
		launchErr  error
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(2)
	go func() {
		defer wg.Done()
		batch, historyErr = e.history.MintHistory(ctx, mint)
		if historyErr != nil {
			// The launch time is useless without the history.
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		launchMs, exhaustive, launchErr = e.launch.LaunchTimestamp(ctx, mint)
	}()
	wg.Wait()

	if historyErr != nil {
		return nil, historyErr
	}

	res := e.normalizer.NormalizeMint(mint, batch.Transfers, batch.Swaps)
	drops := batch.Drops
	drops.Add(res.Drops)
	recordNormalization(drops, res.SuspectCount, res.Events)

	estimated := false
	if launchErr != nil || !exhaustive || launchMs == 0 {
		if launchErr != nil {
			e.logger.Warn("launch time unavailable, estimating from earliest buy",
				zap.String("mint", mint),
				zap.Error(launchErr),
			)
			launchMs = 0
		}
		launchMs = minNonZero(launchMs, buyers.EarliestBuy(mint, res.Events))
		estimated = true
	}

	census := e.classifier.Classify(mint, launchMs, res.Events)
	census.LaunchEstimated = estimated
	census.HistoryTruncated = batch.Truncated
	return census, nil
}

// minNonZero returns the smaller of a and b ignoring zeros.
func minNonZero(a, b int64) int64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	}
	return min(a, b)
}
