package analytics

import (
	"context"

	"go.uber.org/zap"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/ledger"
	"onchain-analytics/internal/normalization"
	"onchain-analytics/internal/observability"
)

// tableTradeEvents and tableCensusSnapshots label history sink writes.
const (
	tableTradeEvents     = "trade_events"
	tableCensusSnapshots = "census_snapshots"
)

// walletMetrics fills the trades and positions of r.
func (e *Engine) walletMetrics(ctx context.Context, wallet string, r *Report) []MetricFailure {
	history, err := load(ctx, e, e.trades, wallet, func(ctx context.Context) (*domain.TradeHistory, error) {
		return e.computeTrades(ctx, wallet)
	})
	if err != nil {
		return []MetricFailure{failureOf(MetricTrades, err), failureOf(MetricPositions, err)}
	}
	r.Trades = history

	res := &normalization.Result{Subject: wallet, Events: history.Events}
	positions, err := ledger.Build(res.LedgerInput())
	if err != nil {
		return []MetricFailure{failureOf(MetricPositions, err)}
	}

	var open []string
	for _, p := range positions {
		if p.IsOpen() {
			open = append(open, p.Mint)
		}
	}

	var (
		prices   map[string]float64
		failures []MetricFailure
	)
	if len(open) > 0 {
		var priceFailures map[string]*domain.SourceFailure
		prices, priceFailures = e.prices.PriceAll(ctx, open)
		for mint, f := range priceFailures {
			failures = append(failures, failureOf(MetricUnrealizedPrefix+mint, f))
		}
	}

	r.Positions = make([]domain.PositionSummary, 0, len(positions))
	for _, p := range positions {
		price, ok := prices[p.Mint]
		if !p.IsOpen() || !ok {
			r.Positions = append(r.Positions, ledger.Summarize(p, nil))
			continue
		}
		r.Positions = append(r.Positions, ledger.Summarize(p, &price))
	}
	return failures
}

// computeTrades fetches and normalizes the history of wallet.
func (e *Engine) computeTrades(ctx context.Context, wallet string) (*domain.TradeHistory, error) {
	batch, err := e.history.WalletHistory(ctx, wallet)
	if err != nil {
		return nil, err
	}

	res := e.normalizer.Normalize(wallet, batch.Transfers, batch.Swaps)
	drops := batch.Drops
	drops.Add(res.Drops)
	recordNormalization(drops, res.SuspectCount, res.Events)

	h := &domain.TradeHistory{
		Wallet:       wallet,
		Events:       res.Events,
		Drops:        drops,
		SuspectCount: res.SuspectCount,
		Truncated:    batch.Truncated,
		ComputedAtMs: e.now().UnixMilli(),
	}
	if h.Truncated {
		e.logger.Warn("wallet history truncated at page cap", zap.String("wallet", wallet))
	}
	e.sinkTrades(ctx, h)
	return h, nil
}

// sinkTrades appends h to the history sink. Failures are logged only.
func (e *Engine) sinkTrades(ctx context.Context, h *domain.TradeHistory) {
	if e.tradeSink == nil {
		return
	}
	err := e.tradeSink.InsertBulk(ctx, h.Wallet, h.ComputedAtMs, h.Events)
	observability.RecordHistoryWrite(tableTradeEvents, err)
	if err != nil {
		e.logger.Warn("trade history write failed", zap.String("wallet", h.Wallet), zap.Error(err))
	}
}

func recordNormalization(drops domain.DropStats, suspect int, events []domain.TradeEvent) {
	observability.RecordDropped("malformed", drops.Malformed)
	observability.RecordDropped("zero_amount", drops.ZeroAmount)
	observability.RecordDropped("unrelated", drops.Unrelated)
	observability.RecordDropped("native_only", drops.NativeOnly)
	observability.RecordDropped("transfer_out", drops.TransferOut)
	observability.RecordDropped("failed_tx", drops.FailedTx)
	observability.RecordDropped("paired_by_swap", drops.PairedBySwap)
	observability.RecordDropped("dust", drops.Dust)
	observability.RecordSuspect(suspect)
	for _, ev := range events {
		observability.RecordTradeEvent(string(ev.Source))
	}
}
